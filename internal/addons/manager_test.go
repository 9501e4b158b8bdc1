package addons

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// archiveServer serves zip archives by URL path.
func archiveServer(t *testing.T, archives map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestManager(t *testing.T, remote Remote, client *http.Client) (*Manager, string) {
	t.Helper()
	m := NewManager(newPaths(t), remote, client, testLogger())
	scratchRoot := t.TempDir()
	m.SetTempDir(scratchRoot)
	return m, scratchRoot
}

func TestInstallIntoEmptyDirectory(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"/a.zip": buildZip(t, zipEntry{name: "MyAddon/main.lua", body: "v1"}),
	})
	remote := newFakeRemote()
	m, scratchRoot := newTestManager(t, remote, srv.Client())
	ctx := context.Background()

	rec := AddonRecord{ID: "42", Name: "MyAddon", Version: "1.0", DownloadURL: srv.URL + "/a.zip"}
	result, err := m.Install(ctx, rec, nil, InstallOptions{})

	require.NoError(t, err)
	require.NoError(t, result.SyncErr)
	assert.Equal(t, 1, result.Merge.Fresh)

	installed, _ := m.Installed(ctx)
	assert.Equal(t, Manifest{{ID: "42", Version: "1.0"}}, installed)
	assert.Empty(t, listFiles(t, m.Paths().BackupDir))
	assert.Equal(t, 1, remote.count("42"))
	// Guests never touch the profile.
	assert.Equal(t, 0, remote.profile.saves)
	assert.Empty(t, listFiles(t, scratchRoot))
}

func TestInstallUpdateBacksUpChangedLua(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"/v1.zip": buildZip(t, zipEntry{name: "MyAddon/main.lua", body: "old code"}),
		"/v2.zip": buildZip(t, zipEntry{name: "MyAddon/main.lua", body: "new code"}),
	})
	remote := newFakeRemote()
	m, _ := newTestManager(t, remote, srv.Client())
	ctx := context.Background()
	sess := userSession()

	_, err := m.Install(ctx, AddonRecord{ID: "42", Version: "1.0", DownloadURL: srv.URL + "/v1.zip"}, sess, InstallOptions{})
	require.NoError(t, err)
	_, err = m.Install(ctx, AddonRecord{ID: "42", Version: "1.1", DownloadURL: srv.URL + "/v2.zip"}, sess, InstallOptions{})
	require.NoError(t, err)

	assert.Equal(t, "old code", readFile(t, filepath.Join(m.Paths().BackupDir, "MyAddon", "main.lua")))
	assert.Equal(t, "new code", readFile(t, filepath.Join(m.Paths().AddonDir, "MyAddon", "main.lua")))

	installed, _ := m.Installed(ctx)
	assert.Equal(t, Manifest{{ID: "42", Version: "1.1"}}, installed)
	assert.Equal(t, Manifest{{ID: "42", Version: "1.1"}}, remote.profile.snapshot())
	assert.Equal(t, 2, remote.count("42"))
}

func TestInstallWithoutDownloadURL(t *testing.T) {
	m, _ := newTestManager(t, nil, nil)

	_, err := m.Install(context.Background(), AddonRecord{ID: "1", DownloadURL: "  "}, nil, InstallOptions{})

	assert.ErrorIs(t, err, ErrNoDownloadURL)
	assert.ErrorIs(t, err, ErrDownload)
}

func TestInstallHTTPErrorLeavesNoTrace(t *testing.T) {
	srv := archiveServer(t, nil)
	m, scratchRoot := newTestManager(t, nil, srv.Client())

	_, err := m.Install(context.Background(), AddonRecord{ID: "1", DownloadURL: srv.URL + "/missing.zip"}, nil, InstallOptions{})

	require.ErrorIs(t, err, ErrDownload)
	assert.Contains(t, err.Error(), "404")
	assert.Empty(t, listFiles(t, m.Paths().AddonDir))
	assert.Empty(t, listFiles(t, scratchRoot))
	assert.False(t, m.Local().Exists())
}

func TestInstallTransportError(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}
	m, _ := newTestManager(t, nil, client)

	_, err := m.Install(context.Background(), AddonRecord{ID: "1", DownloadURL: "http://addons.invalid/a.zip"}, nil, InstallOptions{})

	assert.ErrorIs(t, err, ErrDownload)
}

func TestInstallInvalidArchive(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("this is not a zip")),
			Header:     make(http.Header),
		}, nil
	})}
	m, _ := newTestManager(t, nil, client)

	_, err := m.Install(context.Background(), AddonRecord{ID: "1", DownloadURL: "http://addons.invalid/a.zip"}, nil, InstallOptions{})

	assert.ErrorIs(t, err, ErrArchiveFormat)
	assert.Empty(t, listFiles(t, m.Paths().AddonDir))
}

func TestInstallMergeFailureCleansScratch(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"/bad.zip": buildZip(t, zipEntry{name: "../../escape.lua", body: "x"}),
	})
	m, scratchRoot := newTestManager(t, nil, srv.Client())

	_, err := m.Install(context.Background(), AddonRecord{ID: "1", DownloadURL: srv.URL + "/bad.zip"}, nil, InstallOptions{})

	require.ErrorIs(t, err, ErrUnsafePath)
	assert.Empty(t, listFiles(t, scratchRoot))
	assert.False(t, m.Local().Exists())
}

func TestInstallApplyFailureCleansStagedScratch(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"/a.zip": buildZip(t,
			zipEntry{name: "MyAddon/first.lua", body: "one"},
			zipEntry{name: "MyAddon/main.lua", body: "two"},
		),
	})
	m, scratchRoot := newTestManager(t, nil, srv.Client())
	// A directory where a file must go makes the apply phase fail after
	// every entry was staged.
	require.NoError(t, os.MkdirAll(filepath.Join(m.Paths().AddonDir, "MyAddon", "main.lua"), 0755))

	_, err := m.Install(context.Background(), AddonRecord{ID: "1", DownloadURL: srv.URL + "/a.zip"}, nil, InstallOptions{})

	require.ErrorIs(t, err, ErrMerge)
	entries, readErr := os.ReadDir(scratchRoot)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
	assert.False(t, m.Local().Exists())
	// Entries applied before the failure stay.
	assert.FileExists(t, filepath.Join(m.Paths().AddonDir, "MyAddon", "first.lua"))
}

func TestInstallRemoteFailuresDoNotUndoInstall(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"/a.zip": buildZip(t, zipEntry{name: "MyAddon/main.lua", body: "v1"}),
	})
	remote := newFakeRemote()
	remote.incErr = errors.New("rpc unavailable")
	remote.profile.saveErr = errors.New("profile locked")
	m, _ := newTestManager(t, remote, srv.Client())
	ctx := context.Background()

	result, err := m.Install(ctx, AddonRecord{ID: "42", Version: "1.0", DownloadURL: srv.URL + "/a.zip"}, userSession(), InstallOptions{})

	require.NoError(t, err)
	require.Error(t, result.SyncErr)
	assert.ErrorIs(t, result.SyncErr, ErrRemoteSync)
	assert.Contains(t, result.SyncErr.Error(), "rpc unavailable")
	assert.Contains(t, result.SyncErr.Error(), "profile locked")

	installed, _ := m.Installed(ctx)
	assert.Equal(t, Manifest{{ID: "42", Version: "1.0"}}, installed)
	assert.FileExists(t, filepath.Join(m.Paths().AddonDir, "MyAddon", "main.lua"))
}

func TestInstallReportsStagesAndProgress(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"/a.zip": buildZip(t, zipEntry{name: "a.lua", body: strings.Repeat("x", 1024)}),
	})
	m, _ := newTestManager(t, nil, srv.Client())

	var stages []Stage
	var lastDownloaded int64
	opts := InstallOptions{
		OnStage:    func(s Stage) { stages = append(stages, s) },
		OnDownload: func(downloaded, total int64) { lastDownloaded = downloaded },
	}
	result, err := m.Install(context.Background(), AddonRecord{ID: "1", Version: "1", DownloadURL: srv.URL + "/a.zip"}, nil, opts)

	require.NoError(t, err)
	assert.Equal(t, []Stage{StagePrepare, StageDownload, StageMerge, StageRecord}, stages)
	assert.Equal(t, result.Bytes, lastDownloaded)
}

func TestUninstall(t *testing.T) {
	m, _ := newTestManager(t, nil, nil)
	ctx := context.Background()
	writeFile(t, filepath.Join(m.Paths().AddonDir, "MyAddon", "main.lua"), "x")
	require.NoError(t, m.Local().Upsert(ctx, "42", "1.0"))

	require.NoError(t, m.Uninstall(ctx, "42", "MyAddon"))

	assert.NoDirExists(t, filepath.Join(m.Paths().AddonDir, "MyAddon"))
	// Uninstall leaves the manifest to the caller.
	installed, _ := m.Installed(ctx)
	assert.Equal(t, Manifest{{ID: "42", Version: "1.0"}}, installed)
}

func TestUninstallMissingFolder(t *testing.T) {
	m, _ := newTestManager(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.Local().Upsert(ctx, "42", "1.0"))

	err := m.Uninstall(ctx, "42", "MyAddon")

	require.ErrorIs(t, err, ErrNotFound)
	installed, _ := m.Installed(ctx)
	assert.Equal(t, Manifest{{ID: "42", Version: "1.0"}}, installed)
}

func TestUninstallRejectsPathsOutsideAddonDir(t *testing.T) {
	m, _ := newTestManager(t, nil, nil)
	outside := filepath.Join(filepath.Dir(m.Paths().AddonDir), "AddonBackup")

	for _, folder := range []string{"", "..", "../AddonBackup", "a/b", `a\b`, ManifestFileName, "C:"} {
		err := m.Uninstall(context.Background(), "42", folder)
		assert.ErrorIs(t, err, ErrUnsafePath, folder)
	}
	assert.DirExists(t, outside)
}

func TestUntrackReportsBothFailuresIndependently(t *testing.T) {
	remote := newFakeRemote()
	remote.profile.list = Manifest{{ID: "42", Version: "1.0"}, {ID: "7", Version: "1"}}
	m, _ := newTestManager(t, remote, nil)
	ctx := context.Background()
	require.NoError(t, m.Local().Upsert(ctx, "42", "1.0"))

	require.NoError(t, m.Untrack(ctx, "42", userSession()))
	installed, _ := m.Installed(ctx)
	assert.Empty(t, installed)
	assert.Equal(t, Manifest{{ID: "7", Version: "1"}}, remote.profile.snapshot())

	// Local failure must not stop the remote removal.
	require.NoError(t, m.Local().Upsert(ctx, "7", "1"))
	blockManifest(t, m.Local())
	err := m.Untrack(ctx, "7", userSession())
	require.ErrorIs(t, err, ErrManifestIO)
	assert.NotErrorIs(t, err, ErrRemoteSync)
	assert.Empty(t, remote.profile.snapshot())

	remote.profile.saveErr = errors.New("offline")
	err = m.Untrack(ctx, "7", userSession())
	assert.ErrorIs(t, err, ErrManifestIO)
	assert.ErrorIs(t, err, ErrRemoteSync)
}

// blockManifest makes writes to the manifest fail by making its directory read-only.
func blockManifest(t *testing.T, lm *LocalManifest) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := filepath.Dir(lm.Path())
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
}

func TestUpdateAllContinuesPastFailuresAndFlushesOnce(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"/a.zip": buildZip(t, zipEntry{name: "A/a.lua", body: "a2"}),
		"/c.zip": buildZip(t, zipEntry{name: "C/c.lua", body: "c2"}),
	})
	remote := newFakeRemote()
	remote.profile.list = Manifest{{ID: "a", Version: "1"}, {ID: "b", Version: "1"}, {ID: "c", Version: "1"}}
	m, _ := newTestManager(t, remote, srv.Client())
	ctx := context.Background()
	require.NoError(t, m.Local().Save(ctx, remote.profile.list))

	outdated := []AddonRecord{
		{ID: "a", Version: "2", DownloadURL: srv.URL + "/a.zip"},
		{ID: "b", Version: "2", DownloadURL: srv.URL + "/missing.zip"},
		{ID: "c", Version: "2", DownloadURL: srv.URL + "/c.zip"},
	}

	var seen []string
	result := m.UpdateAll(ctx, outdated, userSession(), func(rec AddonRecord, err error) {
		seen = append(seen, rec.ID)
	})

	assert.Equal(t, []string{"a", "b", "c"}, seen)
	require.Len(t, result.Updated, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "b", result.Failed[0].Addon.ID)
	assert.ErrorIs(t, result.Failed[0].Err, ErrDownload)
	assert.NoError(t, result.SyncErr)

	want := Manifest{{ID: "a", Version: "2"}, {ID: "b", Version: "1"}, {ID: "c", Version: "2"}}
	installed, _ := m.Installed(ctx)
	assert.True(t, want.Equal(installed), "local manifest = %v", installed)
	assert.True(t, want.Equal(remote.profile.snapshot()))
	assert.Equal(t, 1, remote.profile.saves)
	assert.Equal(t, 1, remote.count("a"))
	assert.Equal(t, 0, remote.count("b"))
}

func TestUpdateAllNothingToDo(t *testing.T) {
	remote := newFakeRemote()
	m, _ := newTestManager(t, remote, nil)

	result := m.UpdateAll(context.Background(), nil, userSession(), nil)

	assert.Empty(t, result.Updated)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 0, remote.profile.saves)
	assert.False(t, m.Local().Exists())
}

func TestInspectScansWithoutInstalling(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"/a.zip": buildZip(t,
			zipEntry{name: "MyAddon/main.lua", body: "os.execute('rm -rf /')"},
			zipEntry{name: "MyAddon/readme.txt", body: "hi"},
		),
	})
	remote := newFakeRemote()
	m, _ := newTestManager(t, remote, srv.Client())
	ctx := context.Background()

	rec := AddonRecord{ID: "42", Name: "MyAddon", Version: "1.0", DownloadURL: srv.URL + "/a.zip"}
	report, err := m.Inspect(ctx, rec, nil)

	require.NoError(t, err)
	assert.True(t, report.Flagged())
	assert.Equal(t, 2, report.Scanned)
	assert.Empty(t, listFiles(t, m.Paths().AddonDir))
	assert.Equal(t, 0, remote.count("42"))
}

func TestUntrackOnFreshMachineKeepsProfileAfterSync(t *testing.T) {
	remote := newFakeRemote()
	remote.profile.list = Manifest{{ID: "1", Version: "1"}, {ID: "2", Version: "1"}, {ID: "3", Version: "1"}}
	m, _ := newTestManager(t, remote, http.DefaultClient)
	ctx := context.Background()
	sess := userSession()

	require.NoError(t, m.Untrack(ctx, "3", sess))
	assert.False(t, m.Local().Exists())

	result, err := NewReconciler(m.Local(), remote, testLogger()).Sync(ctx, sess)
	require.NoError(t, err)

	want := Manifest{{ID: "1", Version: "1"}, {ID: "2", Version: "1"}}
	assert.Equal(t, SyncPulledRemote, result.Action)
	assert.ElementsMatch(t, want, remote.profile.snapshot())
	local, _ := m.Local().Load(ctx)
	assert.ElementsMatch(t, want, local)
}
