package addons

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// Remote is the catalog backend as seen by the installer.
type Remote interface {
	// IncrementDownloads bumps the catalog download counter of an addon.
	IncrementDownloads(ctx context.Context, addonID string) error
	// ProfileManifest returns the installed list stored on the user's profile.
	ProfileManifest(sess *Session) ManifestStore
}

// Manager installs, updates and removes addons
type Manager struct {
	paths   Paths
	local   *LocalManifest
	remote  Remote
	client  *http.Client
	log     *log.Logger
	tempDir string
}

// NewManager creates a manager writing into paths. remote may be nil, in
// which case no remote bookkeeping happens.
func NewManager(paths Paths, remote Remote, client *http.Client, logger *log.Logger) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{
		paths:  paths,
		local:  NewLocalManifest(paths.AddonDir, logger),
		remote: remote,
		client: client,
		log:    logger,
	}
}

// SetTempDir overrides where scratch directories are created.
func (m *Manager) SetTempDir(dir string) {
	m.tempDir = dir
}

// Paths returns the install roots
func (m *Manager) Paths() Paths {
	return m.paths
}

// Local returns the local manifest store
func (m *Manager) Local() *LocalManifest {
	return m.local
}

// Installed returns the local manifest contents.
func (m *Manager) Installed(ctx context.Context) (Manifest, error) {
	return m.local.Load(ctx)
}

// Stage is a step of an install
type Stage int

const (
	StagePrepare Stage = iota
	StageDownload
	StageMerge
	StageRecord
)

func (s Stage) String() string {
	switch s {
	case StagePrepare:
		return "Preparing directories"
	case StageDownload:
		return "Downloading archive"
	case StageMerge:
		return "Merging files"
	case StageRecord:
		return "Recording installation"
	default:
		return "Unknown"
	}
}

// InstallOptions carries optional progress hooks
type InstallOptions struct {
	OnStage    func(Stage)
	OnDownload DownloadProgress
}

func (o InstallOptions) stage(s Stage) {
	if o.OnStage != nil {
		o.OnStage(s)
	}
}

// InstallResult contains information about a completed install
type InstallResult struct {
	Addon AddonRecord
	Merge *MergeResult
	Bytes int64
	// SyncErr holds bookkeeping failures after the files were merged.
	// The addon is installed even when it is set.
	SyncErr error
}

// Install downloads rec and merges it into the addon directory, then
// records the new version locally, on the catalog and on the user's profile.
func (m *Manager) Install(ctx context.Context, rec AddonRecord, sess *Session, opts InstallOptions) (*InstallResult, error) {
	result, err := m.installFiles(ctx, rec, opts)
	if err != nil {
		return nil, err
	}

	// The files are in place; record them even if the caller gave up.
	ctx = context.WithoutCancel(ctx)

	opts.stage(StageRecord)
	result.SyncErr = errors.Join(
		m.bumpDownloads(ctx, rec),
		m.recordRemote(ctx, sess, func(man Manifest) Manifest { return man.Upsert(rec.ID, rec.Version) }),
		m.local.Upsert(ctx, rec.ID, rec.Version),
	)
	if result.SyncErr != nil {
		m.log.Warn("Addon installed but bookkeeping failed", "addon", rec.ID, "error", result.SyncErr)
	}

	m.log.Info("Installed addon", "addon", rec.ID, "name", rec.Name, "version", rec.Version)
	return result, nil
}

// installFiles runs everything up to and including the merge.
func (m *Manager) installFiles(ctx context.Context, rec AddonRecord, opts InstallOptions) (*InstallResult, error) {
	opts.stage(StagePrepare)
	if err := m.paths.Ensure(); err != nil {
		return nil, err
	}

	url := strings.TrimSpace(rec.DownloadURL)
	if url == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoDownloadURL, rec.ID)
	}

	opts.stage(StageDownload)
	data, err := m.fetchArchive(ctx, url, opts.OnDownload)
	if err != nil {
		return nil, err
	}

	// Insecure names are rejected entry by entry during the merge.
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", ErrArchiveFormat, err)
	}

	opts.stage(StageMerge)
	merge, err := m.mergeInScratch(zr)
	if err != nil {
		return nil, err
	}

	m.log.Debug("Merged archive", "addon", rec.ID,
		"fresh", merge.Fresh, "text_merged", merge.TextMerged, "overwritten", merge.Overwritten)

	return &InstallResult{
		Addon: rec,
		Merge: merge,
		Bytes: int64(len(data)),
	}, nil
}

// mergeInScratch runs the merge with a scratch directory that never outlives the call.
func (m *Manager) mergeInScratch(zr *zip.Reader) (*MergeResult, error) {
	scratch, err := os.MkdirTemp(m.tempDir, "archectl-merge-*")
	if err != nil {
		return nil, fmt.Errorf("%w: scratch directory: %v", ErrMerge, err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			m.log.Warn("Failed to remove scratch directory", "path", scratch, "error", err)
		}
	}()

	return MergeArchive(zr, m.paths, scratch)
}

// Inspect downloads rec's archive and scans it without installing anything
// or touching the download counter.
func (m *Manager) Inspect(ctx context.Context, rec AddonRecord, onProgress DownloadProgress) (*ScanReport, error) {
	url := strings.TrimSpace(rec.DownloadURL)
	if url == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoDownloadURL, rec.ID)
	}

	data, err := m.fetchArchive(ctx, url, onProgress)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", ErrArchiveFormat, err)
	}
	return ScanArchive(zr)
}

func (m *Manager) bumpDownloads(ctx context.Context, rec AddonRecord) error {
	if m.remote == nil {
		return nil
	}
	if err := m.remote.IncrementDownloads(ctx, rec.ID); err != nil {
		return fmt.Errorf("%w: download counter for %s: %v", ErrRemoteSync, rec.ID, err)
	}
	return nil
}

// recordRemote applies fn to the user's profile list. Guests have none.
func (m *Manager) recordRemote(ctx context.Context, sess *Session, fn func(Manifest) Manifest) error {
	if m.remote == nil || !sess.LoggedIn() {
		return nil
	}

	store := m.remote.ProfileManifest(sess)
	current, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: read profile: %v", ErrRemoteSync, err)
	}
	if err := store.Save(ctx, fn(current.Clone()).Normalize()); err != nil {
		return fmt.Errorf("%w: write profile: %v", ErrRemoteSync, err)
	}
	return nil
}

// Uninstall removes addonDir/folder recursively.
func (m *Manager) Uninstall(ctx context.Context, addonID, folder string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if folder == "" || strings.ContainsAny(folder, `/\:`) || !filepath.IsLocal(folder) || folder == ManifestFileName {
		return fmt.Errorf("%w: %q is not an addon folder", ErrUnsafePath, folder)
	}

	target := filepath.Join(m.paths.AddonDir, folder)
	if _, err := os.Lstat(target); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		return err
	}

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to remove %s: %w", target, err)
	}

	m.log.Info("Uninstalled addon", "addon", addonID, "path", target)
	return nil
}

// Untrack removes id from the local manifest and from the user's profile.
// Both removals are attempted; each failure is kept in the joined error.
func (m *Manager) Untrack(ctx context.Context, addonID string, sess *Session) error {
	return errors.Join(
		m.local.Remove(ctx, addonID),
		m.recordRemote(ctx, sess, func(man Manifest) Manifest { return man.Remove(addonID) }),
	)
}

// UpdateFailure is one addon an update batch could not install
type UpdateFailure struct {
	Addon AddonRecord
	Err   error
}

// UpdateAllResult contains results from updating all addons
type UpdateAllResult struct {
	Updated []AddonRecord
	Failed  []UpdateFailure
	// SyncErr holds counter or manifest flush failures.
	SyncErr error
}

// UpdateBatch installs addons one after another and writes the manifests
// once, on Flush.
type UpdateBatch struct {
	m       *Manager
	sess    *Session
	changes Manifest
	result  *UpdateAllResult
	counter []error
}

// NewUpdateBatch starts an update batch for sess.
func (m *Manager) NewUpdateBatch(sess *Session) *UpdateBatch {
	return &UpdateBatch{
		m:      m,
		sess:   sess,
		result: &UpdateAllResult{},
	}
}

// Update installs one addon. A failure is recorded and returned; the batch
// stays usable.
func (b *UpdateBatch) Update(ctx context.Context, rec AddonRecord, opts InstallOptions) error {
	if _, err := b.m.installFiles(ctx, rec, opts); err != nil {
		b.m.log.Warn("Update failed", "addon", rec.ID, "error", err)
		b.result.Failed = append(b.result.Failed, UpdateFailure{Addon: rec, Err: err})
		return err
	}

	if err := b.m.bumpDownloads(ctx, rec); err != nil {
		b.counter = append(b.counter, err)
	}
	b.changes = b.changes.Upsert(rec.ID, rec.Version)
	b.result.Updated = append(b.result.Updated, rec)
	return nil
}

// Flush writes the accumulated versions to the local manifest and the
// profile and returns the batch result.
func (b *UpdateBatch) Flush(ctx context.Context) *UpdateAllResult {
	ctx = context.WithoutCancel(ctx)

	if len(b.changes) == 0 {
		b.result.SyncErr = errors.Join(b.counter...)
		return b.result
	}

	apply := func(man Manifest) Manifest {
		for _, e := range b.changes {
			man = man.Upsert(e.ID, e.Version)
		}
		return man
	}

	_, localErr := b.m.local.Update(ctx, apply)
	errs := append([]error{}, b.counter...)
	errs = append(errs, localErr, b.m.recordRemote(ctx, b.sess, apply))
	b.result.SyncErr = errors.Join(errs...)
	return b.result
}

// UpdateAll updates every addon in outdated sequentially. onEach, if not
// nil, is called after each addon with its error.
func (m *Manager) UpdateAll(ctx context.Context, outdated []AddonRecord, sess *Session, onEach func(rec AddonRecord, err error)) *UpdateAllResult {
	batch := m.NewUpdateBatch(sess)
	for _, rec := range outdated {
		if ctx.Err() != nil {
			batch.result.Failed = append(batch.result.Failed, UpdateFailure{Addon: rec, Err: ctx.Err()})
			continue
		}
		err := batch.Update(ctx, rec, InstallOptions{})
		if onEach != nil {
			onEach(rec, err)
		}
	}
	return batch.Flush(ctx)
}
