package addons

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

type zipEntry struct {
	name string
	body string
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		if e.body != "" {
			_, err = w.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func openZip(t *testing.T, data []byte) *zip.Reader {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		require.ErrorIs(t, err, zip.ErrInsecurePath)
	}
	return zr
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// memStore is an in-memory ManifestStore.
type memStore struct {
	mu      sync.Mutex
	list    Manifest
	loadErr error
	saveErr error
	saves   int
}

func (s *memStore) Load(ctx context.Context) (Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.list.Clone(), nil
}

func (s *memStore) Save(ctx context.Context, m Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.list = m.Clone()
	return nil
}

func (s *memStore) snapshot() Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Clone()
}

// fakeRemote records counter increments and serves a single profile.
type fakeRemote struct {
	mu         sync.Mutex
	increments map[string]int
	incErr     error
	profile    *memStore
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		increments: map[string]int{},
		profile:    &memStore{},
	}
}

func (f *fakeRemote) IncrementDownloads(ctx context.Context, addonID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incErr != nil {
		return f.incErr
	}
	f.increments[addonID]++
	return nil
}

func (f *fakeRemote) ProfileManifest(sess *Session) ManifestStore {
	return f.profile
}

func (f *fakeRemote) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.increments[id]
}

func userSession() *Session {
	return &Session{
		AccessToken: "token",
		User:        &User{ID: "7d1c53a4-3b1f-4c39-9f0e-2f7a3e6f1c11", Username: "player"},
	}
}
