package addons

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

// ManifestFileName is the manifest file kept at the root of the addon directory.
const ManifestFileName = "downloaded_addons"

// ManifestStore reads and writes a whole installed-addons list.
type ManifestStore interface {
	Load(ctx context.Context) (Manifest, error)
	Save(ctx context.Context, m Manifest) error
}

var (
	fileLocksMu sync.Mutex
	fileLocks   = map[string]*sync.Mutex{}
)

// lockFor returns the process-wide mutex guarding path.
func lockFor(path string) *sync.Mutex {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	fileLocksMu.Lock()
	defer fileLocksMu.Unlock()

	mu, ok := fileLocks[path]
	if !ok {
		mu = &sync.Mutex{}
		fileLocks[path] = mu
	}
	return mu
}

// LocalManifest is the on-disk manifest in the addon directory.
// Every read-modify-write holds a mutex shared by all LocalManifest values
// pointing at the same file.
type LocalManifest struct {
	path string
	mu   *sync.Mutex
	log  *log.Logger
}

// NewLocalManifest returns the manifest stored in addonDir.
func NewLocalManifest(addonDir string, logger *log.Logger) *LocalManifest {
	path := filepath.Join(addonDir, ManifestFileName)
	return &LocalManifest{
		path: path,
		mu:   lockFor(path),
		log:  logger,
	}
}

// Path returns the manifest file location
func (lm *LocalManifest) Path() string {
	return lm.path
}

// Exists reports whether the manifest file is present, even if empty.
func (lm *LocalManifest) Exists() bool {
	info, err := os.Stat(lm.path)
	return err == nil && !info.IsDir()
}

// Load reads the manifest. A missing or unreadable file yields an empty
// manifest; only a cancelled context is returned as an error.
func (lm *LocalManifest) Load(ctx context.Context) (Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	return lm.read(), nil
}

// Save replaces the manifest contents.
func (lm *LocalManifest) Save(ctx context.Context, m Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	return lm.write(m)
}

// Update applies fn to the current contents and writes the result while
// holding the file lock. An unchanged manifest is not rewritten, and a
// missing file is only created when fn adds entries.
func (lm *LocalManifest) Update(ctx context.Context, fn func(Manifest) Manifest) (Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	current := lm.read()
	next := fn(current.Clone()).Normalize()
	if next.Equal(current) {
		return next, nil
	}
	if err := lm.write(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Upsert records version for id.
func (lm *LocalManifest) Upsert(ctx context.Context, id, version string) error {
	_, err := lm.Update(ctx, func(m Manifest) Manifest {
		return m.Upsert(id, version)
	})
	return err
}

// Remove drops id from the manifest.
func (lm *LocalManifest) Remove(ctx context.Context, id string) error {
	_, err := lm.Update(ctx, func(m Manifest) Manifest {
		return m.Remove(id)
	})
	return err
}

func (lm *LocalManifest) read() Manifest {
	data, err := os.ReadFile(lm.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			lm.log.Warn("Failed to read manifest, treating as empty", "path", lm.path, "error", err)
		}
		return Manifest{}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		lm.log.Warn("Manifest is not valid JSON, treating as empty", "path", lm.path, "error", err)
		return Manifest{}
	}

	return m.Normalize()
}

// write replaces the file atomically through a temp file in the same directory.
func (lm *LocalManifest) write(m Manifest) error {
	m = m.Normalize()

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrManifestIO, err)
	}

	dir := filepath.Dir(lm.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrManifestIO, err)
	}

	tmp, err := os.CreateTemp(dir, "."+ManifestFileName+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrManifestIO, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrManifestIO, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrManifestIO, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrManifestIO, err)
	}
	if err := os.Rename(tmpPath, lm.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrManifestIO, err)
	}

	lm.log.Debug("Wrote manifest", "path", lm.path, "entries", len(m))
	return nil
}
