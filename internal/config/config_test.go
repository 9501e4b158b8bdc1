package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultAddonPath, cfg.AddonPath)
	assert.Equal(t, DefaultBackupPath, cfg.BackupPath)
	assert.Equal(t, DefaultAPIURL, cfg.API.URL)
	assert.Equal(t, DefaultAPIKey, cfg.API.Key)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTP.Timeout)
	assert.Equal(t, DefaultCatalogTTL, cfg.Catalog.CacheTTL)
}

func TestLoadFrom_File(t *testing.T) {
	dir := t.TempDir()
	content := `
addon_path: /games/archerage/addons
backup_path: D:\ArcheRage\Backup
api:
  url: http://localhost:54321
  key: anon
http:
  timeout: 5s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "/games/archerage/addons", cfg.AddonPath)
	assert.Equal(t, `D:\ArcheRage\Backup`, cfg.BackupPath)
	assert.Equal(t, "http://localhost:54321", cfg.API.URL)
	assert.Equal(t, "anon", cfg.API.Key)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("ARCHECTL_ADDON_PATH", "Games/Addons")
	t.Setenv("ARCHECTL_API_KEY", "from-env")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "Games/Addons", cfg.AddonPath)
	assert.Equal(t, "from-env", cfg.API.Key)
}

func TestLoadFrom_EmptyPathsFallBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("addon_path: \"\"\nbackup_path: \"  \"\n"), 0o644))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, DefaultAddonPath, cfg.AddonPath)
	assert.Equal(t, DefaultBackupPath, cfg.BackupPath)
}

func TestLoadFrom_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("addon_path: [unclosed"), 0o644))

	_, err := LoadFrom(dir)
	require.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	home := filepath.FromSlash("/home/player")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"relative", "Documents/ArcheRage/Addon", filepath.Join(home, "Documents", "ArcheRage", "Addon")},
		{"tilde", "~/Addons", filepath.Join(home, "Addons")},
		{"absolute", "/srv/addons", "/srv/addons"},
		{"drive marker", `C:\Games\Addon`, `C:\Games\Addon`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePath(tt.in, home))
		})
	}
}

func TestSet_WritesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("addon_path: old\n"), 0o644))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.Set("addon_path", "new/path"))

	reloaded, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "new/path", reloaded.AddonPath)
}

func TestSet_UnknownKey(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	err = cfg.Set("nope", "x")
	assert.ErrorIs(t, err, ErrUnknownKey)
}
