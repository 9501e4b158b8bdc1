// Package config loads archectl settings from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// APIConfig points at the catalog/profile backend.
type APIConfig struct {
	URL string `mapstructure:"url"`
	Key string `mapstructure:"key"`
}

// Config represents the application configuration.
type Config struct {
	AddonPath  string    `mapstructure:"addon_path"`
	BackupPath string    `mapstructure:"backup_path"`
	API        APIConfig `mapstructure:"api"`
	HTTP       struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"http"`
	Catalog struct {
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"catalog"`
	Watch struct {
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"watch"`

	v   *viper.Viper
	dir string
}

// Keys that can be changed with `archectl config set`.
var settableKeys = map[string]bool{
	"addon_path":        true,
	"backup_path":       true,
	"api.url":           true,
	"api.key":           true,
	"http.timeout":      true,
	"catalog.cache_ttl": true,
	"watch.debounce":    true,
}

// ErrUnknownKey is returned by Set for keys outside the settable set.
var ErrUnknownKey = errors.New("unknown config key")

// Dir returns $XDG_CONFIG_HOME/archectl.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DataDir returns $XDG_DATA_HOME/archectl (session storage).
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// CacheDir returns $XDG_CACHE_HOME/archectl (catalog cache).
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// StateDir returns $XDG_STATE_HOME/archectl (logs).
func StateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// Load reads configuration from file and ARCHECTL_* environment variables.
// A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	return LoadFrom(Dir())
}

// LoadFrom is Load with an explicit config directory.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addon_path", DefaultAddonPath)
	v.SetDefault("backup_path", DefaultBackupPath)
	v.SetDefault("api.url", DefaultAPIURL)
	v.SetDefault("api.key", DefaultAPIKey)
	v.SetDefault("http.timeout", DefaultHTTPTimeout)
	v.SetDefault("catalog.cache_ttl", DefaultCatalogTTL)
	v.SetDefault("watch.debounce", DefaultWatchDebounce)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Empty values in the file fall back to defaults rather than the home dir.
	if strings.TrimSpace(cfg.AddonPath) == "" {
		cfg.AddonPath = DefaultAddonPath
	}
	if strings.TrimSpace(cfg.BackupPath) == "" {
		cfg.BackupPath = DefaultBackupPath
	}
	if cfg.HTTP.Timeout <= 0 {
		cfg.HTTP.Timeout = DefaultHTTPTimeout
	}

	cfg.v = v
	cfg.dir = dir
	return &cfg, nil
}

// Set updates a key and writes the config file.
func (c *Config) Set(key, value string) error {
	if !settableKeys[key] {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if c.v == nil {
		return fmt.Errorf("config was not loaded from disk")
	}

	c.v.Set(key, value)

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return c.v.WriteConfigAs(c.File())
}

// File returns the config file this Config reads from and writes to.
func (c *Config) File() string {
	if c.v != nil {
		if used := c.v.ConfigFileUsed(); used != "" {
			return used
		}
	}
	return filepath.Join(c.dir, "config.yaml")
}

// Settings returns every effective setting, for `config show`.
func (c *Config) Settings() map[string]any {
	if c.v == nil {
		return nil
	}
	return c.v.AllSettings()
}

// ResolvePath turns a configured path into an absolute one. A path that is
// absolute or carries a drive marker is used verbatim; anything else is
// relative to the home directory.
func ResolvePath(p, home string) string {
	if filepath.IsAbs(p) || strings.Contains(p, ":") {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		p = p[2:]
	}
	return filepath.Join(home, filepath.FromSlash(p))
}

// InstallPaths resolves the addon and backup roots against the home directory.
func (c *Config) InstallPaths() (addonDir, backupDir string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return ResolvePath(c.AddonPath, home), ResolvePath(c.BackupPath, home), nil
}
