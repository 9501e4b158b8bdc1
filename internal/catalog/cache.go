package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/archectl/internal/addons"
)

// DefaultCacheTTL is used when Options.CacheTTL is zero
const DefaultCacheTTL = 10 * time.Minute

// Snapshot is one view of the catalog
type Snapshot struct {
	Addons    []addons.AddonRecord
	FetchedAt time.Time
	// Fresh is true when the backend confirmed the list during this call.
	// A cached or stale list is not fresh.
	Fresh bool
}

// cacheData is the on-disk catalog cache
type cacheData struct {
	Version   int                  `json:"version"`
	FetchedAt time.Time            `json:"fetched_at"`
	Addons    []addons.AddonRecord `json:"addons"`
}

// cache stores the catalog and its ETag on disk
type cache struct {
	dir      string
	dataPath string
	etagPath string
}

func newCache(dir string) *cache {
	return &cache{
		dir:      dir,
		dataPath: filepath.Join(dir, "catalog.json"),
		etagPath: filepath.Join(dir, "catalog.etag"),
	}
}

// Addons returns the catalog, fetching from the backend if the cache is
// missing, stale or force is set. When the backend is unreachable a cached
// copy of any age is returned.
func (c *Client) Addons(ctx context.Context, force bool) (*Snapshot, error) {
	if c.cache == nil {
		records, err := c.FetchAddons(ctx)
		if err != nil {
			return nil, err
		}
		return &Snapshot{Addons: records, FetchedAt: time.Now(), Fresh: true}, nil
	}

	ttl := c.cacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	cached, cacheTime, err := c.cache.load()
	if err == nil && cached != nil {
		cacheAge := time.Since(cacheTime)
		if !force && cacheAge < ttl {
			c.log.Debug("Using cached catalog", "age", cacheAge.Round(time.Second))
			return &Snapshot{Addons: cached.Addons, FetchedAt: cached.FetchedAt}, nil
		}
		c.log.Debug("Catalog cache is stale", "age", cacheAge.Round(time.Second))
	}

	etag := ""
	if cached != nil {
		etag, _ = c.cache.loadETag()
	}

	records, newETag, notModified, err := c.fetchAddons(ctx, etag)
	if err != nil {
		if cached != nil && ctx.Err() == nil {
			c.log.Warn("Failed to fetch catalog, using stale cache",
				"error", err,
				"cache_age", time.Since(cacheTime).Round(time.Second))
			return &Snapshot{Addons: cached.Addons, FetchedAt: cached.FetchedAt}, nil
		}
		return nil, fmt.Errorf("failed to fetch catalog and no cache available: %w", err)
	}

	now := time.Now()
	if notModified {
		if cached == nil {
			return nil, fmt.Errorf("catalog returned not-modified but no cache exists")
		}
		cached.FetchedAt = now
		if err := c.cache.save(cached, newETag); err != nil {
			c.log.Warn("Failed to refresh catalog cache", "error", err)
		}
		return &Snapshot{Addons: cached.Addons, FetchedAt: now, Fresh: true}, nil
	}

	data := &cacheData{Version: CacheVersion, FetchedAt: now, Addons: records}
	if err := c.cache.save(data, newETag); err != nil {
		c.log.Warn("Failed to save catalog cache", "error", err)
	}

	return &Snapshot{Addons: records, FetchedAt: now, Fresh: true}, nil
}

// CacheInfo describes the catalog cache
type CacheInfo struct {
	HasCache    bool
	IsStale     bool
	LastUpdated time.Time
	Age         time.Duration
	TotalAddons int
	NewAddons   int
}

// CacheInfo reports the state of the on-disk catalog cache.
func (c *Client) CacheInfo() CacheInfo {
	if c.cache == nil {
		return CacheInfo{}
	}
	cached, cacheTime, err := c.cache.load()
	if err != nil || cached == nil {
		return CacheInfo{}
	}

	ttl := c.cacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	now := time.Now()
	newCount := 0
	for _, rec := range cached.Addons {
		if IsNew(rec, now) {
			newCount++
		}
	}

	age := now.Sub(cacheTime)
	return CacheInfo{
		HasCache:    true,
		IsStale:     age > ttl,
		LastUpdated: cacheTime,
		Age:         age,
		TotalAddons: len(cached.Addons),
		NewAddons:   newCount,
	}
}

// load reads the cache and its modification time. A cache written by a
// different format version is ignored.
func (c *cache) load() (*cacheData, time.Time, error) {
	info, err := os.Stat(c.dataPath)
	if err != nil {
		return nil, time.Time{}, err
	}

	data, err := os.ReadFile(c.dataPath)
	if err != nil {
		return nil, time.Time{}, err
	}

	var cached cacheData
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, time.Time{}, err
	}
	if cached.Version != CacheVersion {
		return nil, time.Time{}, fmt.Errorf("cache version %d, want %d", cached.Version, CacheVersion)
	}

	return &cached, info.ModTime(), nil
}

func (c *cache) save(data *cacheData, etag string) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	if err := os.WriteFile(c.dataPath, encoded, 0644); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}

	if etag == "" {
		_ = os.Remove(c.etagPath)
		return nil
	}
	return os.WriteFile(c.etagPath, []byte(etag), 0644)
}

func (c *cache) loadETag() (string, error) {
	data, err := os.ReadFile(c.etagPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
