package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/bnema/archectl/internal/addons"
	"github.com/bnema/archectl/internal/catalog"
	"github.com/bnema/archectl/internal/config"
	"github.com/bnema/archectl/internal/logger"
	"github.com/bnema/archectl/internal/ui/styles"
)

var plainOutput bool

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: cfg.HTTP.Timeout}
}

func newCatalogClient() *catalog.Client {
	return catalog.New(catalog.Options{
		BaseURL:    cfg.API.URL,
		APIKey:     cfg.API.Key,
		HTTPClient: newHTTPClient(),
		CacheDir:   config.CacheDir(),
		CacheTTL:   cfg.Catalog.CacheTTL,
		Logger:     logger.Named("catalog"),
	})
}

func newManager(client *catalog.Client) (*addons.Manager, error) {
	addonDir, backupDir, err := cfg.InstallPaths()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", addons.ErrConfig, err)
	}
	paths := addons.Paths{AddonDir: addonDir, BackupDir: backupDir}
	return addons.NewManager(paths, client, newHTTPClient(), logger.Named("install")), nil
}

// currentSession returns the saved session, refreshing tokens that are
// about to expire. Guests get nil.
func currentSession(ctx context.Context, client *catalog.Client) *addons.Session {
	dataDir := config.DataDir()
	sess, err := catalog.LoadSession(dataDir)
	if err != nil {
		getLogger().Warn("Ignoring unreadable session", "error", err)
		return nil
	}
	if sess == nil || !catalog.NeedsRefresh(sess, time.Now()) {
		return sess
	}

	refreshed, err := client.RefreshSession(ctx, sess)
	if err != nil {
		getLogger().Warn("Failed to refresh session", "error", err)
		fmt.Fprintln(os.Stderr, styles.FormatWarning("Your session could not be refreshed. Run 'archectl login' if profile sync fails."))
		return sess
	}
	if err := catalog.SaveSession(dataDir, refreshed); err != nil {
		getLogger().Warn("Failed to save refreshed session", "error", err)
	}
	return refreshed
}

// effectiveInstalled is the installed list used for status and listings:
// the local file, or the profile list when the local one is empty.
func effectiveInstalled(ctx context.Context, m *addons.Manager, client *catalog.Client, sess *addons.Session) addons.Manifest {
	local, err := m.Installed(ctx)
	if err != nil {
		getLogger().Warn("Failed to read installed list", "error", err)
	}

	var remote addons.Manifest
	if sess.LoggedIn() && len(local) == 0 {
		remote, err = client.ProfileManifest(sess).Load(ctx)
		if err != nil {
			getLogger().Warn("Failed to read profile installed list", "error", err)
		}
	}
	return addons.EffectiveManifest(local, remote)
}

// findAddon looks id up in the catalog, refetching once when a cached
// catalog does not know it.
func findAddon(ctx context.Context, client *catalog.Client, id string) (addons.AddonRecord, *catalog.Snapshot, error) {
	snap, err := client.Addons(ctx, false)
	if err != nil {
		return addons.AddonRecord{}, nil, err
	}
	if rec, ok := catalog.Find(snap.Addons, id); ok {
		return rec, snap, nil
	}
	if !snap.Fresh {
		if snap, err = client.Addons(ctx, true); err != nil {
			return addons.AddonRecord{}, nil, err
		}
		if rec, ok := catalog.Find(snap.Addons, id); ok {
			return rec, snap, nil
		}
	}
	return addons.AddonRecord{}, snap, fmt.Errorf("%w: no catalog addon with id %s", addons.ErrNotFound, id)
}

// fetchRatings returns the catalog's rating summaries, or nil when they
// cannot be fetched. Ratings are decoration; listings work without them.
func fetchRatings(ctx context.Context, client *catalog.Client) map[string]catalog.RatingSummary {
	ratings, err := client.FetchRatings(ctx)
	if err != nil {
		getLogger().Debug("Failed to fetch ratings", "error", err)
		return nil
	}
	return ratings
}

// useTUI reports whether progress should be drawn with bubbletea.
func useTUI() bool {
	if plainOutput {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// confirm asks a yes/no question on stdin. Anything but y/yes is no.
func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Disable interactive progress output")
}
