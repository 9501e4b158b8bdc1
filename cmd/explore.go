package cmd

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/addons"
	"github.com/bnema/archectl/internal/catalog"
	uiaddons "github.com/bnema/archectl/internal/ui/addons"
)

var exploreRefresh bool

var exploreCmd = &cobra.Command{
	Use:     "explore",
	Aliases: []string{"browse"},
	Short:   "Browse the addon catalog interactively",
	Long: `Browse, filter, install and remove addons in a terminal UI.

Keys:
  i   install or update    u   uninstall
  d   details              o   cycle sort order
  c   cycle category       r   refresh the catalog
  /   search               q   quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()
		manager, err := newManager(client)
		if err != nil {
			return err
		}
		sess := currentSession(ctx, client)

		actions := uiaddons.ExploreActions{
			Load: func(ctx context.Context, refresh bool) ([]addons.AddonRecord, addons.Manifest, catalog.CacheInfo, error) {
				snap, err := client.Addons(ctx, refresh)
				if err != nil {
					return nil, nil, catalog.CacheInfo{}, err
				}
				return snap.Addons, effectiveInstalled(ctx, manager, client, sess), client.CacheInfo(), nil
			},
			Install: func(ctx context.Context, rec addons.AddonRecord) (*addons.InstallResult, error) {
				return manager.Install(ctx, rec, sess, addons.InstallOptions{})
			},
			Uninstall: func(ctx context.Context, rec addons.AddonRecord) error {
				if err := manager.Uninstall(ctx, rec.ID, addons.FolderName(rec)); err != nil && !errors.Is(err, addons.ErrNotFound) {
					return err
				}
				return manager.Untrack(ctx, rec.ID, sess)
			},
		}

		m := uiaddons.NewExploreModel(ctx, actions, exploreRefresh)
		_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	},
}

func init() {
	exploreCmd.Flags().BoolVar(&exploreRefresh, "refresh", false, "Fetch the catalog even if the cache is fresh")
	rootCmd.AddCommand(exploreCmd)
}
