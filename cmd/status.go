package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/addons"
	"github.com/bnema/archectl/internal/ui/styles"
)

var statusRefresh bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show installed addon counts and pending updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()
		manager, err := newManager(client)
		if err != nil {
			return err
		}
		sess := currentSession(ctx, client)

		fmt.Println(styles.Title.Render("Addon Status"))
		fmt.Printf("  %-12s %s\n", "Addon dir:", manager.Paths().AddonDir)
		fmt.Printf("  %-12s %s\n", "Backups:", manager.Paths().BackupDir)
		if sess.LoggedIn() {
			fmt.Printf("  %-12s %s (%s)\n", "Account:", sess.User.Username, sess.User.Role)
		} else {
			fmt.Printf("  %-12s %s\n", "Account:", styles.MutedText.Render("guest"))
		}
		fmt.Println()

		snap, err := client.Addons(ctx, statusRefresh)
		if err != nil {
			return err
		}
		installed := effectiveInstalled(ctx, manager, client, sess)
		stats := addons.ComputeStats(installed, snap.Addons)

		fmt.Printf("  %-12s %d\n", "Installed:", stats.Installed)
		fmt.Printf("  %-12s %s\n", "Up to date:", styles.SuccessText.Render(fmt.Sprint(stats.UpToDate)))
		if stats.Outdated > 0 {
			fmt.Printf("  %-12s %s\n", "Outdated:", styles.WarningText.Render(fmt.Sprint(stats.Outdated)))
		} else {
			fmt.Printf("  %-12s 0\n", "Outdated:")
		}

		if outdated := addons.Outdated(installed, snap.Addons); len(outdated) > 0 {
			fmt.Println()
			for _, rec := range outdated {
				entry, _ := installed.Find(rec.ID)
				fmt.Printf("  %s %s %s %s\n", rec.Name, styles.MutedText.Render(entry.Version), styles.Arrow, rec.Version)
			}
			fmt.Println(styles.MutedText.Render("\n  Run 'archectl update' to install them."))
		}

		info := client.CacheInfo()
		fmt.Println()
		if !info.HasCache {
			fmt.Printf("  %-12s %s\n", "Catalog:", styles.MutedText.Render("not cached"))
			return nil
		}
		state := "fresh"
		if info.IsStale {
			state = "stale"
		}
		fmt.Printf("  %-12s %s addons, %d new, updated %s (%s)\n", "Catalog:",
			humanize.Comma(int64(info.TotalAddons)), info.NewAddons, humanize.Time(info.LastUpdated), state)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusRefresh, "refresh", false, "Fetch the catalog even if the cache is fresh")
	rootCmd.AddCommand(statusCmd)
}
