package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/addons"
	uiaddons "github.com/bnema/archectl/internal/ui/addons"
	"github.com/bnema/archectl/internal/ui/progress"
	"github.com/bnema/archectl/internal/ui/styles"
)

var updateRefresh bool

var updateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update installed addons",
	Long: `Install the catalog version of outdated addons.

Without an id every outdated addon is updated and the installed lists are
written once at the end.

Examples:
  archectl update
  archectl update 42`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()
		manager, err := newManager(client)
		if err != nil {
			return err
		}
		sess := currentSession(ctx, client)
		installed := effectiveInstalled(ctx, manager, client, sess)

		if len(args) == 1 {
			rec, _, err := findAddon(ctx, client, args[0])
			if err != nil {
				return err
			}
			switch addons.StateOf(rec, installed) {
			case addons.StateNotInstalled:
				return fmt.Errorf("%w: %s is not installed, use 'archectl install %s'", addons.ErrNotFound, rec.Name, rec.ID)
			case addons.StateUpToDate:
				fmt.Println(styles.FormatSuccess(fmt.Sprintf("%s %s is up to date", rec.Name, rec.Version)))
				return nil
			}
			return runInstall(ctx, manager, rec, sess, fmt.Sprintf("Updating %s to %s", rec.Name, rec.Version))
		}

		snap, err := client.Addons(ctx, updateRefresh)
		if err != nil {
			return err
		}
		outdated := addons.Outdated(installed, snap.Addons)
		if len(outdated) == 0 {
			fmt.Println(styles.FormatSuccess("All addons are up to date"))
			return nil
		}

		var result *addons.UpdateAllResult
		if useTUI() {
			result, err = runUpdateAllTUI(ctx, manager.NewUpdateBatch(sess), outdated)
		} else {
			result = runUpdateAllPlain(ctx, manager, sess, outdated)
		}
		if err != nil {
			return err
		}
		return reportUpdateAll(result)
	},
}

func runUpdateAllTUI(ctx context.Context, batch *addons.UpdateBatch, outdated []addons.AddonRecord) (*addons.UpdateAllResult, error) {
	m := uiaddons.NewUpdateAllModel(ctx, batch, outdated)
	_, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()

	// The program may stop while an update is still writing files; the batch
	// is only flushed once that update has returned.
	result := m.Wait()
	if result == nil {
		result = batch.Flush(ctx)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func runUpdateAllPlain(ctx context.Context, manager *addons.Manager, sess *addons.Session, outdated []addons.AddonRecord) *addons.UpdateAllResult {
	progress.PrintTitle(fmt.Sprintf("Updating %d addon(s)", len(outdated)))
	current := 0
	return manager.UpdateAll(ctx, outdated, sess, func(rec addons.AddonRecord, err error) {
		current++
		line := progress.BatchLine("Updating", current, len(outdated), rec.Name)
		if err != nil {
			progress.PrintError(fmt.Sprintf("%s: %v", line, err))
			return
		}
		progress.PrintComplete(line)
	})
}

func reportUpdateAll(result *addons.UpdateAllResult) error {
	fmt.Println()
	if len(result.Updated) > 0 {
		fmt.Println(styles.FormatSuccess(fmt.Sprintf("Updated %d addon(s)", len(result.Updated))))
	}
	for _, f := range result.Failed {
		fmt.Println(styles.FormatError(fmt.Sprintf("%s: %v", f.Addon.Name, f.Err)))
	}
	if result.SyncErr != nil {
		fmt.Println(styles.FormatWarning("Updated, but not fully recorded: " + result.SyncErr.Error()))
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d addon(s) failed to update", len(result.Failed))
	}
	return nil
}

func init() {
	updateCmd.Flags().BoolVar(&updateRefresh, "refresh", false, "Fetch the catalog even if the cache is fresh")
	rootCmd.AddCommand(updateCmd)
}
