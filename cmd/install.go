package cmd

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/addons"
	uiaddons "github.com/bnema/archectl/internal/ui/addons"
	"github.com/bnema/archectl/internal/ui/progress"
	"github.com/bnema/archectl/internal/ui/styles"
)

var (
	installYes   bool
	installForce bool
)

var installCmd = &cobra.Command{
	Use:   "install <id>",
	Short: "Install an addon from the catalog",
	Long: `Download an addon archive and merge it into the addon folder.

Files already present are backed up first. Text files (.txt, .json, .xml,
.ini, .cfg) are merged by appending the new content to the existing file;
other files are overwritten.

Examples:
  archectl install 42
  archectl install 42 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()
		manager, err := newManager(client)
		if err != nil {
			return err
		}

		rec, _, err := findAddon(ctx, client, args[0])
		if err != nil {
			return err
		}

		sess := currentSession(ctx, client)
		installed := effectiveInstalled(ctx, manager, client, sess)
		if !installForce && addons.StateOf(rec, installed) == addons.StateUpToDate {
			fmt.Println(styles.FormatSuccess(fmt.Sprintf("%s %s is already installed", rec.Name, rec.Version)))
			return nil
		}

		if !confirmRisky(rec) {
			fmt.Println("Cancelled.")
			return nil
		}

		title := fmt.Sprintf("Installing %s %s", rec.Name, rec.Version)
		if addons.StateOf(rec, installed) == addons.StateOutdated {
			title = fmt.Sprintf("Updating %s to %s", rec.Name, rec.Version)
		}

		return runInstall(ctx, manager, rec, sess, title)
	},
}

// confirmRisky asks before installing flagged or unfinished addons.
func confirmRisky(rec addons.AddonRecord) bool {
	if installYes {
		return true
	}
	switch {
	case rec.Warning:
		fmt.Println(styles.FormatWarning(fmt.Sprintf("%s was flagged by its publisher.", rec.Name)))
	case rec.Status == addons.StatusIncompatible:
		fmt.Println(styles.FormatWarning(fmt.Sprintf("%s is marked incompatible with the current client.", rec.Name)))
	case rec.Status == addons.StatusUnderDevelopment:
		fmt.Println(styles.FormatWarning(fmt.Sprintf("%s is still under development.", rec.Name)))
	default:
		return true
	}
	return confirm("Install anyway?")
}

// runInstall installs rec, drawing progress with bubbletea on a terminal.
func runInstall(ctx context.Context, manager *addons.Manager, rec addons.AddonRecord, sess *addons.Session, title string) error {
	run := func(ctx context.Context, opts addons.InstallOptions) (*addons.InstallResult, error) {
		return manager.Install(ctx, rec, sess, opts)
	}

	if !useTUI() {
		return runInstallPlain(ctx, run, title)
	}

	m := uiaddons.NewInstallModel(ctx, title, run)
	finalModel, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}

	fm := finalModel.(uiaddons.InstallModel)
	if fm.GetError() != nil {
		return fm.GetError()
	}
	if fm.Result() == nil {
		return errors.New("install interrupted")
	}
	return nil
}

func runInstallPlain(ctx context.Context, run uiaddons.InstallFunc, title string) error {
	progress.PrintTitle(title)

	opts := addons.InstallOptions{
		OnStage: func(s addons.Stage) { progress.PrintInProgress(s.String()) },
	}
	result, err := run(ctx, opts)
	if err != nil {
		progress.PrintError(err.Error())
		return err
	}

	summary := fmt.Sprintf("Installed %s %s (%s, %d file(s)",
		result.Addon.Name, result.Addon.Version, styles.FormatBytes(result.Bytes), len(result.Merge.Files))
	if n := result.Merge.BackedUp(); n > 0 {
		summary += fmt.Sprintf(", %d backed up", n)
	}
	progress.PrintSuccess(summary + ")")

	if result.SyncErr != nil {
		progress.PrintWarning("Installed, but not fully recorded: " + result.SyncErr.Error())
		if errors.Is(result.SyncErr, addons.ErrRemoteSync) {
			progress.PrintDetail("Run 'archectl sync' once you are back online or logged in again.")
		}
	}
	return nil
}

func init() {
	installCmd.Flags().BoolVarP(&installYes, "yes", "y", false, "Do not ask before installing flagged addons")
	installCmd.Flags().BoolVarP(&installForce, "force", "f", false, "Reinstall even when up to date")
	rootCmd.AddCommand(installCmd)
}
