package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/addons"
	"github.com/bnema/archectl/internal/ui/styles"
)

var (
	uninstallFolder string
	uninstallYes    bool
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <id>",
	Short: "Remove an installed addon",
	Long: `Delete an addon's folder and drop it from the installed lists.

The folder defaults to the archive's file name without .zip. Use --folder when the
archive unpacked under a different name.

Examples:
  archectl uninstall 42
  archectl uninstall 42 --folder MyAddon --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()
		manager, err := newManager(client)
		if err != nil {
			return err
		}

		id := args[0]
		name := id
		folder := uninstallFolder
		if rec, _, err := findAddon(ctx, client, id); err == nil {
			name = rec.Name
			if folder == "" {
				folder = addons.FolderName(rec)
			}
		} else if folder == "" {
			return fmt.Errorf("%w (pass --folder to remove it anyway)", err)
		}

		if !uninstallYes && !confirm(fmt.Sprintf("Remove %s from %s?", name, manager.Paths().AddonDir)) {
			fmt.Println("Cancelled.")
			return nil
		}

		sess := currentSession(ctx, client)
		if err := manager.Uninstall(ctx, id, folder); err != nil {
			if !errors.Is(err, addons.ErrNotFound) {
				return err
			}
			fmt.Println(styles.FormatWarning(fmt.Sprintf("Folder %q not found, removing %s from the installed lists only", folder, name)))
		}
		if err := manager.Untrack(ctx, id, sess); err != nil {
			return reportUntrack(err)
		}

		fmt.Println(styles.FormatSuccess(fmt.Sprintf("Removed %s", name)))
		return nil
	},
}

func reportUntrack(err error) error {
	if errors.Is(err, addons.ErrRemoteSync) && !errors.Is(err, addons.ErrManifestIO) {
		fmt.Println(styles.FormatWarning("Removed locally, but your profile could not be updated: " + err.Error()))
		return nil
	}
	return err
}

func init() {
	uninstallCmd.Flags().StringVar(&uninstallFolder, "folder", "", "Folder name inside the addon directory")
	uninstallCmd.Flags().BoolVarP(&uninstallYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(uninstallCmd)
}
