package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/addons"
	"github.com/bnema/archectl/internal/ui/styles"
)

var scanCmd = &cobra.Command{
	Use:   "scan <zip-file|id>",
	Short: "Look for executables and shell calls in an addon archive",
	Long: `Scan an addon archive without installing it.

The argument is a local .zip file or a catalog id, which is downloaded
first. Executables, unsafe paths and Lua scripts calling os.execute or
io.popen are reported. A clean scan is not a guarantee.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		target := args[0]

		var (
			report *addons.ScanReport
			err    error
		)
		if st, statErr := os.Stat(target); statErr == nil && !st.IsDir() {
			report, err = addons.ScanFile(target)
		} else {
			client := newCatalogClient()
			manager, mErr := newManager(client)
			if mErr != nil {
				return mErr
			}
			rec, _, fErr := findAddon(ctx, client, target)
			if fErr != nil {
				return fErr
			}
			target = fmt.Sprintf("%s %s", rec.Name, rec.Version)
			report, err = manager.Inspect(ctx, rec, nil)
		}
		if err != nil {
			return err
		}

		if !report.Flagged() {
			fmt.Println(styles.FormatSuccess(fmt.Sprintf("%s: %d file(s) scanned, nothing suspicious", target, report.Scanned)))
			return nil
		}

		fmt.Println(styles.FormatWarning(fmt.Sprintf("%s: %d finding(s) in %d file(s)", target, len(report.Findings), report.Scanned)))
		width := 0
		for _, f := range report.Findings {
			width = max(width, len(f.Path))
		}
		for _, f := range report.Findings {
			fmt.Printf("  %s %s%s  %s\n", styles.Bullet, f.Path, strings.Repeat(" ", width-len(f.Path)), styles.WarningText.Render(f.Reason))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
