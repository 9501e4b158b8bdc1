package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/addons"
	"github.com/bnema/archectl/internal/ui/styles"
)

var infoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show addon details",
	Args:  cobra.ExactArgs(1),
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

		fmt.Println(styles.AddonName.Render(rec.Name) + " " + styles.AddonVersion.Render(rec.Version))
		if rec.Author != "" {
			fmt.Println(styles.AddonAuthor.Render("by " + rec.Author))
		}
		fmt.Println()

		fmt.Printf("ID:          %s\n", rec.ID)
		fmt.Printf("Category:    %s\n", rec.Category)
		fmt.Printf("Downloads:   %s\n", humanize.Comma(rec.Downloads))
		if r, ok := fetchRatings(ctx, client)[rec.ID]; ok {
			fmt.Printf("Rating:      %s\n", styles.FormatRating(r.Average, r.Count))
		}
		if !rec.UploadDate.IsZero() {
			fmt.Printf("Uploaded:    %s (%s)\n", rec.UploadDate.Format("2006-01-02"), humanize.Time(rec.UploadDate))
		}
		if st := styles.FormatStatus(rec.Status); st != "" {
			fmt.Printf("Status:      %s\n", st)
		}

		state := addons.StateOf(rec, installed)
		fmt.Printf("Installed:   %s", styles.FormatInstallState(state))
		if entry, ok := installed.Find(rec.ID); ok {
			fmt.Printf(" (%s)", entry.Version)
		}
		fmt.Println()

		if rec.Description != "" {
			fmt.Printf("\n%s\n", rec.Description)
		}
		if rec.Warning {
			fmt.Println()
			fmt.Println(styles.FormatWarning("The publisher flagged this addon. Review it before installing."))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
