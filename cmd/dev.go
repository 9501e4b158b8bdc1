package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bnema/archectl/internal/addons"
	"github.com/bnema/archectl/internal/catalog"
	"github.com/bnema/archectl/internal/ui/styles"
)

var (
	pubName        string
	pubVersion     string
	pubCategory    string
	pubDescription string
	pubStatus      string
	pubArchive     string
	unpublishYes   bool
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Publish and manage your addons",
	Long: `Developer commands. They need a logged-in account with the
developer role.`,
}

var devListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the addons you published",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()
		sess, err := developerSession(ctx, client)
		if err != nil {
			return err
		}

		snap, err := client.Addons(ctx, true)
		if err != nil {
			return err
		}
		mine := catalog.Published(snap.Addons, sess)
		if len(mine) == 0 {
			fmt.Println("You have not published any addon")
			return nil
		}

		ratings := fetchRatings(ctx, client)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			styles.Title.Render("ID"),
			styles.Title.Render("NAME"),
			styles.Title.Render("VERSION"),
			styles.Title.Render("DOWNLOADS"),
			styles.Title.Render("RATING"),
		)
		for _, rec := range mine {
			name := rec.Name
			if rec.Warning {
				name += " " + styles.FormatWarningBadge()
			}
			if st := styles.FormatStatus(rec.Status); st != "" {
				name += " " + st
			}
			rating := "-"
			if r, ok := ratings[rec.ID]; ok {
				rating = styles.FormatRating(r.Average, r.Count)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rec.ID, name, rec.Version, humanize.Comma(rec.Downloads), rating)
		}
		return w.Flush()
	},
}

var devPublishCmd = &cobra.Command{
	Use:   "publish <archive.zip>",
	Short: "Publish a new addon",
	Long: `Upload a zip archive and add it to the catalog. The archive is scanned
first; flagged archives are published with a warning badge.

Examples:
  archectl dev publish RaidFrames.zip --name "Raid Frames" --version 1.0 --category UI`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()
		sess, err := developerSession(ctx, client)
		if err != nil {
			return err
		}

		pub := catalog.Publication{
			Name:        pubName,
			Description: pubDescription,
			Version:     pubVersion,
			Category:    pubCategory,
			Status:      addons.Status(pubStatus),
		}
		result, err := client.Publish(ctx, sess, pub, args[0])
		if err != nil {
			return err
		}

		reportScan(result.Scan)
		fmt.Println(styles.FormatSuccess(fmt.Sprintf("Published %s %s (id %s)", result.Addon.Name, result.Addon.Version, result.Addon.ID)))
		return nil
	},
}

var devUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update one of your addons",
	Long: `Change the metadata of a published addon. Flags that are not given
keep their current value. --archive uploads a new archive.

Examples:
  archectl dev update 42 --version 1.1 --archive RaidFrames.zip
  archectl dev update 42 --status incompatible`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()
		sess, err := developerSession(ctx, client)
		if err != nil {
			return err
		}

		rec, err := publishedAddon(ctx, client, args[0])
		if err != nil {
			return err
		}

		pub := publicationFlags(cmd.Flags(), rec)
		result, err := client.UpdatePublication(ctx, sess, rec, pub, pubArchive)
		if err != nil {
			return err
		}

		if result.Scan != nil {
			reportScan(result.Scan)
		}
		fmt.Println(styles.FormatSuccess(fmt.Sprintf("Updated %s to %s", result.Addon.Name, result.Addon.Version)))
		return nil
	},
}

var devDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove one of your addons from the catalog",
	Long: `Delete a published addon, its archives and its entry in every user's
installed list. Installed copies stay on players' machines.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()
		sess, err := developerSession(ctx, client)
		if err != nil {
			return err
		}

		rec, err := publishedAddon(ctx, client, args[0])
		if err != nil {
			return err
		}
		if !unpublishYes && !confirm(fmt.Sprintf("Delete %s from the catalog?", rec.Name)) {
			fmt.Println("Cancelled.")
			return nil
		}

		if err := client.Unpublish(ctx, sess, rec); err != nil {
			return err
		}
		fmt.Println(styles.FormatSuccess("Deleted " + rec.Name))
		return nil
	},
}

// developerSession returns the logged-in session when it has the developer
// role.
func developerSession(ctx context.Context, client *catalog.Client) (*addons.Session, error) {
	sess := currentSession(ctx, client)
	if !sess.LoggedIn() {
		return nil, fmt.Errorf("%w: run 'archectl login' first", catalog.ErrUnauthorized)
	}
	if !sess.User.IsDeveloper() {
		return nil, catalog.ErrNotDeveloper
	}
	return sess, nil
}

// publishedAddon looks id up in a freshly fetched catalog so the owner
// check sees the current row.
func publishedAddon(ctx context.Context, client *catalog.Client, id string) (addons.AddonRecord, error) {
	snap, err := client.Addons(ctx, true)
	if err != nil {
		return addons.AddonRecord{}, err
	}
	rec, ok := catalog.Find(snap.Addons, id)
	if !ok {
		return addons.AddonRecord{}, fmt.Errorf("%w: no catalog addon with id %s", addons.ErrNotFound, id)
	}
	return rec, nil
}

// publicationFlags builds the publication from rec, overridden by the
// flags given on the command line.
func publicationFlags(flags *pflag.FlagSet, rec addons.AddonRecord) catalog.Publication {
	pub := catalog.Publication{
		Name:        rec.Name,
		Description: rec.Description,
		Version:     rec.Version,
		Category:    rec.Category,
		Status:      rec.Status,
	}
	if flags.Changed("name") {
		pub.Name = pubName
	}
	if flags.Changed("description") {
		pub.Description = pubDescription
	}
	if flags.Changed("version") {
		pub.Version = pubVersion
	}
	if flags.Changed("category") {
		pub.Category = pubCategory
	}
	if flags.Changed("status") {
		pub.Status = addons.Status(pubStatus)
	}
	return pub
}

func reportScan(report *addons.ScanReport) {
	if !report.Flagged() {
		fmt.Println(styles.MutedText.Render(fmt.Sprintf("  Scanned %d file(s), nothing suspicious", report.Scanned)))
		return
	}
	fmt.Println(styles.FormatWarning("The archive will carry a warning badge:"))
	for _, f := range report.Findings {
		fmt.Printf("  %s %s: %s\n", styles.Bullet, f.Path, f.Reason)
	}
}

func addPublicationFlags(c *cobra.Command) {
	c.Flags().StringVar(&pubName, "name", "", "Addon name")
	c.Flags().StringVar(&pubVersion, "version", "", "Addon version")
	c.Flags().StringVar(&pubCategory, "category", catalog.CategoryOther, "Category (UI, Combat, Social, Utility, Economy, Other)")
	c.Flags().StringVar(&pubDescription, "description", "", "Short description")
	c.Flags().StringVar(&pubStatus, "status", string(addons.StatusReady), "Status (ready-to-use, under-development, incompatible)")
}

func init() {
	addPublicationFlags(devPublishCmd)
	_ = devPublishCmd.MarkFlagRequired("name")
	_ = devPublishCmd.MarkFlagRequired("version")

	addPublicationFlags(devUpdateCmd)
	devUpdateCmd.Flags().StringVar(&pubArchive, "archive", "", "Replace the archive with this zip")

	devDeleteCmd.Flags().BoolVarP(&unpublishYes, "yes", "y", false, "Do not ask for confirmation")

	devCmd.AddCommand(devListCmd, devPublishCmd, devUpdateCmd, devDeleteCmd)
	rootCmd.AddCommand(devCmd)
}
