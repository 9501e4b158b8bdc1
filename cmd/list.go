package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/addons"
	"github.com/bnema/archectl/internal/catalog"
	"github.com/bnema/archectl/internal/ui/styles"
)

var (
	listCategory  string
	listSearch    string
	listStatus    string
	listInstalled bool
	listOutdated  bool
	listSort      string
	listDesc      bool
	listRefresh   bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List catalog addons",
	Long: `List addons from the catalog with their install state.

Examples:
  archectl list
  archectl list --category UI --sort downloads
  archectl list --search raid
  archectl list --outdated`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sortKey, err := catalog.ParseSortKey(listSort)
		if err != nil {
			return err
		}

		client := newCatalogClient()
		manager, err := newManager(client)
		if err != nil {
			return err
		}

		snap, err := client.Addons(ctx, listRefresh)
		if err != nil {
			return err
		}

		sess := currentSession(ctx, client)
		installed := effectiveInstalled(ctx, manager, client, sess)

		filter := catalog.Filter{
			Category:      listCategory,
			Query:         listSearch,
			Status:        addons.Status(listStatus),
			InstalledOnly: listInstalled,
			OutdatedOnly:  listOutdated,
			Sort:          sortKey,
			Descending:    listDesc,
		}
		records := filter.Apply(snap.Addons, installed)

		if len(records) == 0 {
			fmt.Println("No addons match")
			return nil
		}

		ratings := fetchRatings(ctx, client)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			styles.Title.Render("ID"),
			styles.Title.Render("NAME"),
			styles.Title.Render("VERSION"),
			styles.Title.Render("CATEGORY"),
			styles.Title.Render("DOWNLOADS"),
			styles.Title.Render("RATING"),
			styles.Title.Render("STATE"),
		)

		now := time.Now()
		for _, rec := range records {
			name := rec.Name
			if catalog.IsNew(rec, now) {
				name += " " + styles.FormatNewBadge()
			}
			if rec.Warning {
				name += " " + styles.FormatWarningBadge()
			}

			version := rec.Version
			if entry, ok := installed.Find(rec.ID); ok && entry.Version != rec.Version {
				version = entry.Version + " " + styles.Arrow.String() + " " + rec.Version
			}

			state := styles.FormatInstallState(addons.StateOf(rec, installed))
			if st := styles.FormatStatus(rec.Status); st != "" {
				state += " " + st
			}

			rating := "-"
			if r, ok := ratings[rec.ID]; ok {
				rating = styles.FormatRating(r.Average, r.Count)
			}

			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				rec.ID, name, version, rec.Category, humanize.Comma(rec.Downloads), rating, state)
		}

		_ = w.Flush()

		fmt.Printf("\n%d of %d addon(s)", len(records), len(snap.Addons))
		if !snap.Fresh {
			fmt.Printf(" (catalog from %s)", humanize.Time(snap.FetchedAt))
		}
		fmt.Println()

		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "Filter by category (UI, Combat, Social, Utility, Economy, Other, Installed)")
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Search name, author and description")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (ready-to-use, under-development, incompatible)")
	listCmd.Flags().BoolVar(&listInstalled, "installed", false, "Only installed addons")
	listCmd.Flags().BoolVar(&listOutdated, "outdated", false, "Only addons with an update")
	listCmd.Flags().StringVar(&listSort, "sort", "name", "Sort by name, downloads or updated")
	listCmd.Flags().BoolVar(&listDesc, "desc", false, "Reverse the sort order")
	listCmd.Flags().BoolVarP(&listRefresh, "refresh", "r", false, "Bypass the catalog cache")
	rootCmd.AddCommand(listCmd)
}
