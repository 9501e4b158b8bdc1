package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/catalog"
	"github.com/bnema/archectl/internal/ui/styles"
)

var rateCmd = &cobra.Command{
	Use:   "rate <id> [1-5]",
	Short: "Rate an addon",
	Long: `Rate an addon from 1 to 5 stars. Rating again replaces your earlier
rating. Without a rating, show yours and the average.

Requires 'archectl login'.

Examples:
  archectl rate 42 5
  archectl rate 42`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()

		stars := 0
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < catalog.MinRating || n > catalog.MaxRating {
				return fmt.Errorf("%w: %q", catalog.ErrInvalidRating, args[1])
			}
			stars = n
		}

		sess := currentSession(ctx, client)
		if !sess.LoggedIn() {
			return fmt.Errorf("%w: run 'archectl login' to rate addons", catalog.ErrUnauthorized)
		}

		rec, _, err := findAddon(ctx, client, args[0])
		if err != nil {
			return err
		}

		if stars > 0 {
			if err := client.Rate(ctx, sess, rec.ID, stars); err != nil {
				return err
			}
			fmt.Println(styles.FormatSuccess(fmt.Sprintf("Rated %s %s", rec.Name, styles.FormatStars(stars))))
		} else {
			mine, err := client.UserRating(ctx, sess, rec.ID)
			if err != nil {
				return err
			}
			if mine == 0 {
				fmt.Printf("%-10s %s\n", "Yours:", styles.MutedText.Render("not rated"))
			} else {
				fmt.Printf("%-10s %s\n", "Yours:", styles.FormatStars(mine))
			}
		}

		ratings, err := client.FetchRatings(ctx)
		if err != nil {
			getLogger().Warn("Failed to fetch ratings", "error", err)
			return nil
		}
		if r, ok := ratings[rec.ID]; ok {
			fmt.Printf("%-10s %s\n", "Average:", styles.FormatRating(r.Average, r.Count))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rateCmd)
}
