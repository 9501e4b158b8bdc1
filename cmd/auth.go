package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/addons"
	"github.com/bnema/archectl/internal/catalog"
	"github.com/bnema/archectl/internal/config"
	"github.com/bnema/archectl/internal/logger"
	"github.com/bnema/archectl/internal/ui/styles"
)

var loginProvider string

var loginCmd = &cobra.Command{
	Use:   "login [callback-url]",
	Short: "Log in to sync installed addons with your profile",
	Long: `Log in through the catalog's OAuth provider.

Open the printed URL in a browser. After logging in, the browser is sent to
an archerage.addonsmanager:// address; copy that full address and paste it
at the prompt, or pass it as an argument.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()

		raw := ""
		if len(args) == 1 {
			raw = args[0]
		} else {
			fmt.Println("Open this URL to log in:")
			fmt.Println()
			fmt.Println("  " + client.AuthorizeURL(loginProvider))
			fmt.Println()
			fmt.Print("Paste the address your browser was sent to: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && strings.TrimSpace(line) == "" {
				return fmt.Errorf("no callback address given")
			}
			raw = line
		}

		cb, err := catalog.ParseCallback(raw)
		if err != nil {
			return err
		}
		sess, err := client.Login(ctx, cb)
		if err != nil {
			return err
		}
		if err := catalog.SaveSession(config.DataDir(), sess); err != nil {
			return err
		}
		fmt.Println(styles.FormatSuccess(fmt.Sprintf("Logged in as %s", sess.User.Username)))

		// Reconcile right away so the profile and local list agree.
		manager, err := newManager(client)
		if err != nil {
			return err
		}
		rec := addons.NewReconciler(manager.Local(), client, logger.Named("sync"))
		result, err := rec.Sync(ctx, sess)
		if err != nil {
			fmt.Println(styles.FormatWarning("Initial sync failed: " + err.Error()))
			return nil
		}
		fmt.Println(styles.MutedText.Render(fmt.Sprintf("  %s (%d addon(s))", result.Action, len(result.Local))))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := catalog.ClearSession(config.DataDir()); err != nil {
			return err
		}
		fmt.Println(styles.FormatSuccess("Logged out"))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()
		sess := currentSession(ctx, client)
		if !sess.LoggedIn() {
			fmt.Println("Not logged in (guest)")
			return nil
		}

		fmt.Printf("%-10s %s\n", "User:", sess.User.Username)
		fmt.Printf("%-10s %s\n", "ID:", sess.User.ID)
		role := sess.User.Role
		if role == "" {
			role = "user"
		}
		if sess.User.IsDeveloper() {
			role += " " + styles.CategoryBadge.Render("developer")
		}
		fmt.Printf("%-10s %s\n", "Role:", role)

		profile, err := client.FetchProfile(ctx, sess)
		switch {
		case err == nil:
			fmt.Printf("%-10s %d addon(s) recorded\n", "Profile:", len(profile.DownloadedAddons))
		case errors.Is(err, catalog.ErrNoProfile):
			fmt.Printf("%-10s %s\n", "Profile:", styles.MutedText.Render("none yet"))
		case errors.Is(err, catalog.ErrUnauthorized):
			fmt.Println(styles.FormatWarning("Session expired. Run 'archectl login' again."))
		default:
			getLogger().Warn("Failed to fetch profile", "error", err)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginProvider, "provider", catalog.DefaultProvider, "OAuth provider")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
