package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/config"
	"github.com/bnema/archectl/internal/logger"
	"github.com/bnema/archectl/internal/ui/styles"
)

// Version info set via ldflags at build time
var (
	version = "dev"
	commit  = "unknown"
)

var (
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "archectl",
	Short:   "ArcheRage addon manager",
	Version: version + " (" + commit + ")",
	Long: `A Go CLI tool to browse, install and update ArcheRage addons.
Installed addons are tracked in the addon folder and, when logged in,
mirrored to your profile so every machine sees the same list.

Quick start:
  archectl explore            Browse the catalog interactively
  archectl list               List the catalog
  archectl install <id>       Install an addon
  archectl update             Update every outdated addon
  archectl login              Sync installed addons with your profile
  archectl rate <id> <1-5>    Rate an addon
  archectl dev publish <zip>  Publish an addon (developer accounts)`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init(verbose); err != nil {
			return err
		}

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

// Execute runs the command tree, cancelling on SIGINT and SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Get().Error("Command failed", "error", err)
		_, _ = os.Stderr.WriteString(styles.FormatError(err.Error()) + "\n")
		stop()
		os.Exit(1)
	}
}

func getLogger() *log.Logger {
	return logger.Get()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose/debug logging")
}
