package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/addons"
	"github.com/bnema/archectl/internal/catalog"
	"github.com/bnema/archectl/internal/logger"
	"github.com/bnema/archectl/internal/ui/progress"
	"github.com/bnema/archectl/internal/ui/styles"
)

var syncWatch bool

var syncSteps = []string{
	"Fetching catalog",
	"Reconciling installed lists",
	"Removing addons dropped from the catalog",
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local installed list with your profile",
	Long: `Bring the local installed list and your profile's list into agreement.

An existing local list wins and is pushed to the profile. Without one, the
profile's list is restored locally. Entries whose addon was removed from the
catalog are dropped.

With --watch, archectl keeps running and syncs again whenever the local
installed list changes on disk.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newCatalogClient()
		manager, err := newManager(client)
		if err != nil {
			return err
		}
		sess := currentSession(ctx, client)
		if !sess.LoggedIn() {
			fmt.Println(styles.MutedText.Render("Not logged in: only catalog cleanup runs. Use 'archectl login' to sync with your profile."))
		}

		s := &syncer{
			client:  client,
			manager: manager,
			sess:    sess,
			rec:     addons.NewReconciler(manager.Local(), client, logger.Named("sync")),
		}

		var report *syncReport
		if useTUI() && !syncWatch {
			report, err = s.runTUI(ctx)
		} else {
			report, err = s.run(ctx, &plainSteps{names: syncSteps})
		}
		if err != nil {
			return err
		}
		report.print()

		if !syncWatch {
			return nil
		}

		fmt.Println(styles.MutedText.Render(fmt.Sprintf("\nWatching %s (ctrl+c to stop)", manager.Local().Path())))
		return addons.WatchManifest(ctx, manager.Local(), cfg.Watch.Debounce, func() {
			report, err := s.run(ctx, &plainSteps{names: syncSteps})
			if err != nil {
				fmt.Println(styles.FormatError(err.Error()))
				return
			}
			report.print()
		})
	},
}

type syncer struct {
	client  *catalog.Client
	manager *addons.Manager
	sess    *addons.Session
	rec     *addons.Reconciler
}

type syncReport struct {
	result     *addons.SyncResult
	removed    []string
	catalogErr error
}

func (r *syncReport) print() {
	if r.catalogErr != nil {
		fmt.Println(styles.FormatWarning("Cleanup skipped: " + r.catalogErr.Error()))
	}
	if len(r.removed) > 0 {
		fmt.Println(styles.FormatWarning(fmt.Sprintf("Dropped %d addon(s) no longer in the catalog", len(r.removed))))
	}
	if r.result != nil && r.result.Action != addons.SyncGuest {
		fmt.Println(styles.FormatSuccess(fmt.Sprintf("%s (%d addon(s))", capitalize(r.result.Action.String()), len(r.result.Local))))
	}
}

// run drives the three sync steps, reporting each to steps. The catalog is
// always revalidated since cleanup needs a confirmed list; a catalog failure
// only skips cleanup.
func (s *syncer) run(ctx context.Context, steps progress.Sender) (*syncReport, error) {
	report := &syncReport{}

	steps.Send(progress.StartStepMsg{})
	snap, err := s.client.Addons(ctx, true)
	switch {
	case err != nil:
		report.catalogErr = err
		steps.Send(progress.SkipStepMsg{Reason: "unreachable"})
	case !snap.Fresh:
		report.catalogErr = errors.New("only a cached copy is available")
		steps.Send(progress.SkipStepMsg{Reason: "using cached copy"})
	default:
		steps.Send(progress.CompleteStepMsg{Note: fmt.Sprintf("%d addons", len(snap.Addons))})
	}

	steps.Send(progress.StartStepMsg{})
	if report.result, err = s.rec.Sync(ctx, s.sess); err != nil {
		steps.Send(progress.FailStepMsg{Err: err})
		return nil, err
	}
	steps.Send(progress.CompleteStepMsg{Note: report.result.Action.String()})

	steps.Send(progress.StartStepMsg{})
	if report.catalogErr != nil {
		steps.Send(progress.SkipStepMsg{Reason: "catalog not confirmed"})
		return report, nil
	}
	if report.removed, err = s.rec.Cleanup(ctx, snap.Addons); err != nil {
		steps.Send(progress.FailStepMsg{Err: err})
		return nil, err
	}

	// Push the cleaned list so the profile drops the same entries.
	if len(report.removed) > 0 && s.sess.LoggedIn() {
		if report.result, err = s.rec.Sync(ctx, s.sess); err != nil {
			steps.Send(progress.FailStepMsg{Err: err})
			return nil, err
		}
	}
	steps.Send(progress.CompleteStepMsg{Note: fmt.Sprintf("%d removed", len(report.removed))})
	return report, nil
}

func (s *syncer) runTUI(ctx context.Context) (*syncReport, error) {
	p := tea.NewProgram(progress.NewModel("Syncing addons", syncSteps...), tea.WithContext(ctx))

	type outcome struct {
		report *syncReport
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := s.run(ctx, p)
		done <- outcome{report, err}
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, err
	}
	out := <-done
	return out.report, out.err
}

// plainSteps prints step transitions for non-interactive output.
type plainSteps struct {
	names []string
	i     int
}

func (p *plainSteps) Send(msg tea.Msg) {
	if p.i >= len(p.names) {
		return
	}
	switch m := msg.(type) {
	case progress.CompleteStepMsg:
		name := p.names[p.i]
		if m.Note != "" {
			name += " (" + m.Note + ")"
		}
		progress.PrintComplete(name)
		p.i++
	case progress.SkipStepMsg:
		progress.PrintSkipped(p.names[p.i], m.Reason)
		p.i++
	case progress.FailStepMsg:
		progress.PrintError(fmt.Sprintf("%s: %v", p.names[p.i], m.Err))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func init() {
	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "Keep running and sync on every local change")
	rootCmd.AddCommand(syncCmd)
}
