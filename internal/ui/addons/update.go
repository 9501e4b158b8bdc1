package addons

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/archectl/internal/addons"
	uiprogress "github.com/bnema/archectl/internal/ui/progress"
	"github.com/bnema/archectl/internal/ui/styles"
)

// Batch installs addons one at a time and records them together on Flush;
// *addons.UpdateBatch satisfies it.
type Batch interface {
	Update(ctx context.Context, rec addons.AddonRecord, opts addons.InstallOptions) error
	Flush(ctx context.Context) *addons.UpdateAllResult
}

// updateRun tracks the batch calls running on the program's command
// goroutines. Once closed no new call starts.
type updateRun struct {
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	flushed *addons.UpdateAllResult
}

func (r *updateRun) enter() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	return true
}

func (r *updateRun) close() *addons.UpdateAllResult {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushed
}

// UpdateAllModel is the bubbletea model for updating all outdated addons
type UpdateAllModel struct {
	spinner spinner.Model
	ctx     context.Context
	cancel  context.CancelFunc
	batch   Batch
	run     *updateRun

	outdated    []addons.AddonRecord
	current     int
	currentName string

	done    bool
	result  *addons.UpdateAllResult
	updated []string
	errors  []string
}

// NewUpdateAllModel creates a model that updates every record in outdated
// through batch.
func NewUpdateAllModel(ctx context.Context, batch Batch, outdated []addons.AddonRecord) UpdateAllModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	ctx, cancel := context.WithCancel(ctx)
	return UpdateAllModel{
		spinner:  s,
		ctx:      ctx,
		cancel:   cancel,
		batch:    batch,
		run:      &updateRun{},
		outdated: outdated,
	}
}

type (
	updateAllStartMsg struct{}
	updateAllDoneMsg  struct {
		result *addons.UpdateAllResult
	}
	updateOneMsg struct {
		rec addons.AddonRecord
		err error
	}
)

// Init initializes the model
func (m UpdateAllModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg { return updateAllStartMsg{} },
	)
}

func (m UpdateAllModel) updateNext() tea.Cmd {
	run := m.run
	if m.current >= len(m.outdated) {
		return func() tea.Msg {
			if !run.enter() {
				return nil
			}
			defer run.wg.Done()
			result := m.batch.Flush(m.ctx)
			run.mu.Lock()
			run.flushed = result
			run.mu.Unlock()
			return updateAllDoneMsg{result: result}
		}
	}

	rec := m.outdated[m.current]
	return func() tea.Msg {
		if !run.enter() {
			return nil
		}
		defer run.wg.Done()
		err := m.ctx.Err()
		if err == nil {
			err = m.batch.Update(m.ctx, rec, addons.InstallOptions{})
		}
		return updateOneMsg{rec: rec, err: err}
	}
}

// Update handles messages
func (m UpdateAllModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.cancel()
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case updateAllStartMsg:
		if len(m.outdated) == 0 {
			m.done = true
			return m, tea.Tick(time.Millisecond*300, func(t time.Time) tea.Msg {
				return tea.Quit()
			})
		}
		m.currentName = m.outdated[0].Name
		return m, m.updateNext()

	case updateOneMsg:
		if msg.err != nil {
			m.errors = append(m.errors, fmt.Sprintf("%s: %v", msg.rec.Name, msg.err))
		} else {
			m.updated = append(m.updated, fmt.Sprintf("%s %s", msg.rec.Name, msg.rec.Version))
		}

		m.current++
		if m.current < len(m.outdated) {
			m.currentName = m.outdated[m.current].Name
		}
		return m, m.updateNext()

	case updateAllDoneMsg:
		m.done = true
		m.result = msg.result
		return m, tea.Tick(time.Millisecond*300, func(t time.Time) tea.Msg {
			return tea.Quit()
		})
	}

	return m, nil
}

// View renders the model
func (m UpdateAllModel) View() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Foreground(styles.Text).
		Bold(true)
	b.WriteString(titleStyle.Render("Updating outdated addons"))
	b.WriteString("\n\n")

	if len(m.outdated) == 0 {
		b.WriteString(uiprogress.FormatSuccess("All addons are up to date"))
		b.WriteString("\n")
		return b.String()
	}

	if !m.done {
		count := fmt.Sprintf("%d/%d", min(m.current+1, len(m.outdated)), len(m.outdated))
		countStyle := lipgloss.NewStyle().Foreground(styles.Muted)
		line := fmt.Sprintf("  %s Updating %s %s",
			m.spinner.View(),
			countStyle.Render(count+":"),
			styles.NormalText.Bold(true).Render(m.currentName),
		)
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.done {
		for _, name := range m.updated {
			b.WriteString(uiprogress.FormatSuccess("Updated " + name))
			b.WriteString("\n")
		}

		for _, errMsg := range m.errors {
			b.WriteString(uiprogress.FormatError(errMsg))
			b.WriteString("\n")
		}

		if m.result != nil && m.result.SyncErr != nil {
			b.WriteString(uiprogress.FormatWarning("Updates not fully recorded: " + m.result.SyncErr.Error()))
			b.WriteString("\n")
		}

		b.WriteString("\n")
		summary := fmt.Sprintf("Updated: %d, Failed: %d", len(m.updated), len(m.errors))
		summaryStyle := lipgloss.NewStyle().Foreground(styles.Muted)
		b.WriteString(summaryStyle.Render("  " + summary))
		b.WriteString("\n")
	}

	return b.String()
}

// Wait cancels any update still running, blocks until it has returned and
// keeps further updates from starting. It returns the flushed result, or nil
// when the batch was never flushed and the caller still has to Flush it.
func (m UpdateAllModel) Wait() *addons.UpdateAllResult {
	m.cancel()
	return m.run.close()
}

// Result returns the batch result once the model is done
func (m UpdateAllModel) Result() *addons.UpdateAllResult {
	return m.result
}

// GetError returns an error when any update failed
func (m UpdateAllModel) GetError() error {
	if len(m.errors) > 0 {
		return fmt.Errorf("%d addon(s) failed to update", len(m.errors))
	}
	return nil
}
