package progress

import (
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/archectl/internal/ui/styles"
)

// Model draws a Progress driven by messages sent from a worker goroutine.
// It quits once every step is finished or one fails.
type Model struct {
	progress    *Progress
	spinner     spinner.Model
	progressBar progress.Model
	done        bool
	err         error
}

// NewModel creates a model with the given title and steps
func NewModel(title string, stepNames ...string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(30),
		progress.WithoutPercentage(),
	)

	return Model{
		progress:    NewProgress(title, stepNames...),
		spinner:     s,
		progressBar: bar,
	}
}

// Step messages, sent in order for the current step.
type (
	StartStepMsg    struct{}
	CompleteStepMsg struct{ Note string }
	SkipStepMsg     struct{ Reason string }
	FailStepMsg     struct{ Err error }

	// SubProgressMsg moves the bar of the running step
	SubProgressMsg struct {
		Percent float64
		Detail  string
	}
)

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.WindowSize())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.progressBar.Width = min(msg.Width-10, 40)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.progressBar.Update(msg)
		m.progressBar = bar.(progress.Model)
		return m, cmd

	case StartStepMsg:
		m.progress.StartStep()

	case CompleteStepMsg:
		m.progress.CompleteStep(msg.Note)
		return m.quitIfComplete()

	case SkipStepMsg:
		m.progress.SkipStep(msg.Reason)
		return m.quitIfComplete()

	case FailStepMsg:
		m.progress.FailStep(msg.Err)
		m.err = msg.Err
		m.done = true
		return m, tea.Quit

	case SubProgressMsg:
		m.progress.SetSubProgress(msg.Percent, msg.Detail)
		return m, m.progressBar.SetPercent(msg.Percent / 100)
	}

	return m, nil
}

func (m Model) quitIfComplete() (tea.Model, tea.Cmd) {
	if m.progress.IsComplete() {
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	title := lipgloss.NewStyle().Foreground(styles.Text).Bold(true)
	b.WriteString(title.Render(m.progress.Title))
	b.WriteString("\n\n")

	note := lipgloss.NewStyle().Foreground(styles.Muted)
	for _, step := range m.progress.Steps {
		icon := StyledIcon(step.State)
		if step.State == StateInProgress {
			icon = m.spinner.View()
		}
		b.WriteString("  " + icon + " " + StepStyle(step.State).Render(step.Name))

		switch {
		case step.State == StateError && step.Error != nil:
			b.WriteString(styles.ErrorText.Render(": " + step.Error.Error()))
		case step.Note != "":
			b.WriteString(note.Render(" (" + step.Note + ")"))
		}
		b.WriteString("\n")

		if step.State == StateInProgress && m.progress.SubProgress > 0 {
			if m.progress.SubDetail != "" {
				b.WriteString("      " + note.Render(m.progress.SubDetail) + "\n")
			}
			b.WriteString("    " + m.progressBar.View() + "\n")
		}
	}

	b.WriteString("\n")
	return b.String()
}

// GetError returns the error of the failed step, if any
func (m Model) GetError() error {
	return m.err
}

// IsDone reports whether the model stopped on its own
func (m Model) IsDone() bool {
	return m.done
}
