package addons

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/archectl/internal/addons"
	uiprogress "github.com/bnema/archectl/internal/ui/progress"
	"github.com/bnema/archectl/internal/ui/styles"
)

// InstallFunc runs one install, reporting through opts.
type InstallFunc func(ctx context.Context, opts addons.InstallOptions) (*addons.InstallResult, error)

// installStages are the steps shown, in order
var installStages = []addons.Stage{
	addons.StagePrepare,
	addons.StageDownload,
	addons.StageMerge,
	addons.StageRecord,
}

// InstallModel is the bubbletea model for addon installation progress
type InstallModel struct {
	spinner     spinner.Model
	progressBar progress.Model
	ctx         context.Context
	run         InstallFunc
	title       string
	events      chan tea.Msg

	steps       []uiprogress.Step
	currentStep int
	subProgress float64
	subDetail   string

	done   bool
	err    error
	result *addons.InstallResult
	width  int
}

// NewInstallModel creates an install progress model. title is shown as
// the header, e.g. "Installing Raid Frames 2.1".
func NewInstallModel(ctx context.Context, title string, run InstallFunc) InstallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(30),
		progress.WithoutPercentage(),
	)

	steps := make([]uiprogress.Step, len(installStages))
	for i, stage := range installStages {
		steps[i] = uiprogress.Step{Name: stage.String(), State: uiprogress.StatePending}
	}

	return InstallModel{
		spinner:     s,
		progressBar: p,
		ctx:         ctx,
		run:         run,
		title:       title,
		events:      make(chan tea.Msg, 64),
		steps:       steps,
		currentStep: -1,
		width:       80,
	}
}

// Messages
type (
	installStageMsg    struct{ stage addons.Stage }
	installCompleteMsg struct{ result *addons.InstallResult }
	installErrorMsg    struct{ err error }
)

// channelSender forwards progress messages into the model's event channel.
type channelSender chan tea.Msg

func (c channelSender) Send(msg tea.Msg) {
	select {
	case c <- msg:
	default:
		// Drop progress frames the view has not caught up with.
	}
}

// Init initializes the model
func (m InstallModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tea.WindowSize(),
		m.startInstall(),
		waitForEvent(m.events),
	)
}

func (m InstallModel) startInstall() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		opts := addons.InstallOptions{
			// Stage changes must not be dropped, so they block.
			OnStage:    func(s addons.Stage) { events <- installStageMsg{stage: s} },
			OnDownload: uiprogress.ByteProgress(channelSender(events)),
		}
		result, err := m.run(m.ctx, opts)
		if err != nil {
			events <- installErrorMsg{err: err}
		} else {
			events <- installCompleteMsg{result: result}
		}
		return nil
	}
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func stepIndex(stage addons.Stage) int {
	for i, s := range installStages {
		if s == stage {
			return i
		}
	}
	return -1
}

// Update handles messages
func (m InstallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = min(msg.Width-10, 40)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progressBar.Update(msg)
		m.progressBar = progressModel.(progress.Model)
		return m, cmd

	case installStageMsg:
		idx := stepIndex(msg.stage)
		for i := 0; i < idx; i++ {
			m.steps[i].State = uiprogress.StateComplete
		}
		if idx >= 0 {
			m.steps[idx].State = uiprogress.StateInProgress
			m.currentStep = idx
		}
		m.subProgress = 0
		m.subDetail = ""
		return m, waitForEvent(m.events)

	case uiprogress.SubProgressMsg:
		m.subProgress = msg.Percent
		m.subDetail = msg.Detail
		return m, tea.Batch(m.progressBar.SetPercent(msg.Percent/100), waitForEvent(m.events))

	case installCompleteMsg:
		for i := range m.steps {
			m.steps[i].State = uiprogress.StateComplete
		}
		m.done = true
		m.result = msg.result
		return m, tea.Tick(time.Millisecond*300, func(t time.Time) tea.Msg {
			return tea.Quit()
		})

	case installErrorMsg:
		if m.currentStep >= 0 {
			m.steps[m.currentStep].State = uiprogress.StateError
		}
		m.done = true
		m.err = msg.err
		return m, tea.Tick(time.Millisecond*500, func(t time.Time) tea.Msg {
			return tea.Quit()
		})
	}

	return m, nil
}

// View renders the model
func (m InstallModel) View() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Foreground(styles.Text).
		Bold(true)
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	indent := "  "
	for i, step := range m.steps {
		icon := uiprogress.StyledIcon(step.State)
		textStyle := uiprogress.StepStyle(step.State)

		if step.State == uiprogress.StateInProgress {
			icon = m.spinner.View()
		}

		line := fmt.Sprintf("%s%s %s", indent, icon, textStyle.Render(step.Name))
		b.WriteString(line)
		b.WriteString("\n")

		if installStages[i] == addons.StageDownload && step.State == uiprogress.StateInProgress && m.subDetail != "" {
			subDetailStyle := lipgloss.NewStyle().Foreground(styles.Muted)
			b.WriteString(indent + "    " + subDetailStyle.Render(m.subDetail) + "\n")
			if m.subProgress > 0 {
				b.WriteString(indent + "  " + m.progressBar.View() + "\n")
			}
		}
	}

	if m.done {
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(uiprogress.FormatError(m.err.Error()))
		} else if m.result != nil {
			b.WriteString(uiprogress.FormatSuccess(fmt.Sprintf("Installed %s %s", m.result.Addon.Name, m.result.Addon.Version)))
			if m.result.SyncErr != nil {
				b.WriteString("\n")
				b.WriteString(uiprogress.FormatWarning("Installed, but not fully recorded: " + m.result.SyncErr.Error()))
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

// GetError returns any error that occurred
func (m InstallModel) GetError() error {
	return m.err
}

// Result returns the install result, nil until the install succeeded
func (m InstallModel) Result() *addons.InstallResult {
	return m.result
}
