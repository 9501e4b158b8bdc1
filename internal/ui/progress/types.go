package progress

import (
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/archectl/internal/ui/styles"
)

// State is where a step stands
type State int

const (
	StatePending State = iota
	StateInProgress
	StateComplete
	StateSkipped
	StateError
)

// Step is one line of a multi-step operation
type Step struct {
	Name  string // e.g. "Fetching catalog"
	State State
	// Note is shown after the name once the step is finished or skipped.
	Note  string
	Error error
}

// Icons - Nerd Font with ASCII fallback
type Icons struct {
	Check   string
	Cross   string
	Skip    string
	Pending string
	Warning string
	Spinner string
}

var (
	NerdFontIcons = Icons{
		Check:   "\uf00c",
		Cross:   "\uf00d",
		Skip:    "\uf05e",
		Pending: "\uf111",
		Warning: "\uf071",
		Spinner: "\uf110",
	}

	ASCIIIcons = Icons{
		Check:   "+",
		Cross:   "x",
		Skip:    "-",
		Pending: "o",
		Warning: "!",
		Spinner: "*",
	}
)

// GetIcons picks Nerd Font glyphs when ARCHECTL_NERD_FONTS=1.
func GetIcons() Icons {
	if os.Getenv("ARCHECTL_NERD_FONTS") == "1" {
		return NerdFontIcons
	}
	return ASCIIIcons
}

var (
	iconStyleCheck   = lipgloss.NewStyle().Foreground(styles.Success)
	iconStyleCross   = lipgloss.NewStyle().Foreground(styles.Error)
	iconStyleSkip    = lipgloss.NewStyle().Foreground(styles.Muted)
	iconStylePending = lipgloss.NewStyle().Foreground(styles.Muted)
	iconStyleWarning = lipgloss.NewStyle().Foreground(styles.Warning)
	iconStyleSpinner = lipgloss.NewStyle().Foreground(styles.Primary)
)

// StyledIcon returns the icon for state
func StyledIcon(state State) string {
	icons := GetIcons()
	switch state {
	case StateComplete:
		return iconStyleCheck.Render(icons.Check)
	case StateError:
		return iconStyleCross.Render(icons.Cross)
	case StateSkipped:
		return iconStyleSkip.Render(icons.Skip)
	case StateInProgress:
		return iconStyleSpinner.Render(icons.Spinner)
	default:
		return iconStylePending.Render(icons.Pending)
	}
}

// StepStyle returns the text style for state
func StepStyle(state State) lipgloss.Style {
	switch state {
	case StateComplete:
		return styles.SuccessText
	case StateError:
		return styles.ErrorText
	case StateInProgress:
		return styles.NormalText.Bold(true)
	default:
		return styles.MutedText
	}
}

// Progress tracks the steps of one operation
type Progress struct {
	Title       string
	Steps       []Step
	CurrentStep int
	SubProgress float64 // 0-100 within the current step
	SubDetail   string  // e.g. "1.2 MB / 3.4 MB", cleared when the step ends
}

// NewProgress creates a Progress with every step pending
func NewProgress(title string, stepNames ...string) *Progress {
	steps := make([]Step, len(stepNames))
	for i, name := range stepNames {
		steps[i] = Step{Name: name, State: StatePending}
	}
	return &Progress{Title: title, Steps: steps}
}

func (p *Progress) current() *Step {
	if p.CurrentStep < len(p.Steps) {
		return &p.Steps[p.CurrentStep]
	}
	return nil
}

// StartStep marks the current step as running
func (p *Progress) StartStep() {
	if s := p.current(); s != nil {
		s.State = StateInProgress
		p.SubProgress = 0
		p.SubDetail = ""
	}
}

// CompleteStep finishes the current step and advances
func (p *Progress) CompleteStep(note string) {
	p.finish(StateComplete, note)
}

// SkipStep marks the current step as not run and advances
func (p *Progress) SkipStep(reason string) {
	p.finish(StateSkipped, reason)
}

func (p *Progress) finish(state State, note string) {
	if s := p.current(); s != nil {
		s.State = state
		s.Note = note
		p.SubProgress = 0
		p.SubDetail = ""
		p.CurrentStep++
	}
}

// FailStep marks the current step as failed
func (p *Progress) FailStep(err error) {
	if s := p.current(); s != nil {
		s.State = StateError
		s.Error = err
	}
}

// SetSubProgress updates the bar within the current step
func (p *Progress) SetSubProgress(percent float64, detail string) {
	p.SubProgress = percent
	p.SubDetail = detail
}

// IsComplete reports whether every step finished, skipped steps included
func (p *Progress) IsComplete() bool {
	for _, step := range p.Steps {
		if step.State != StateComplete && step.State != StateSkipped {
			return false
		}
	}
	return true
}

// HasError reports whether any step failed
func (p *Progress) HasError() bool {
	for _, step := range p.Steps {
		if step.State == StateError {
			return true
		}
	}
	return false
}
