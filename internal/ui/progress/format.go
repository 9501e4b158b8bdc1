package progress

import (
	"fmt"

	"github.com/bnema/archectl/internal/ui/styles"
)

// Plain-output counterparts of the Model, for pipes and --plain.

// FormatStep renders one step line
func FormatStep(state State, message string) string {
	return fmt.Sprintf("  %s %s", StyledIcon(state), StepStyle(state).Render(message))
}

func FormatSuccess(message string) string { return FormatStep(StateComplete, message) }
func FormatError(message string) string   { return FormatStep(StateError, message) }

// FormatWarning renders a warning line
func FormatWarning(message string) string {
	icon := iconStyleWarning.Render(GetIcons().Warning)
	return fmt.Sprintf("  %s %s", icon, styles.WarningText.Render(message))
}

// PrintStep prints one step line
func PrintStep(state State, message string) {
	fmt.Println(FormatStep(state, message))
}

func PrintInProgress(message string) { PrintStep(StateInProgress, message) }
func PrintComplete(message string)   { PrintStep(StateComplete, message) }
func PrintError(message string)      { PrintStep(StateError, message) }

// PrintSuccess is PrintComplete under the name commands use for results
func PrintSuccess(message string) { PrintComplete(message) }

// PrintSkipped prints a step that did not run and why
func PrintSkipped(message, reason string) {
	line := FormatStep(StateSkipped, message)
	if reason != "" {
		line += styles.MutedText.Render(" (" + reason + ")")
	}
	fmt.Println(line)
}

// PrintWarning prints a warning line
func PrintWarning(message string) {
	fmt.Println(FormatWarning(message))
}

// PrintTitle prints a header followed by a blank line
func PrintTitle(title string) {
	fmt.Printf("%s\n\n", styles.NormalText.Bold(true).Render(title))
}

// PrintDetail prints an indented muted line under a step
func PrintDetail(detail string) {
	fmt.Printf("      %s\n", styles.MutedText.Render(detail))
}

// FormatCount formats a counter like "3/12"
func FormatCount(current, total int) string {
	return fmt.Sprintf("%d/%d", current, total)
}

// BatchLine formats "Updating 3/12: Raid Frames" without an icon.
func BatchLine(action string, current, total int, name string) string {
	return fmt.Sprintf("%s %s: %s", action, styles.MutedText.Render(FormatCount(current, total)), name)
}
