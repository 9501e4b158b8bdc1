package styles

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/bnema/archectl/internal/addons"
)

// Color palette - coherent with charmbracelet style
var (
	Primary   = lipgloss.Color("#7D56F4") // Purple (charmbracelet brand)
	Secondary = lipgloss.Color("#FF79C6") // Pink accent
	Success   = lipgloss.Color("#50FA7B") // Green
	Warning   = lipgloss.Color("#FFB86C") // Orange
	Error     = lipgloss.Color("#FF5555") // Red
	Muted     = lipgloss.Color("#6272A4") // Muted blue-gray
	Text      = lipgloss.Color("#F8F8F2") // Light text
	Subtle    = lipgloss.Color("#44475A") // Dark background accent
)

// Base styles
var (
	// Title style for headers
	Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFDF5")).
		Background(Primary).
		Padding(0, 1).
		Bold(true)

	// Normal text
	NormalText = lipgloss.NewStyle().
			Foreground(Text)

	// Muted text
	MutedText = lipgloss.NewStyle().
			Foreground(Muted)

	// Success text
	SuccessText = lipgloss.NewStyle().
			Foreground(Success)

	// Warning text
	WarningText = lipgloss.NewStyle().
			Foreground(Warning)

	// Error text
	ErrorText = lipgloss.NewStyle().
			Foreground(Error)

	// App container
	App = lipgloss.NewStyle().
		Padding(1, 2)

	// Status bar of the catalog browser
	StatusBarBg = Subtle

	StatusBarLeft = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(Primary)

	StatusBarRight = lipgloss.NewStyle().
			Foreground(Muted).
			Background(Subtle)

	// Help text
	Help = lipgloss.NewStyle().
		Foreground(Muted)

	// Spinner
	Spinner = lipgloss.NewStyle().
		Foreground(Primary)
)

// Symbols
var (
	CheckMark = lipgloss.NewStyle().Foreground(Success).SetString("✓")
	CrossMark = lipgloss.NewStyle().Foreground(Error).SetString("✗")
	Bullet    = lipgloss.NewStyle().Foreground(Primary).SetString("•")
	Arrow     = lipgloss.NewStyle().Foreground(Primary).SetString("→")
)

// Catalog listing styles
var (
	AddonName = lipgloss.NewStyle().
			Foreground(Text).
			Bold(true)

	AddonVersion = lipgloss.NewStyle().
			Foreground(Muted)

	AddonAuthor = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)

	AddonUpToDate = lipgloss.NewStyle().
			Foreground(Success)

	AddonOutdated = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	AddonNotInstalled = lipgloss.NewStyle().
				Foreground(Muted)

	// NewBadge for recently uploaded addons
	NewBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(Success).
			Bold(true).
			Padding(0, 1)

	// WarningBadge for addons flagged by their publisher
	WarningBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(Warning).
			Bold(true).
			Padding(0, 1)

	DownloadCount = lipgloss.NewStyle().
			Foreground(Warning)

	CategoryBadge = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	Rating = lipgloss.NewStyle().
		Foreground(Secondary)
)

// FormatInstallState returns a styled install state
func FormatInstallState(state addons.InstallState) string {
	switch state {
	case addons.StateUpToDate:
		return AddonUpToDate.Render("installed")
	case addons.StateOutdated:
		return AddonOutdated.Render("↑ update")
	default:
		return AddonNotInstalled.Render("-")
	}
}

// FormatStatus returns a styled publication status. Ready addons render
// as an empty string.
func FormatStatus(status addons.Status) string {
	switch status {
	case addons.StatusUnderDevelopment:
		return WarningText.Render("in development")
	case addons.StatusIncompatible:
		return ErrorText.Render("incompatible")
	default:
		return ""
	}
}

// FormatSuccess formats a success message
func FormatSuccess(msg string) string {
	return CheckMark.String() + " " + SuccessText.Render(msg)
}

// FormatError formats an error message
func FormatError(msg string) string {
	return CrossMark.String() + " " + ErrorText.Render(msg)
}

// FormatWarning formats a warning message
func FormatWarning(msg string) string {
	return WarningText.Render("! " + msg)
}

// FormatNewBadge returns a styled "NEW" badge
func FormatNewBadge() string {
	return NewBadge.Render("NEW")
}

// FormatWarningBadge returns a styled "WARNING" badge
func FormatWarningBadge() string {
	return WarningBadge.Render("WARNING")
}

// FormatDownloads formats a download count
func FormatDownloads(count int64) string {
	if count <= 0 {
		return ""
	}
	return DownloadCount.Render("↓ " + humanize.Comma(count))
}

// FormatRating formats an average rating, "★ 4.3 (12)". Unrated addons
// render as an empty string.
func FormatRating(average float64, count int) string {
	if count <= 0 {
		return ""
	}
	return Rating.Render(fmt.Sprintf("★ %.1f (%s)", average, humanize.Comma(int64(count))))
}

// FormatStars renders a 1-5 rating as filled and empty stars.
func FormatStars(stars int) string {
	stars = max(0, min(stars, 5))
	return Rating.Render(strings.Repeat("★", stars)) + MutedText.Render(strings.Repeat("☆", 5-stars))
}

// FormatCategory formats a category name
func FormatCategory(cat string) string {
	if cat == "" {
		return ""
	}
	return CategoryBadge.Render("[" + cat + "]")
}

// FormatBytes formats a byte count, "1.2 MB"
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
