// Package style provides shared styling primitives including brand colors,
// icons and the per-status styles of the kiln CLI output.
package style

import "github.com/charmbracelet/lipgloss"

// Brand Colors.
var (
	Iris   = lipgloss.Color("#8B5CF6")
	Slate  = lipgloss.Color("#667085")
	White  = lipgloss.Color("#FFFFFF")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Tilde   = "~"
	Dot     = "●"
	Circle  = "○"
)

// Text styles.
var (
	Done = lipgloss.NewStyle().
		Foreground(Green)

	Failed = lipgloss.NewStyle().
		Foreground(Red)

	Cached = lipgloss.NewStyle().
		Foreground(Slate).
		Faint(true)

	Skipped = lipgloss.NewStyle().
		Foreground(Yellow)

	Title = lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1).
		Background(Iris).
		Foreground(White)

	FailureTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Background(Red).
			Foreground(White)
)
