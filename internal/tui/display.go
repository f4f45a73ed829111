package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// Display runs the progress view for the duration of a build.
type Display struct {
	feed *Feed
}

// NewDisplay creates a Display reading from feed.
func NewDisplay(feed *Feed) *Display {
	return &Display{feed: feed}
}

// Start enables the feed and renders it on out. The returned function
// closes the feed and waits for the view to exit.
func (d *Display) Start(ctx context.Context, out io.Writer) func() {
	d.feed.Enable()

	program := tea.NewProgram(NewModel(d.feed),
		tea.WithContext(ctx),
		tea.WithOutput(out),
		tea.WithInput(nil),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = program.Run()
	}()

	return func() {
		_ = d.feed.Close()
		<-done
	}
}
