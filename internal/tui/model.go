package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/vito/progrock"
	"go.trai.ch/kiln/internal/ui/style"
)

const (
	statusRunning   = "running"
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusCached    = "cached"
)

// VertexState is the displayed state of one lifecycle stage of one configuration.
type VertexState struct {
	ID     string
	Name   string
	Status string
	// LastLine is the most recent line of tool output.
	LastLine string
}

type styles struct {
	running   lipgloss.Style
	completed lipgloss.Style
	failed    lipgloss.Style
	cached    lipgloss.Style
	output    lipgloss.Style
}

// Model is the Bubble Tea model for the progress view.
type Model struct {
	tape     TapeSource
	vertices []VertexState
	index    map[string]int
	width    int
	height   int
	spinner  spinner.Model
	styles   styles
}

// NewModel creates a new progress model reading from tape.
func NewModel(tape TapeSource) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(style.Iris)

	return &Model{
		tape:    tape,
		index:   make(map[string]int),
		spinner: s,
		styles: styles{
			running:   lipgloss.NewStyle().Foreground(style.Iris),
			completed: style.Done,
			failed:    style.Failed,
			cached:    style.Cached,
			output:    lipgloss.NewStyle().Foreground(style.Slate),
		},
	}
}

// Init initializes the model and starts reading from the tape.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		WaitForTape(m.tape),
		m.spinner.Tick,
	)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case MsgTapeUpdate:
		m.apply(msg.Update)
		return m, WaitForTape(m.tape)
	case MsgTapeEnded:
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) apply(update *progrock.StatusUpdate) {
	if update == nil {
		return
	}
	for _, v := range update.Vertexes {
		i, ok := m.index[v.Id]
		if !ok {
			i = len(m.vertices)
			m.index[v.Id] = i
			m.vertices = append(m.vertices, VertexState{ID: v.Id, Name: v.Name, Status: statusRunning})
		}
		switch {
		case v.Cached:
			m.vertices[i].Status = statusCached
		case v.Completed != nil && v.Error != nil:
			m.vertices[i].Status = statusFailed
		case v.Completed != nil:
			m.vertices[i].Status = statusCompleted
		}
	}
	for _, l := range update.Logs {
		i, ok := m.index[l.Vertex]
		if !ok {
			continue
		}
		if line := lastLine(l.Data); line != "" {
			m.vertices[i].LastLine = line
		}
	}
}

func lastLine(data []byte) string {
	lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// View renders the newest vertices that fit the terminal height.
func (m *Model) View() string {
	var s strings.Builder

	rows := make([]string, 0, len(m.vertices))
	for _, v := range m.vertices {
		var icon string
		var st lipgloss.Style
		switch v.Status {
		case statusRunning:
			icon = m.spinner.View()
			st = m.styles.running
		case statusCompleted:
			icon = style.Check
			st = m.styles.completed
		case statusFailed:
			icon = style.Cross
			st = m.styles.failed
		default:
			icon = style.Dot
			st = m.styles.cached
		}

		row := fmt.Sprintf("%s %s", st.Render(icon), v.Name)
		if v.Status == statusRunning && v.LastLine != "" {
			row += "  " + m.styles.output.Render(m.truncate(v.LastLine, len(v.Name)+4))
		}
		rows = append(rows, row)
	}

	start := 0
	if m.height > 0 && len(rows) > m.height {
		start = len(rows) - m.height
	}
	for _, row := range rows[start:] {
		s.WriteString(row)
		s.WriteByte('\n')
	}
	return s.String()
}

func (m *Model) truncate(line string, used int) string {
	room := m.width - used
	if m.width <= 0 || len(line) <= room {
		return line
	}
	if room <= 1 {
		return ""
	}
	return line[:room-1] + "…"
}
