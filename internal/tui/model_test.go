//nolint:testpackage // Test needs access to unexported fields
package tui

import (
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vito/progrock"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type endedTape struct{}

func (endedTape) Read() (*progrock.StatusUpdate, error) {
	return nil, io.EOF
}

func TestModel_Update_TapeUpdate_AddsVertices(t *testing.T) {
	m := NewModel(endedTape{})

	_, cmd := m.Update(MsgTapeUpdate{Update: &progrock.StatusUpdate{
		Vertexes: []*progrock.Vertex{
			{Id: "1", Name: "zlib/1.3 fetching [os=Linux]"},
			{Id: "2", Name: "zlib/1.3 fetching [os=Windows]"},
		},
	}})

	require.Len(t, m.vertices, 2)
	assert.Equal(t, statusRunning, m.vertices[0].Status)
	assert.Equal(t, "zlib/1.3 fetching [os=Windows]", m.vertices[1].Name)
	require.NotNil(t, cmd)
	assert.Equal(t, MsgTapeEnded{}, cmd())
}

func TestModel_Update_TapeUpdate_Completion(t *testing.T) {
	m := NewModel(endedTape{})
	m.Update(MsgTapeUpdate{Update: &progrock.StatusUpdate{
		Vertexes: []*progrock.Vertex{{Id: "1"}, {Id: "2"}, {Id: "3"}},
	}})

	now := timestamppb.New(time.Now())
	failure := "exit status 2"
	m.Update(MsgTapeUpdate{Update: &progrock.StatusUpdate{
		Vertexes: []*progrock.Vertex{
			{Id: "1", Completed: now},
			{Id: "2", Completed: now, Error: &failure},
			{Id: "3", Completed: now, Cached: true},
		},
	}})

	require.Len(t, m.vertices, 3)
	assert.Equal(t, statusCompleted, m.vertices[0].Status)
	assert.Equal(t, statusFailed, m.vertices[1].Status)
	assert.Equal(t, statusCached, m.vertices[2].Status)
}

func TestModel_Update_TapeUpdate_Logs(t *testing.T) {
	m := NewModel(endedTape{})
	m.Update(MsgTapeUpdate{Update: &progrock.StatusUpdate{
		Vertexes: []*progrock.Vertex{{Id: "1", Name: "building"}},
		Logs: []*progrock.VertexLog{
			{Vertex: "1", Data: []byte("checking for gcc... gcc\nchecking whether the C compiler works... yes\n")},
			{Vertex: "unknown", Data: []byte("ignored\n")},
		},
	}})

	assert.Equal(t, "checking whether the C compiler works... yes", m.vertices[0].LastLine)
	assert.Contains(t, m.View(), "checking whether the C compiler works... yes")
}

func TestModel_Update_TapeEnded(t *testing.T) {
	m := NewModel(endedTape{})
	_, cmd := m.Update(MsgTapeEnded{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_View(t *testing.T) {
	m := NewModel(nil)
	m.width = 80
	m.height = 20

	m.vertices = []VertexState{
		{ID: "1", Name: "Running Stage", Status: statusRunning},
		{ID: "2", Name: "Built Stage", Status: statusCompleted},
		{ID: "3", Name: "Failed Stage", Status: statusFailed},
		{ID: "4", Name: "Cached Stage", Status: statusCached},
	}

	output := m.View()

	assert.Contains(t, output, "Running Stage")
	assert.Contains(t, output, "Built Stage")
	assert.Contains(t, output, "✓")
	assert.Contains(t, output, "✗")
	assert.Contains(t, output, "●")
}

func TestModel_View_ShowsNewest(t *testing.T) {
	m := NewModel(nil)
	m.height = 2
	m.vertices = []VertexState{
		{ID: "1", Name: "Stage 1", Status: statusCompleted},
		{ID: "2", Name: "Stage 2", Status: statusCompleted},
		{ID: "3", Name: "Stage 3", Status: statusCompleted},
	}

	output := m.View()
	assert.NotContains(t, output, "Stage 1")
	assert.Contains(t, output, "Stage 2")
	assert.Contains(t, output, "Stage 3")
}

func TestModel_Truncate(t *testing.T) {
	m := NewModel(nil)
	m.width = 10

	assert.Equal(t, "short", m.truncate("short", 2))
	assert.Equal(t, "abcdefg…", m.truncate("abcdefghijkl", 2))
	assert.Empty(t, m.truncate("abcdefghijkl", 10))
}
