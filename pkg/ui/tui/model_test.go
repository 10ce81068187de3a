package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tweetharvest/pkg/harvest"
)

func newTestModel(onQuit func()) *Model {
	m := NewModel(onQuit)
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	return &m
}

func send(m *Model, msgs ...tea.Msg) {
	for _, msg := range msgs {
		m.Update(msg)
	}
}

func TestModelTracksBatch(t *testing.T) {
	m := newTestModel(nil)

	send(m,
		BatchStartedMsg{RunID: "r1", Endpoint: "search", Keys: 4},
		KeySkippedMsg{Key: "#a"},
		KeyStartedMsg{Key: "#b", Position: 2, Total: 4},
		PageWrittenMsg{Key: "#b", Index: 1, Records: 100},
		PageWrittenMsg{Key: "#b", Index: 2, Records: 40},
	)

	assert.Equal(t, "search", m.endpoint)
	assert.Equal(t, 1, m.skipped)
	assert.Equal(t, "#b", m.current)
	assert.Equal(t, 2, m.currentPages)
	assert.Equal(t, 140, m.records)
	assert.InDelta(t, 0.5, m.Percent(), 1e-9)

	send(m,
		KeyFinishedMsg{Result: harvest.RunResult{Key: "#b", PagesWritten: 2, Requests: 2, Terminal: harvest.Completed}},
		KeyStartedMsg{Key: "#c", Position: 3, Total: 4},
		KeyFinishedMsg{Result: harvest.RunResult{Key: "#c", Requests: 6, Terminal: harvest.Failed, Reason: "HTTP 503"}},
	)

	assert.Equal(t, 1, m.completed)
	assert.Equal(t, 1, m.failed)
	assert.Equal(t, 8, m.requests)
	assert.Empty(t, m.current)
	require.Len(t, m.recent, 2)
	assert.Equal(t, "#c failed: HTTP 503", m.logs[len(m.logs)-1].Text)
	assert.Equal(t, neonRed, m.logs[len(m.logs)-1].Color)

	send(m, BatchFinishedMsg{Summary: harvest.Summary{Completed: 1, Failed: 1, Skipped: 1}})
	assert.True(t, m.finished)
}

func TestModelKeepsRecentBounded(t *testing.T) {
	m := newTestModel(nil)
	for i := 0; i < maxRecent+5; i++ {
		send(m, KeyFinishedMsg{Result: harvest.RunResult{Key: "k", Terminal: harvest.Completed}})
	}
	assert.Len(t, m.recent, maxRecent)

	for i := 0; i < m.maxLogs+10; i++ {
		send(m, LogMsg{Level: "info", Text: "line"})
	}
	assert.Len(t, m.logs, m.maxLogs)
}

func TestModelRateLimits(t *testing.T) {
	m := newTestModel(nil)
	send(m,
		RateLimitMsg{Class: "search", Wait: 2 * time.Second},
		RateLimitMsg{Class: "lookup", Wait: time.Second},
		RateLimitMsg{Class: "search", Wait: 3 * time.Second},
	)

	assert.Equal(t, []string{"search", "lookup"}, m.order)
	assert.Equal(t, 3*time.Second, m.waits["search"].Wait)
}

func TestQuitCancelsRunningBatch(t *testing.T) {
	canceled := 0
	m := newTestModel(func() { canceled++ })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Equal(t, 1, canceled)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	m.finished = true
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Equal(t, 1, canceled, "a finished batch is not canceled again")
}

func TestHelpToggleAndClear(t *testing.T) {
	m := newTestModel(nil)
	send(m, LogMsg{Level: "warn", Text: "x"})

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	assert.True(t, m.showHelp)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.logs)
}

func TestViewRenders(t *testing.T) {
	m := newTestModel(nil)
	assert.Equal(t, "Initializing...", m.View())

	send(m,
		tea.WindowSizeMsg{Width: 140, Height: 40},
		BatchStartedMsg{RunID: "r1", Endpoint: "timeline", Keys: 2},
		KeyStartedMsg{Key: "783214", Position: 1, Total: 2},
		RateLimitMsg{Class: "timeline", Wait: time.Second},
	)

	view := m.View()
	assert.Contains(t, view, "timeline")
	assert.Contains(t, view, "783214")
	assert.Contains(t, view, "RATE LIMITS")
}

func TestLogWriterParsesJSONLines(t *testing.T) {
	var got []tea.Msg
	w := &LogWriter{send: func(msg tea.Msg) { got = append(got, msg) }}

	_, err := w.Write([]byte(`{"level":"warn","message":"HTTP request rate limited","key":"#a"}` + "\n" + `{"level":"info","mess`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, LogMsg{Level: "warn", Text: "HTTP request rate limited [#a]"}, got[0])

	_, err = w.Write([]byte(`age":"Batch started"}` + "\nnot json\n"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, LogMsg{Level: "info", Text: "Batch started"}, got[1])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
}
