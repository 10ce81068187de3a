package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tweetharvest/pkg/harvest"
)

// BatchStartedMsg is sent when a batch begins
type BatchStartedMsg struct {
	RunID    string
	Endpoint string
	Keys     int
}

// KeySkippedMsg is sent for keys an earlier run completed
type KeySkippedMsg struct {
	Key string
}

// KeyStartedMsg is sent when a key starts fetching
type KeyStartedMsg struct {
	Key      string
	Position int
	Total    int
}

// PageWrittenMsg is sent for every written page
type PageWrittenMsg struct {
	Key     string
	Index   int
	Records int
}

// KeyFinishedMsg is sent when a key reaches a terminal state
type KeyFinishedMsg struct {
	Result harvest.RunResult
}

// BatchFinishedMsg is sent with the batch summary
type BatchFinishedMsg struct {
	Summary harvest.Summary
}

// RateLimitMsg is sent when a rate-limit class pauses a request
type RateLimitMsg struct {
	Class string
	Wait  time.Duration
}

// LogMsg carries one captured log line
type LogMsg struct {
	Level string
	Text  string
}

// TickMsg refreshes elapsed times
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case BatchStartedMsg:
		m.batchStarted(msg)
	case KeySkippedMsg:
		m.keySkipped(msg)
	case KeyStartedMsg:
		m.keyStarted(msg)
	case PageWrittenMsg:
		m.pageWritten(msg)
	case KeyFinishedMsg:
		m.keyFinished(msg)
	case BatchFinishedMsg:
		m.batchFinished(msg)
	case RateLimitMsg:
		m.rateLimited(msg)
	case LogMsg:
		m.addLog(msg.Text, levelColor(msg.Level))
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.onQuit != nil && !m.finished {
			m.onQuit()
			m.addLog("Stopping after the current request", neonOrange)
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logs = nil
		return m, nil
	}

	return m, nil
}

// levelColor maps a zerolog level name to a log color
func levelColor(level string) lipgloss.Color {
	switch strings.ToUpper(level) {
	case "ERROR", "FATAL":
		return neonRed
	case "WARN":
		return neonOrange
	case "DEBUG":
		return dimWhite
	default:
		return neonCyan
	}
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
