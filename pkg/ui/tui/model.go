package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tweetharvest/pkg/harvest"
)

// maxRecent is how many finished keys the dashboard lists
const maxRecent = 8

// RateWait is the last pause a rate-limit class imposed
type RateWait struct {
	Class string
	Wait  time.Duration
	At    time.Time
}

// LogLine is a captured log message
type LogLine struct {
	Time  time.Time
	Text  string
	Color lipgloss.Color
}

// Model is the dashboard state. All mutation happens in Update.
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	runID     string
	endpoint  string
	total     int
	position  int
	completed int
	failed    int
	skipped   int
	pages     int
	records   int
	requests  int

	current      string
	currentPages int

	recent []harvest.RunResult
	waits  map[string]RateWait
	order  []string

	logs    []LogLine
	maxLogs int

	start    time.Time
	finished bool
	summary  harvest.Summary

	width    int
	height   int
	showHelp bool

	onQuit func()
	now    func() time.Time
}

// NewModel creates an empty dashboard. onQuit runs when the user quits.
func NewModel(onQuit func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	return Model{
		spinner:  s,
		progress: p,
		waits:    make(map[string]RateWait),
		maxLogs:  50,
		start:    time.Now(),
		onQuit:   onQuit,
		now:      time.Now,
	}
}

// Init starts the spinner
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// Percent is the share of keys processed
func (m *Model) Percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.position) / float64(m.total)
}

func (m *Model) batchStarted(msg BatchStartedMsg) {
	m.runID = msg.RunID
	m.endpoint = msg.Endpoint
	m.total = msg.Keys
	m.start = m.now()
	m.addLog(fmt.Sprintf("Batch %s started: %d keys on %s", msg.RunID, msg.Keys, msg.Endpoint), neonCyan)
}

func (m *Model) keySkipped(msg KeySkippedMsg) {
	m.skipped++
	m.position++
}

func (m *Model) keyStarted(msg KeyStartedMsg) {
	m.current = msg.Key
	m.currentPages = 0
	m.position = msg.Position
}

func (m *Model) pageWritten(msg PageWrittenMsg) {
	m.pages++
	m.records += msg.Records
	if msg.Key == m.current {
		m.currentPages++
	}
}

func (m *Model) keyFinished(msg KeyFinishedMsg) {
	res := msg.Result
	m.requests += res.Requests
	switch res.Terminal {
	case harvest.Completed:
		m.completed++
	case harvest.Failed:
		m.failed++
		m.addLog(fmt.Sprintf("%s failed: %s", res.Key, res.Reason), neonRed)
	case harvest.Interrupted:
		m.addLog(fmt.Sprintf("%s interrupted", res.Key), neonOrange)
	}
	if res.Key == m.current {
		m.current = ""
	}

	m.recent = append(m.recent, res)
	if len(m.recent) > maxRecent {
		m.recent = m.recent[len(m.recent)-maxRecent:]
	}
}

func (m *Model) batchFinished(msg BatchFinishedMsg) {
	m.finished = true
	m.summary = msg.Summary
	m.current = ""
	color := neonGreen
	if msg.Summary.Failed > 0 || msg.Summary.Interrupted {
		color = neonOrange
	}
	m.addLog(fmt.Sprintf("Batch finished: %d completed, %d failed, %d skipped",
		msg.Summary.Completed, msg.Summary.Failed, msg.Summary.Skipped), color)
}

func (m *Model) rateLimited(msg RateLimitMsg) {
	if _, seen := m.waits[msg.Class]; !seen {
		m.order = append(m.order, msg.Class)
	}
	m.waits[msg.Class] = RateWait{Class: msg.Class, Wait: msg.Wait, At: m.now()}
}

// addLog appends a log line, keeping the newest maxLogs
func (m *Model) addLog(text string, color lipgloss.Color) {
	m.logs = append(m.logs, LogLine{Time: m.now(), Text: text, Color: color})
	if len(m.logs) > m.maxLogs {
		m.logs = m.logs[len(m.logs)-m.maxLogs:]
	}
}
