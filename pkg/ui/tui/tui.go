package tui

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"tweetharvest/pkg/harvest"
)

// TUI runs the dashboard and forwards batch events to it. It implements
// harvest.Progress.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a dashboard. onQuit runs when the user quits early.
func NewTUI(onQuit func()) *TUI {
	model := NewModel(onQuit)
	return &TUI{
		program: tea.NewProgram(&model, tea.WithAltScreen()),
		model:   &model,
	}
}

// Start runs the dashboard until Stop or the user quits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) BatchStarted(runID, endpoint string, keys int) {
	t.Send(BatchStartedMsg{RunID: runID, Endpoint: endpoint, Keys: keys})
}

func (t *TUI) KeySkipped(key string) {
	t.Send(KeySkippedMsg{Key: key})
}

func (t *TUI) KeyStarted(key string, position, total int) {
	t.Send(KeyStartedMsg{Key: key, Position: position, Total: total})
}

func (t *TUI) PageWritten(key string, index, records int) {
	t.Send(PageWrittenMsg{Key: key, Index: index, Records: records})
}

func (t *TUI) KeyFinished(res harvest.RunResult) {
	t.Send(KeyFinishedMsg{Result: res})
}

func (t *TUI) BatchFinished(sum harvest.Summary) {
	t.Send(BatchFinishedMsg{Summary: sum})
}

// RateLimitWait reports a pause imposed by a rate-limit class
func (t *TUI) RateLimitWait(class string, wait time.Duration) {
	t.Send(RateLimitMsg{Class: class, Wait: wait})
}

// LogWriter returns a writer for JSON log lines that shows each line's
// message in the log panel
func (t *TUI) LogWriter() *LogWriter {
	return &LogWriter{send: t.Send}
}

// LogWriter turns zerolog JSON lines into LogMsg values
type LogWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	send func(tea.Msg)
}

func (w *LogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// keep the partial line for the next write
			w.buf.Reset()
			w.buf.Write(line)
			break
		}
		if msg, ok := parseLogLine(line); ok {
			w.send(msg)
		}
	}
	return len(p), nil
}

func parseLogLine(line []byte) (LogMsg, bool) {
	var entry struct {
		Level   string `json:"level"`
		Message string `json:"message"`
		Key     string `json:"key"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(line), &entry); err != nil || entry.Message == "" {
		return LogMsg{}, false
	}
	text := entry.Message
	if entry.Key != "" {
		text += " [" + entry.Key + "]"
	}
	if entry.Error != "" {
		text += ": " + entry.Error
	}
	return LogMsg{Level: entry.Level, Text: text}, true
}
