package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tweetharvest/pkg/harvest"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Output
	Output = &buf
	SetNoColor(true)
	t.Cleanup(func() {
		Output = prev
		SetNoColor(false)
		SetQuietMode(false)
	})
	return &buf
}

func TestPrintHelpers(t *testing.T) {
	buf := capture(t)

	PrintInfo("Endpoint", "search")
	PrintError("Batch failed", errors.New("boom"))
	PrintSuccess("done")

	out := buf.String()
	assert.Contains(t, out, "Endpoint: search")
	assert.Contains(t, out, "Batch failed: boom")
	assert.Contains(t, out, "done")
}

func TestQuietModeKeepsErrors(t *testing.T) {
	buf := capture(t)
	SetQuietMode(true)

	PrintBanner()
	PrintInfo("Endpoint", "search")
	PrintWarning("careful")
	PrintError("fatal")

	assert.Equal(t, "fatal\n", buf.String())
}

func TestProgressDisplayLine(t *testing.T) {
	capture(t)
	var buf bytes.Buffer
	p := NewProgressDisplay(&buf, false)
	start := time.Unix(0, 0)
	p.now = func() time.Time { return start }

	p.BatchStarted("run", "search", 4)
	p.KeySkipped("#a")
	p.KeyStarted("#b", 2, 4)
	p.PageWritten("#b", 1, 10)
	p.RateLimitWait("search", 3*time.Second)

	out := buf.String()
	assert.Contains(t, out, "search [━━━━━━━━━━──────────] 2/4 • 1 pages • 0s • #b • waiting 3s")

	p.KeyFinished(harvest.RunResult{Key: "#b", Terminal: harvest.Failed})
	assert.Contains(t, buf.String(), "1 failed")

	buf.Reset()
	p.BatchFinished(harvest.Summary{Completed: 2, Failed: 1, Skipped: 1, Written: 7, Duration: 90 * time.Second})
	assert.Contains(t, buf.String(), "! search: 2 completed, 1 failed, 1 skipped, 7 pages in 1m30s")
}

func TestProgressDisplayVerbose(t *testing.T) {
	capture(t)
	var buf bytes.Buffer
	p := NewProgressDisplay(&buf, true)

	p.BatchStarted("run-1", "timeline", 1)
	p.KeyStarted("42", 1, 1)
	p.PageWritten("42", 1, 100)
	p.KeyFinished(harvest.RunResult{Key: "42", PagesWritten: 3, Requests: 4, Terminal: harvest.Completed, Duration: 5 * time.Second})

	out := buf.String()
	assert.Contains(t, out, "timeline: 1 keys (run run-1)")
	assert.Contains(t, out, "✓ 42 • 3 pages • 4 requests • 5s")
	assert.NotContains(t, out, "\r")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", formatDuration(5*time.Second))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h1m", formatDuration(61*time.Minute))
}

type fakeSender struct {
	titles []string
}

func (f *fakeSender) Send(title, message string) error {
	f.titles = append(f.titles, title)
	return errors.New("no notification daemon")
}

func TestNotifierIsBestEffort(t *testing.T) {
	buf := capture(t)
	sender := &fakeSender{}
	n := NewNotifierWithSender(sender)

	n.SendSuccess("Batch complete", "3 keys")
	n.SendError("Batch failed", "1 key")

	assert.Equal(t, []string{"Batch complete", "Batch failed"}, sender.titles)
	assert.Contains(t, buf.String(), "Batch complete: 3 keys")
	assert.Contains(t, buf.String(), "Batch failed: 1 key")
}
