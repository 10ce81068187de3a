package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"tweetharvest/pkg/harvest"
)

// ProgressDisplay renders a one-line batch progress indicator. In verbose
// mode it prints one line per finished key instead.
type ProgressDisplay struct {
	mu        sync.Mutex
	out       io.Writer
	verbose   bool
	endpoint  string
	total     int
	position  int
	completed int
	failed    int
	skipped   int
	pages     int
	current   string
	waiting   time.Duration
	start     time.Time
	now       func() time.Time
}

// NewProgressDisplay creates a display writing to out
func NewProgressDisplay(out io.Writer, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{out: out, verbose: verbose, now: time.Now}
}

// BatchStarted resets the counters
func (p *ProgressDisplay) BatchStarted(runID, endpoint string, keys int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endpoint = endpoint
	p.total = keys
	p.position, p.completed, p.failed, p.skipped, p.pages = 0, 0, 0, 0, 0
	p.start = p.now()
	if p.verbose {
		fmt.Fprintf(p.out, "%s %s: %d keys (run %s)\n", Magenta("→"), endpoint, keys, runID)
	}
}

// KeySkipped counts a key completed by an earlier run
func (p *ProgressDisplay) KeySkipped(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.skipped++
	p.position++
	if p.verbose {
		fmt.Fprintf(p.out, "%s %s %s\n", Dim("·"), key, Dim("already complete"))
	}
}

// KeyStarted shows the key being fetched
func (p *ProgressDisplay) KeyStarted(key string, position, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = key
	p.position = position
	p.waiting = 0
	if !p.verbose {
		p.printLine()
	}
}

// PageWritten counts a written page
func (p *ProgressDisplay) PageWritten(key string, index, records int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pages++
	if !p.verbose {
		p.printLine()
	}
}

// KeyFinished records the outcome of a key
func (p *ProgressDisplay) KeyFinished(res harvest.RunResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch res.Terminal {
	case harvest.Completed:
		p.completed++
	case harvest.Failed:
		p.failed++
	}
	p.current = ""

	if p.verbose {
		mark := Green("✓")
		switch res.Terminal {
		case harvest.Failed:
			mark = Red("✗")
		case harvest.Interrupted:
			mark = Yellow("…")
		}
		line := fmt.Sprintf("%s %s • %d pages • %d requests • %s",
			mark, res.Key, res.PagesWritten, res.Requests, formatDuration(res.Duration))
		if res.Reason != "" {
			line += " • " + Dim(res.Reason)
		}
		fmt.Fprintln(p.out, line)
		return
	}
	p.printLine()
}

// RateLimitWait shows a pause imposed by the rate limiter
func (p *ProgressDisplay) RateLimitWait(class string, wait time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.waiting = wait
	if !p.verbose && wait >= time.Second {
		p.printLine()
	}
}

// BatchFinished prints the closing line
func (p *ProgressDisplay) BatchFinished(sum harvest.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.verbose {
		fmt.Fprintln(p.out)
	}
	mark := Green("✓")
	if sum.Failed > 0 || sum.Interrupted {
		mark = Yellow("!")
	}
	fmt.Fprintf(p.out, "%s %s: %d completed, %d failed, %d skipped, %d pages in %s\n",
		mark, p.endpoint, sum.Completed, sum.Failed, sum.Skipped, sum.Written, formatDuration(sum.Duration))
}

// printLine redraws the progress line
func (p *ProgressDisplay) printLine() {
	barWidth := 20
	filled := 0
	if p.total > 0 {
		filled = p.position * barWidth / p.total
	}
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("%s [%s] %d/%d • %d pages • %s",
		Cyan(p.endpoint), bar, p.position, p.total, p.pages, formatDuration(p.now().Sub(p.start)))
	if p.current != "" {
		line += " • " + p.current
	}
	if p.waiting >= time.Second {
		line += " • " + Yellow("waiting "+formatDuration(p.waiting))
	}
	if p.failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", p.failed))
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
