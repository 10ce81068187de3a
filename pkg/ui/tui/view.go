package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"tweetharvest/pkg/harvest"
)

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	half := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(half),
		m.renderCurrentPanel(half),
		m.renderRecentPanel(half),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderRateLimitPanel(half),
		m.renderLogsPanel(half),
	)

	sections := []string{
		m.renderHeader(),
		lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right),
	}
	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderHeader() string {
	status := m.spinner.View() + " harvesting"
	if m.finished {
		status = successStyle.Render("finished")
	}
	return headerStyle.Render(fmt.Sprintf("tweetharvest • %s • run %s • %s", m.endpoint, m.runID, status))
}

func (m *Model) renderStatsPanel(width int) string {
	elapsed := m.now().Sub(m.start)
	if m.finished {
		elapsed = m.summary.Duration
	}

	rows := []string{
		stat("Keys", fmt.Sprintf("%d/%d", m.position, m.total)),
		stat("Completed", fmt.Sprintf("%d", m.completed)),
		stat("Failed", fmt.Sprintf("%d", m.failed)),
		stat("Skipped", fmt.Sprintf("%d", m.skipped)),
		stat("Pages", fmt.Sprintf("%d (%d records)", m.pages, m.records)),
		stat("Requests", fmt.Sprintf("%d", m.requests)),
		stat("Elapsed", formatDuration(elapsed)),
	}
	rows = append(rows, "", m.progress.ViewAs(m.Percent()))

	return panel(" BATCH ", width, rows)
}

func (m *Model) renderCurrentPanel(width int) string {
	var rows []string
	switch {
	case m.current != "":
		rows = append(rows,
			stat("Key", m.current),
			stat("Pages", fmt.Sprintf("%d", m.currentPages)),
		)
	case m.finished:
		rows = append(rows, dimStyle.Render("nothing left to fetch"))
	default:
		rows = append(rows, dimStyle.Render("waiting"))
	}
	return panel(" CURRENT ", width, rows)
}

func (m *Model) renderRecentPanel(width int) string {
	if len(m.recent) == 0 {
		return panel(" RECENT ", width, []string{dimStyle.Render("no keys finished yet")})
	}

	rows := make([]string, 0, len(m.recent))
	for i := len(m.recent) - 1; i >= 0; i-- {
		res := m.recent[i]
		var mark string
		switch res.Terminal {
		case harvest.Completed:
			mark = successStyle.Render("✓")
		case harvest.Failed:
			mark = errorStyle.Render("✗")
		default:
			mark = warningStyle.Render("…")
		}
		rows = append(rows, fmt.Sprintf("%s %s %s", mark, truncate(res.Key, width-20),
			dimStyle.Render(fmt.Sprintf("%d pages", res.PagesWritten))))
	}
	return panel(" RECENT ", width, rows)
}

func (m *Model) renderRateLimitPanel(width int) string {
	if len(m.order) == 0 {
		return panel(" RATE LIMITS ", width, []string{dimStyle.Render("no pauses yet")})
	}

	rows := make([]string, 0, len(m.order))
	for _, class := range m.order {
		w := m.waits[class]
		ago := m.now().Sub(w.At).Truncate(time.Second)
		rows = append(rows, fmt.Sprintf("%s %s %s",
			statsLabelStyle.Render(class+":"),
			waitStyle(w.Wait.Seconds()).Render(w.Wait.Truncate(100*time.Millisecond).String()),
			dimStyle.Render(ago.String()+" ago")))
	}
	return panel(" RATE LIMITS ", width, rows)
}

func (m *Model) renderLogsPanel(width int) string {
	visible := 12
	if m.height > 0 {
		if v := m.height - 20; v > visible {
			visible = v
		}
	}

	logs := m.logs
	if len(logs) > visible {
		logs = logs[len(logs)-visible:]
	}

	rows := make([]string, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, fmt.Sprintf("%s %s",
			dimStyle.Render(l.Time.Format("15:04:05")),
			lipgloss.NewStyle().Foreground(l.Color).Render(truncate(l.Text, width-14))))
	}
	if len(rows) == 0 {
		rows = append(rows, dimStyle.Render("no messages"))
	}
	return panel(" LOG ", width, rows)
}

func (m *Model) renderHelp() string {
	return helpStyle.Render(strings.Join([]string{
		"q / ctrl+c  stop after the current request and quit",
		"ctrl+l      clear the log panel",
		"?           toggle this help",
	}, "\n"))
}

func panel(title string, width int, rows []string) string {
	content := lipgloss.JoinVertical(lipgloss.Left, append([]string{titleStyle.Render(title)}, rows...)...)
	return panelStyle.Width(width).Render(content)
}

func stat(label, value string) string {
	return fmt.Sprintf("%s %s", statsLabelStyle.Render(label+":"), statsValueStyle.Render(value))
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

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
