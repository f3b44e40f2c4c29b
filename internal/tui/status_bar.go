package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/aicode/framework"
)

// StatusBar renders endpoint/model/phase on the left and context pressure,
// turn count, and mode flags on the right.
type StatusBar struct {
	endpoint string
	model    string
	phase    string
	used     int
	avail    int
	state    framework.BudgetState
	turns    int
	safeMode bool
	debug    bool
}

func (s StatusBar) View(width int) string {
	left := fmt.Sprintf("%s | %s | %s",
		truncateLabel(s.endpoint, 24),
		truncateLabel(s.model, 24),
		s.phase,
	)
	mode := "unsafe"
	if s.safeMode {
		mode = "safe"
	}
	right := fmt.Sprintf("ctx %s/%s %s | turn %d | %s",
		formatTokens(s.used),
		formatTokens(s.avail),
		s.state,
		s.turns,
		mode,
	)
	if s.debug {
		right += " | debug"
	}
	padding := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return statusStyle.Render(left + strings.Repeat(" ", padding) + right)
}

func formatTokens(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%.1fk", float64(n)/1000)
}

func truncateLabel(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:1]
	}
	return s[:n-1] + "…"
}
