package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

// formatMessage renders one chat line, e.g. "[14:05] Ada: need help".
func formatMessage(m models.Message) string {
	who := m.Name
	switch {
	case m.Role == models.RoleOperator && who == "":
		who = "operator"
	case m.Role == models.RoleOperator:
		who = who + " (operator)"
	case who == "":
		who = "guest"
	}
	return fmt.Sprintf("[%s] %s: %s", m.SentAt.Local().Format("15:04"), who, m.Text)
}

// writeThreadTable prints thread summaries as an aligned table.
func writeThreadTable(out io.Writer, threads []models.ThreadSummary, now time.Time) {
	if len(threads) == 0 {
		fmt.Fprintln(out, "No threads.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "THREAD\tNAME\tMSGS\tLAST\tSTATUS\tLAST MESSAGE")
	for _, th := range threads {
		status := "answered"
		if th.AwaitingReply() {
			status = "waiting"
		}
		name := th.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			th.ThreadID, name, th.Count, formatAge(now.Sub(th.LastActivityAt)), status, truncate(th.LastText, 40))
	}
	w.Flush()
}

// formatAge renders d as a coarse "ago" string.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// truncate shortens s to n runes, collapsing newlines.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func countWaiting(threads []models.ThreadSummary) int {
	n := 0
	for _, th := range threads {
		if th.AwaitingReply() {
			n++
		}
	}
	return n
}
