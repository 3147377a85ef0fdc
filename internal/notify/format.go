package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

const (
	colorNew     = "#2eb886"
	colorWaiting = "#daa038"

	// previewLen bounds quoted guest text.
	previewLen = 200

	// digestLimit bounds the threads listed in one digest.
	digestLimit = 20
)

// FormatNewThread renders the alert for a guest's first message.
func FormatNewThread(m models.Message) FormattedEvent {
	who := m.Name
	if who == "" {
		who = "A visitor"
	}
	evt := FormattedEvent{
		Title: fmt.Sprintf("%s started a chat", who),
		Body:  preview(m.Text),
		Color: colorNew,
		Fields: []Field{
			{Name: "Thread", Value: m.ThreadID, Short: true},
		},
	}
	if m.Contact != "" {
		evt.Fields = append(evt.Fields, Field{Name: "Contact", Value: m.Contact, Short: true})
	}
	return evt
}

// FormatDigest renders the list of threads awaiting an operator reply. It
// returns false when no thread is waiting.
func FormatDigest(threads []models.ThreadSummary, now time.Time) (FormattedEvent, bool) {
	var waiting []models.ThreadSummary
	for _, th := range threads {
		if th.AwaitingReply() {
			waiting = append(waiting, th)
		}
	}
	if len(waiting) == 0 {
		return FormattedEvent{}, false
	}

	var b strings.Builder
	for i, th := range waiting {
		if i == digestLimit {
			fmt.Fprintf(&b, "…and %d more\n", len(waiting)-digestLimit)
			break
		}
		label := th.ThreadID
		if th.Name != "" {
			label = fmt.Sprintf("%s (%s)", th.Name, th.ThreadID)
		}
		fmt.Fprintf(&b, "• %s, waiting %s: %s\n", label, waitingFor(now.Sub(th.LastActivityAt)), preview(th.LastText))
	}

	noun := "threads"
	if len(waiting) == 1 {
		noun = "thread"
	}
	return FormattedEvent{
		Title: fmt.Sprintf("%d %s awaiting a reply", len(waiting), noun),
		Body:  strings.TrimRight(b.String(), "\n"),
		Color: colorWaiting,
	}, true
}

func preview(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= previewLen {
		return string(r)
	}
	return string(r[:previewLen]) + "…"
}

// waitingFor renders d coarsely: minutes under two hours, then hours.
func waitingFor(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "<1m"
	case d < 2*time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}
