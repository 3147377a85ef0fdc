package client

import (
	"sort"
	"sync"

	"github.com/zulandar/switchboard/internal/models"
)

// Log is a thread's local message log, kept in Seq order.
type Log struct {
	mu   sync.Mutex
	msgs []models.Message
}

// Merge adds m unless a message with the same Seq is present. added is false
// for duplicates; gap is true when m skips past the next expected Seq.
func (l *Log) Merge(m models.Message) (added, gap bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := sort.Search(len(l.msgs), func(i int) bool { return l.msgs[i].Seq >= m.Seq })
	if i < len(l.msgs) && l.msgs[i].Seq == m.Seq {
		return false, false
	}
	gap = m.Seq > l.lastSeq()+1
	l.msgs = append(l.msgs, models.Message{})
	copy(l.msgs[i+1:], l.msgs[i:])
	l.msgs[i] = m
	return true, gap
}

// Replace swaps in an authoritative history and returns the messages that
// were not already present. Held messages newer than the history's last Seq
// arrived after the pull was served and are kept.
func (l *Log) Replace(history []models.Message) []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[int]bool, len(l.msgs))
	for _, m := range l.msgs {
		seen[m.Seq] = true
	}
	last := 0
	var fresh []models.Message
	for _, m := range history {
		if m.Seq > last {
			last = m.Seq
		}
		if !seen[m.Seq] {
			fresh = append(fresh, m)
		}
	}
	merged := append([]models.Message(nil), history...)
	for _, m := range l.msgs {
		if m.Seq > last {
			merged = append(merged, m)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Seq < merged[j].Seq })
	l.msgs = merged
	return fresh
}

// Reset empties the log.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = nil
}

// Messages returns a copy of the log.
func (l *Log) Messages() []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Message(nil), l.msgs...)
}

// LastSeq returns the highest Seq held, or 0.
func (l *Log) LastSeq() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq()
}

func (l *Log) lastSeq() int {
	if len(l.msgs) == 0 {
		return 0
	}
	return l.msgs[len(l.msgs)-1].Seq
}
