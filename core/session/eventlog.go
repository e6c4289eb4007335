package session

import (
	"sync"
	"time"
)

// Entry is one line of the event log.
type Entry struct {
	Time time.Time
	Text string
}

func (e Entry) String() string { return e.Time.Format("15:04:05.000") + " " + e.Text }

// EventLog is an append-only, ordered list of entries. It never evicts;
// trimming for display is up to the reader.
type EventLog struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewEventLog returns an empty log stamping entries with now.
func NewEventLog(now func() time.Time) *EventLog {
	if now == nil {
		now = time.Now
	}
	return &EventLog{now: now}
}

// Append adds text at the end of the log.
func (l *EventLog) Append(text string) Entry {
	e := Entry{Time: l.now(), Text: text}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return e
}

// Entries returns a snapshot of the log, oldest first.
func (l *EventLog) Entries() []Entry {
	return l.Since(0)
}

// Since returns the entries appended after the first n.
func (l *EventLog) Since(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(l.entries) {
		return nil
	}
	out := make([]Entry, len(l.entries)-n)
	copy(out, l.entries[n:])
	return out
}

// Len returns the number of entries.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
