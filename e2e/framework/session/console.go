package session

import (
	"sync"
	"time"

	"github.com/thesipincafe/site-e2e/e2e/framework/results"
)

const defaultConsoleLimit = 1000

// ConsoleBuffer collects console messages and page errors for one session.
// It is filled by page event callbacks and drained by the orchestrator.
type ConsoleBuffer struct {
	mu      sync.Mutex
	entries []results.ConsoleEntry
	limit   int
	dropped int
	now     func() time.Time
}

// NewConsoleBuffer returns a buffer holding at most limit entries (0 means default).
func NewConsoleBuffer(limit int) *ConsoleBuffer {
	if limit <= 0 {
		limit = defaultConsoleLimit
	}
	return &ConsoleBuffer{limit: limit, now: time.Now}
}

// Append records one entry, dropping it once the buffer is full.
func (b *ConsoleBuffer) Append(kind, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= b.limit {
		b.dropped++
		return
	}
	b.entries = append(b.entries, results.ConsoleEntry{Type: kind, Text: text, Time: b.now()})
}

// Drain returns buffered entries and empties the buffer.
func (b *ConsoleBuffer) Drain() []results.ConsoleEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.entries
	b.entries = nil
	b.dropped = 0
	return out
}

// Errors returns buffered error and pageerror entries without draining.
func (b *ConsoleBuffer) Errors() []results.ConsoleEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []results.ConsoleEntry
	for _, entry := range b.entries {
		if entry.Type == "error" || entry.Type == "pageerror" {
			out = append(out, entry)
		}
	}
	return out
}

// Dropped reports entries discarded since the last drain.
func (b *ConsoleBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
