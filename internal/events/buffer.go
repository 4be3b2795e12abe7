package events

import "sync"

// Buffer keeps the most recent events so late joiners can catch up
type Buffer struct {
	mu     sync.RWMutex
	events []Event
	limit  int
}

// NewBuffer returns a buffer holding up to limit events
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = 100
	}
	return &Buffer{events: make([]Event, 0, limit), limit: limit}
}

func (b *Buffer) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// a reset starts a new cycle; earlier events no longer describe it
	if e.Type == TypeReset {
		b.events = b.events[:0]
	}

	if len(b.events) == b.limit {
		copy(b.events, b.events[1:])
		b.events = b.events[:b.limit-1]
	}
	b.events = append(b.events, e)
}

// Recent returns up to n of the newest events, oldest first. n <= 0 returns all.
func (b *Buffer) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if n > 0 && n < len(b.events) {
		start = len(b.events) - n
	}
	out := make([]Event, len(b.events)-start)
	copy(out, b.events[start:])
	return out
}
