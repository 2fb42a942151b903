package session

import (
	"sync"
	"time"
)

// History is a fixed-size ring of entries; the oldest entry is overwritten
// once the limit is reached.
type History struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	start   int
	size    int
	now     func() time.Time
}

// NewHistory creates a ring holding at most limit entries
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 1
	}
	return &History{
		entries: make([]HistoryEntry, limit),
		now:     time.Now,
	}
}

// Append records an entry in O(1)
func (h *History) Append(kind EntryKind, data string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := HistoryEntry{Type: kind, Data: data, Timestamp: h.now()}
	limit := len(h.entries)

	if h.size < limit {
		h.entries[(h.start+h.size)%limit] = entry
		h.size++
		return
	}
	h.entries[h.start] = entry
	h.start = (h.start + 1) % limit
}

// Entries returns a copy of the ring, oldest first
func (h *History) Entries() []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]HistoryEntry, h.size)
	limit := len(h.entries)
	for i := 0; i < h.size; i++ {
		out[i] = h.entries[(h.start+i)%limit]
	}
	return out
}

// Len returns the number of entries held
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Cap returns the ring bound
func (h *History) Cap() int {
	return len(h.entries)
}
