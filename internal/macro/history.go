package macro

import "sync"

// DefaultHistorySize is how many finished plans are kept by default.
const DefaultHistorySize = 1000

// History is a fixed-size ring of finished plans. When it is full the
// oldest entry is overwritten.
type History struct {
	mu       sync.Mutex
	data     []Info
	capacity int
	head     int
	count    int
}

// NewHistory creates a History holding up to capacity entries. A
// non-positive capacity uses DefaultHistorySize.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{data: make([]Info, capacity), capacity: capacity}
}

// Add records info, evicting the oldest entry when full.
func (h *History) Add(info Info) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail := (h.head + h.count) % h.capacity
	h.data[tail] = info
	if h.count == h.capacity {
		h.head = (h.head + 1) % h.capacity
		return
	}
	h.count++
}

// List returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (h *History) List(limit int) []Info {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Info, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.head + h.count - 1 - i) % h.capacity
		out = append(out, h.data[idx])
	}
	return out
}

// Clear drops every entry and returns how many there were.
func (h *History) Clear() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.count
	clear(h.data)
	h.head = 0
	h.count = 0
	return n
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Cap returns the capacity.
func (h *History) Cap() int {
	return h.capacity
}
