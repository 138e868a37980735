package filter

import "sync"

// History is the navigable location stack of the hosting page.
type History interface {
	// Replace swaps the current entry without adding a new one.
	Replace(query string)
	// Push adds a new entry (used for navigation away from the search page).
	Push(location string)
}

type MemoryHistory struct {
	mu      sync.Mutex
	entries []string
}

func NewMemoryHistory(initial string) *MemoryHistory {
	return &MemoryHistory{entries: []string{initial}}
}

func (h *MemoryHistory) Replace(query string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		h.entries = append(h.entries, query)
		return
	}
	h.entries[len(h.entries)-1] = query
}

func (h *MemoryHistory) Push(location string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, location)
}

func (h *MemoryHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *MemoryHistory) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return ""
	}
	return h.entries[len(h.entries)-1]
}
