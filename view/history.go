package view

import "sync"

// URLSink receives encoded query strings and applies them to navigation
// state. Replace overwrites the current entry (high-frequency viewport
// updates); Push adds a history entry (deliberate navigation), which is
// what makes the back button step through filter changes but not through
// every pan frame.
type URLSink interface {
	Replace(query string)
	Push(query string)
}

// History is an in-process URLSink: the server keeps the canonical
// shareable query string here, and tests assert against it.
type History struct {
	mu      sync.Mutex
	entries []string
}

// NewHistory starts with a single empty entry, like a freshly opened tab.
func NewHistory() *History {
	return &History{entries: []string{""}}
}

func (h *History) Replace(query string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[len(h.entries)-1] = query
}

func (h *History) Push(query string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, query)
}

// Current returns the query string of the active entry.
func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[len(h.entries)-1]
}

// Back pops one entry and returns the newly active query string. The
// initial entry is never popped.
func (h *History) Back() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) > 1 {
		h.entries = h.entries[:len(h.entries)-1]
	}
	return h.entries[len(h.entries)-1]
}

// Len is the number of history entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
