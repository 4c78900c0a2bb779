package process

import (
	"strings"
	"sync"
	"time"
)

// OutputLine represents a line of output captured from the agent process.
type OutputLine struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"` // "stdout" or "stderr"
	Content   string    `json:"content"`
}

// OutputRing is a fixed-capacity ring buffer of output lines. The
// supervisor uses it to retain recent stderr for failure diagnostics.
type OutputRing struct {
	lines []OutputLine
	size  int
	head  int
	count int
	mu    sync.RWMutex
}

// NewOutputRing creates a ring buffer with the given capacity.
func NewOutputRing(size int) *OutputRing {
	if size <= 0 {
		size = 64
	}
	return &OutputRing{
		lines: make([]OutputLine, size),
		size:  size,
	}
}

// Add appends a line, evicting the oldest when full.
func (r *OutputRing) Add(line OutputLine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.head + r.count) % r.size
	if r.count < r.size {
		r.count++
	} else {
		r.head = (r.head + 1) % r.size
	}
	r.lines[idx] = line
}

// GetLast returns the last n lines (oldest first).
func (r *OutputRing) GetLast(n int) []OutputLine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	result := make([]OutputLine, n)
	start := r.count - n
	for i := 0; i < n; i++ {
		idx := (r.head + start + i) % r.size
		result[i] = r.lines[idx]
	}
	return result
}

// Count returns the number of lines currently held.
func (r *OutputRing) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Tail returns the most recent content joined by newlines, truncated from
// the front to at most maxBytes. Used to surface a short diagnostic on
// process failure.
func (r *OutputRing) Tail(maxBytes int) string {
	r.mu.RLock()
	parts := make([]string, 0, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.head + i) % r.size
		parts = append(parts, r.lines[idx].Content)
	}
	r.mu.RUnlock()

	joined := strings.TrimSpace(strings.Join(parts, "\n"))
	if maxBytes > 0 && len(joined) > maxBytes {
		joined = joined[len(joined)-maxBytes:]
	}
	return joined
}
