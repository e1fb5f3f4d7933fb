package orchestrator

import "sync"

// logRingCapacity bounds per-agent log retention in memory. Older lines
// are evicted once a run exceeds it; the full transcript, if needed,
// lives in the CLI agent's own session log on disk, not here.
const logRingCapacity = 500

// LogRing is a bounded FIFO of an agent run's output lines, safe for
// concurrent append (from the streaming goroutine) and read (from API
// handlers tailing a live run).
type LogRing struct {
	mu    sync.RWMutex
	lines []string
}

// NewLogRing returns an empty ring.
func NewLogRing() *LogRing { return &LogRing{lines: make([]string, 0, logRingCapacity)} }

// Append adds a line, evicting the oldest if the ring is full.
func (r *LogRing) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) >= logRingCapacity {
		r.lines = r.lines[1:]
	}
	r.lines = append(r.lines, line)
}

// Lines returns a snapshot copy of the current contents, oldest first.
func (r *LogRing) Lines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Tail returns the last n lines (or fewer if the ring holds less).
func (r *LogRing) Tail(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n > len(r.lines) {
		n = len(r.lines)
	}
	out := make([]string, n)
	copy(out, r.lines[len(r.lines)-n:])
	return out
}
