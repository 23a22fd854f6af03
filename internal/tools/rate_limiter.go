package tools

import (
	"fmt"
	"sync"
	"time"
)

// ToolRateLimiter is a sliding window limiter on tool executions, keyed by job.
type ToolRateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
}

// NewToolRateLimiter allows at most limit tool calls per job within window.
// limit <= 0 disables limiting and returns nil.
func NewToolRateLimiter(limit int, window time.Duration) *ToolRateLimiter {
	if limit <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Hour
	}
	return &ToolRateLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
	}
}

// Allow records one call for key. It returns an error wrapping ErrRateLimited
// once key has used its budget for the current window.
func (rl *ToolRateLimiter) Allow(key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entries := pruneBefore(rl.windows[key], now.Add(-rl.window))

	if len(entries) >= rl.limit {
		rl.windows[key] = entries
		return fmt.Errorf("%w: %d calls per %s for job %s", ErrRateLimited, rl.limit, rl.window, key)
	}

	rl.windows[key] = append(entries, now)
	return nil
}

// Forget drops all state for key. The worker calls it when a job ends.
func (rl *ToolRateLimiter) Forget(key string) {
	rl.mu.Lock()
	delete(rl.windows, key)
	rl.mu.Unlock()
}

// Cleanup removes entries older than the window.
func (rl *ToolRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	for key, entries := range rl.windows {
		entries = pruneBefore(entries, cutoff)
		if len(entries) == 0 {
			delete(rl.windows, key)
		} else {
			rl.windows[key] = entries
		}
	}
}

func pruneBefore(entries []time.Time, cutoff time.Time) []time.Time {
	start := 0
	for start < len(entries) && entries[start].Before(cutoff) {
		start++
	}
	return entries[start:]
}
