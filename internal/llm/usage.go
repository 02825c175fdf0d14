package llm

import "sync"

// UsageTracker tracks token usage across model calls.
type UsageTracker struct {
	mu         sync.Mutex
	prompt     int64
	completion int64
	calls      int
}

// NewUsageTracker creates a new usage tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

// Add records token usage from one call.
func (t *UsageTracker) Add(prompt, completion int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prompt += prompt
	t.completion += completion
	t.calls++
}

// Total returns the prompt and completion tokens tracked.
func (t *UsageTracker) Total() (prompt, completion int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prompt, t.completion
}

// Calls returns the number of calls made.
func (t *UsageTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Reset clears all tracked usage.
func (t *UsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prompt = 0
	t.completion = 0
	t.calls = 0
}
