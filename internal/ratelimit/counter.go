// Package ratelimit keeps per-key attempt counters over a fixed window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Counter records one attempt for key and returns the number of attempts
// seen in the key's current window, this one included. The window starts
// at the first attempt and restarts once it has fully elapsed.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int, error)
}

// Entry is the state kept per key
type Entry struct {
	Count       int
	WindowStart time.Time
	Window      time.Duration
}

func (e *Entry) elapsed(now time.Time) bool {
	return now.Sub(e.WindowStart) > e.Window
}

// MemoryCounter is a process-local Counter. Entries whose window has
// elapsed are removed by Sweep.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

type MemoryOption func(*MemoryCounter)

// WithClock overrides time.Now
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCounter) {
		c.now = now
	}
}

func NewMemoryCounter(opts ...MemoryOption) *MemoryCounter {
	c := &MemoryCounter{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCounter) Increment(_ context.Context, key string, window time.Duration) (int, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		entry = &Entry{WindowStart: now, Window: window}
		c.entries[key] = entry
	}
	if entry.elapsed(now) {
		entry.Count = 0
		entry.WindowStart = now
		entry.Window = window
	}
	entry.Count++
	return entry.Count, nil
}

// Sweep drops entries whose window has elapsed and returns how many
// were removed.
func (c *MemoryCounter) Sweep(ctx context.Context) (int64, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int64
	for key, entry := range c.entries {
		if entry.elapsed(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked keys
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
