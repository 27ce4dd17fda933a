// Package ratelimit counts attempts per key in fixed windows. Memory keeps
// counters in the process; Redis shares them across instances.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local fixed-window limiter. Counters reset on restart.
type Memory struct {
	mu      sync.Mutex
	windows map[string]window
	now     func() time.Time
}

// NewMemory creates an in-memory limiter.
func NewMemory() *Memory {
	return &Memory{windows: make(map[string]window), now: time.Now}
}

// Allow records one attempt for key and reports whether the count is still
// within limit for the current window.
func (m *Memory) Allow(_ context.Context, key string, limit int, win time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = window{resetAt: now.Add(win)}
	}
	w.count++
	m.windows[key] = w

	if len(m.windows) > 10000 {
		m.sweep(now)
	}
	return w.count <= limit, nil
}

// Reset forgets all attempts for key.
func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, key)
	return nil
}

// sweep drops expired windows. Caller holds mu.
func (m *Memory) sweep(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}
