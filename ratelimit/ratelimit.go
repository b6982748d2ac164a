// Package ratelimit throttles message sends per user with a sliding window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether one more event for key fits in the window. An
// allowed event is recorded; a rejected one is not.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory is a process-local sliding window limiter.
type Memory struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	now    func() time.Time
	hits   map[string][]time.Time
}

func NewMemory(max int, window time.Duration) *Memory {
	return &Memory{
		max:    max,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// SetClock replaces the time source; tests only.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	recent := prune(m.hits[key], now.Add(-m.window))
	if len(recent) >= m.max {
		m.hits[key] = recent
		return false, nil
	}
	m.hits[key] = append(recent, now)
	return true, nil
}

// prune drops timestamps at or before cutoff. Timestamps are ascending.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// Evict forgets keys with no event in the last idle duration and returns how
// many were removed.
func (m *Memory) Evict(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idle)
	removed := 0
	for key, ts := range m.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(m.hits, key)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}
