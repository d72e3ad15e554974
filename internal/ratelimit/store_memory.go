package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = time.Minute

type window struct {
	stamps []time.Time
	span   time.Duration
}

// InMemoryStore keeps per-key request timestamps. Single process only.
// Keys whose window has fully elapsed are dropped on a periodic sweep.
type InMemoryStore struct {
	mu        sync.Mutex
	windows   map[string]*window
	nextSweep time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{windows: make(map[string]*window)}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, span time.Duration, now time.Time) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)

	var stamps []time.Time
	if w, ok := s.windows[key]; ok {
		stamps = prune(w.stamps, now.Add(-span))
	}
	if len(stamps) >= limit {
		s.store(key, stamps, span)
		resetAt := now.Add(span)
		if len(stamps) > 0 {
			resetAt = stamps[0].Add(span)
		}
		return &Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: resetAt}, nil
	}

	stamps = append(stamps, now)
	s.store(key, stamps, span)
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(stamps),
		ResetAt:   stamps[0].Add(span),
	}, nil
}

func (s *InMemoryStore) store(key string, stamps []time.Time, span time.Duration) {
	if len(stamps) == 0 {
		delete(s.windows, key)
		return
	}
	s.windows[key] = &window{stamps: stamps, span: span}
}

// sweep removes keys with no timestamp inside their window. Caller holds mu.
func (s *InMemoryStore) sweep(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	for key, w := range s.windows {
		if !w.stamps[len(w.stamps)-1].After(now.Add(-w.span)) {
			delete(s.windows, key)
		}
	}
	s.nextSweep = now.Add(sweepInterval)
}

// prune drops timestamps at or before cutoff. stamps is sorted ascending.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
