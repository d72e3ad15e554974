package refnum

import (
	"context"
	"sync"
	"time"
)

// MemorySequencer keeps per-day counters in process memory.
type MemorySequencer struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{counters: make(map[string]int64)}
}

func (s *MemorySequencer) Next(_ context.Context, day time.Time) (int64, error) {
	key := day.Format(time.DateOnly)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}
