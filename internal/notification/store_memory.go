package notification

import (
	"context"
	"sync"

	id "civicdesk/pkg/domain"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records []*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Save(_ context.Context, records ...*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		cp := *r
		s.records = append(s.records, &cp)
	}
	return nil
}

func (s *InMemoryStore) DetachComplaint(_ context.Context, complaintID id.ComplaintID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ComplaintID != nil && *r.ComplaintID == complaintID {
			r.ComplaintID = nil
		}
	}
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].UserID == userID {
			cp := *s.records[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}
