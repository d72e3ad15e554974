package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"civicdesk/internal/complaint/access"
	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps complaints, history and comments in maps. Every method
// is atomic on its own; multi-step units of work are serialized by
// tx.MemoryTransactor.
type InMemoryStore struct {
	mu         sync.RWMutex
	complaints map[id.ComplaintID]*memoryComplaint
	byRef      map[string]id.ComplaintID
	history    map[id.ComplaintID][]*models.HistoryEntry
	comments   map[id.ComplaintID][]*models.Comment
	seq        int64
}

// memoryComplaint pairs a row with its insertion order, the tie-breaker for
// equal creation times.
type memoryComplaint struct {
	complaint *models.Complaint
	seq       int64
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		complaints: make(map[id.ComplaintID]*memoryComplaint),
		byRef:      make(map[string]id.ComplaintID),
		history:    make(map[id.ComplaintID][]*models.HistoryEntry),
		comments:   make(map[id.ComplaintID][]*models.Comment),
	}
}

func (s *InMemoryStore) Create(_ context.Context, c *models.Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byRef[c.ReferenceNumber]; exists {
		return sentinel.ErrAlreadyUsed
	}
	if _, exists := s.complaints[c.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.seq++
	s.complaints[c.ID] = &memoryComplaint{complaint: c.Clone(), seq: s.seq}
	s.byRef[c.ReferenceNumber] = c.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, complaintID id.ComplaintID) (*models.Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.complaints[complaintID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return row.complaint.Clone(), nil
}

// FindByIDForUpdate is FindByID; isolation comes from the memory transactor.
func (s *InMemoryStore) FindByIDForUpdate(ctx context.Context, complaintID id.ComplaintID) (*models.Complaint, error) {
	return s.FindByID(ctx, complaintID)
}

func (s *InMemoryStore) Update(_ context.Context, c *models.Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.complaints[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	row.complaint = c.Clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, complaintID id.ComplaintID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.complaints[complaintID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byRef, row.complaint.ReferenceNumber)
	delete(s.complaints, complaintID)
	delete(s.history, complaintID)
	delete(s.comments, complaintID)
	return nil
}

// List returns one page of complaints inside scope matching f, newest first,
// and the total number of matches.
func (s *InMemoryStore) List(_ context.Context, scope access.ListScope, f models.Filter) ([]*models.Complaint, int, error) {
	if scope.None {
		return []*models.Complaint{}, 0, nil
	}
	f = f.Normalize()
	search := strings.ToLower(f.Search)

	s.mu.RLock()
	matched := make([]*memoryComplaint, 0, len(s.complaints))
	for _, row := range s.complaints {
		if scope.Allows(row.complaint) && matchesFilter(row.complaint, f, search) {
			matched = append(matched, row)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.complaint.CreatedAt.Equal(b.complaint.CreatedAt) {
			return a.complaint.CreatedAt.After(b.complaint.CreatedAt)
		}
		return a.seq > b.seq
	})

	total := len(matched)
	start := max(min(f.Offset(), total), 0)
	end := min(start+f.Limit, total)
	page := make([]*models.Complaint, 0, end-start)
	for _, row := range matched[start:end] {
		page = append(page, row.complaint.Clone())
	}
	return page, total, nil
}

func matchesFilter(c *models.Complaint, f models.Filter, search string) bool {
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.DepartmentID != nil && (c.DepartmentID == nil || *c.DepartmentID != *f.DepartmentID) {
		return false
	}
	if f.CitizenID != nil && c.CitizenID != *f.CitizenID {
		return false
	}
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.ReferenceNumber), search) ||
		strings.Contains(strings.ToLower(c.Description), search) ||
		strings.Contains(strings.ToLower(c.Type), search)
}

func (s *InMemoryStore) CountByStatus(_ context.Context, scope access.ListScope) (map[models.Status]int, error) {
	counts := make(map[models.Status]int, len(models.Statuses))
	if scope.None {
		return counts, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.complaints {
		if scope.Allows(row.complaint) {
			counts[row.complaint.Status]++
		}
	}
	return counts, nil
}

func (s *InMemoryStore) AppendHistory(_ context.Context, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.complaints[entry.ComplaintID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *entry
	s.history[entry.ComplaintID] = append(s.history[entry.ComplaintID], &cp)
	return nil
}

// ListHistory returns up to limit entries, newest first.
func (s *InMemoryStore) ListHistory(_ context.Context, complaintID id.ComplaintID, limit int) ([]*models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[complaintID]
	out := make([]*models.HistoryEntry, 0, min(len(entries), max(limit, 0)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *entries[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) AddComment(_ context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.complaints[comment.ComplaintID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *comment
	s.comments[comment.ComplaintID] = append(s.comments[comment.ComplaintID], &cp)
	return nil
}

// ListComments returns comments newest first, dropping internal ones unless
// includeInternal is set.
func (s *InMemoryStore) ListComments(_ context.Context, complaintID id.ComplaintID, includeInternal bool) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comments := s.comments[complaintID]
	out := make([]*models.Comment, 0, len(comments))
	for i := len(comments) - 1; i >= 0; i-- {
		if comments[i].IsInternal && !includeInternal {
			continue
		}
		cp := *comments[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) TryAcquire(_ context.Context, complaintID id.ComplaintID, holder id.UserID, override bool, now, expiresAt time.Time) (*models.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.complaints[complaintID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := row.complaint
	if c.LockedByOther(holder, now) && !override {
		return nil, sentinel.ErrLocked
	}
	c.ApplyLock(holder, now, expiresAt)
	return c.Clone(), nil
}

func (s *InMemoryStore) TryRelease(_ context.Context, complaintID id.ComplaintID, holder id.UserID, override bool, now time.Time) (*models.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.complaints[complaintID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := row.complaint
	if c.LockedByOther(holder, now) && !override {
		return nil, sentinel.ErrLocked
	}
	c.ClearLock()
	return c.Clone(), nil
}

func (s *InMemoryStore) TryRenew(_ context.Context, complaintID id.ComplaintID, holder id.UserID, now, expiresAt time.Time) (*models.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.complaints[complaintID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := row.complaint
	switch {
	case c.LockedByOther(holder, now):
		return nil, sentinel.ErrLocked
	case !c.IsLocked || c.LockedBy == nil || *c.LockedBy != holder:
		return nil, sentinel.ErrInvalidState
	}
	c.LockExpiresAt = &expiresAt
	return c.Clone(), nil
}
