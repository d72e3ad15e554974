package store

import (
	"context"
	"sort"
	"sync"

	"civicdesk/internal/staff/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu          sync.RWMutex
	users       map[id.UserID]*models.User
	departments map[id.DepartmentID]*models.Department
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		users:       make(map[id.UserID]*models.User),
		departments: make(map[id.DepartmentID]*models.Department),
	}
}

func (s *InMemoryStore) CreateDepartment(_ context.Context, d *models.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.departments {
		if existing.Name == d.Name {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *d
	s.departments[d.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindDepartment(_ context.Context, deptID id.DepartmentID) (*models.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.departments[deptID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// CreateUser rejects a user whose email or phone is already taken.
func (s *InMemoryStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if sameContact(existing.Email, u.Email) || sameContact(existing.Phone, u.Phone) {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func sameContact(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func (s *InMemoryStore) FindUser(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *InMemoryStore) SetUserDepartment(_ context.Context, userID id.UserID, deptID *id.DepartmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if deptID == nil {
		u.DepartmentID = nil
		return nil
	}
	dept := *deptID
	u.DepartmentID = &dept
	return nil
}

// StaffOf returns the active employees and admins of a department, ordered by
// creation time.
func (s *InMemoryStore) StaffOf(_ context.Context, deptID id.DepartmentID) ([]id.UserID, error) {
	s.mu.RLock()
	matched := make([]*models.User, 0)
	for _, u := range s.users {
		if u.IsActive && u.Role.IsStaff() && u.DepartmentID != nil && *u.DepartmentID == deptID {
			matched = append(matched, u)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	out := make([]id.UserID, 0, len(matched))
	for _, u := range matched {
		out = append(out, u.ID)
	}
	return out, nil
}

func cloneUser(u *models.User) *models.User {
	cp := *u
	if u.Email != nil {
		v := *u.Email
		cp.Email = &v
	}
	if u.Phone != nil {
		v := *u.Phone
		cp.Phone = &v
	}
	if u.DepartmentID != nil {
		v := *u.DepartmentID
		cp.DepartmentID = &v
	}
	return &cp
}
