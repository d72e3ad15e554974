package models

import (
	"math"
	"strings"

	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

// CreateRequest is the citizen-supplied payload for a new complaint.
// Priority 0 means "not given" and defaults to DefaultPriority.
type CreateRequest struct {
	Type         string           `json:"type"`
	Location     string           `json:"location"`
	Description  string           `json:"description"`
	Priority     int              `json:"priority,omitempty"`
	DepartmentID *id.DepartmentID `json:"department_id,omitempty"`
}

func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.Type) == "" {
		return dErrors.New(dErrors.CodeValidation, "type is required")
	}
	if strings.TrimSpace(r.Location) == "" {
		return dErrors.New(dErrors.CodeValidation, "location is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		return dErrors.New(dErrors.CodeValidation, "description is required")
	}
	if r.Priority != 0 && (r.Priority < MinPriority || r.Priority > MaxPriority) {
		return dErrors.New(dErrors.CodeValidation, "priority must be between 1 and 5")
	}
	return nil
}

func (r CreateRequest) EffectivePriority() int {
	if r.Priority == 0 {
		return DefaultPriority
	}
	return r.Priority
}

// UpdatePatch carries the staff-editable fields. Nil fields are left unchanged.
type UpdatePatch struct {
	Status             *Status          `json:"status,omitempty"`
	Priority           *int             `json:"priority,omitempty"`
	DepartmentID       *id.DepartmentID `json:"department_id,omitempty"`
	AssignedEmployeeID *id.UserID       `json:"assigned_employee_id,omitempty"`
}

func (p UpdatePatch) Validate() error {
	if p.Status != nil && !p.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid status")
	}
	if p.Priority != nil && (*p.Priority < MinPriority || *p.Priority > MaxPriority) {
		return dErrors.New(dErrors.CodeValidation, "priority must be between 1 and 5")
	}
	return nil
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Filter narrows a complaint listing. Role scoping is applied before it.
type Filter struct {
	Status       *Status
	DepartmentID *id.DepartmentID
	CitizenID    *id.UserID
	Search       string
	Page         int
	Limit        int
}

// Normalize applies paging defaults and trims the search term.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

func (f Filter) Validate() error {
	if f.Status != nil && !f.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid status filter")
	}
	// The offset (page-1)*limit must fit in an int.
	if n := f.Normalize(); n.Page > math.MaxInt/n.Limit {
		return dErrors.New(dErrors.CodeValidation, "page out of range")
	}
	return nil
}
