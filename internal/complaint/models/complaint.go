package models

import (
	"strings"
	"time"

	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

// Status is the processing state of a complaint. Transitions are unconstrained:
// any authorized actor may move a complaint between any two states.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusNew, StatusInProgress, StatusCompleted, StatusRejected}

func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// IsResolved reports whether the status closes the complaint.
func (s Status) IsResolved() bool {
	return s == StatusCompleted || s == StatusRejected
}

const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = MinPriority
)

// Complaint is the aggregate root of the lifecycle engine.
//
// Invariants:
//   - IsLocked is true exactly when LockedBy, LockedAt and LockExpiresAt are all set
//   - Priority is within [MinPriority, MaxPriority]
//   - ResolvedAt is set only while Status is COMPLETED or REJECTED
//   - ReferenceNumber and CitizenID never change after creation
type Complaint struct {
	ID                 id.ComplaintID   `json:"id"`
	ReferenceNumber    string           `json:"reference_number"`
	CitizenID          id.UserID        `json:"citizen_id"`
	DepartmentID       *id.DepartmentID `json:"department_id,omitempty"`
	AssignedEmployeeID *id.UserID       `json:"assigned_employee_id,omitempty"`
	Type               string           `json:"type"`
	Location           string           `json:"location"`
	Description        string           `json:"description"`
	Priority           int              `json:"priority"`
	Status             Status           `json:"status"`
	IsLocked           bool             `json:"is_locked"`
	LockedBy           *id.UserID       `json:"locked_by,omitempty"`
	LockedAt           *time.Time       `json:"locked_at,omitempty"`
	LockExpiresAt      *time.Time       `json:"lock_expires_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	ResolvedAt         *time.Time       `json:"resolved_at,omitempty"`
}

// NewComplaint builds a NEW, unlocked complaint owned by citizenID.
func NewComplaint(complaintID id.ComplaintID, referenceNumber string, citizenID id.UserID, req CreateRequest, now time.Time) (*Complaint, error) {
	if referenceNumber == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "reference number cannot be empty")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &Complaint{
		ID:              complaintID,
		ReferenceNumber: referenceNumber,
		CitizenID:       citizenID,
		DepartmentID:    req.DepartmentID,
		Type:            strings.TrimSpace(req.Type),
		Location:        strings.TrimSpace(req.Location),
		Description:     strings.TrimSpace(req.Description),
		Priority:        req.EffectivePriority(),
		Status:          StatusNew,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// LockActive reports whether a processing lease is held and unexpired at now.
func (c *Complaint) LockActive(now time.Time) bool {
	return c.IsLocked && c.LockExpiresAt != nil && now.Before(*c.LockExpiresAt)
}

// LockHeldBy reports whether userID holds a live lease.
func (c *Complaint) LockHeldBy(userID id.UserID, now time.Time) bool {
	return c.LockActive(now) && c.LockedBy != nil && *c.LockedBy == userID
}

// LockedByOther reports whether a live lease is held by anyone but userID.
func (c *Complaint) LockedByOther(userID id.UserID, now time.Time) bool {
	return c.LockActive(now) && (c.LockedBy == nil || *c.LockedBy != userID)
}

// ApplyLock grants or refreshes the lease for holder. A re-acquire by the
// current holder keeps the original LockedAt.
func (c *Complaint) ApplyLock(holder id.UserID, now, expiresAt time.Time) {
	lockedAt := now
	if c.LockHeldBy(holder, now) && c.LockedAt != nil {
		lockedAt = *c.LockedAt
	}
	c.IsLocked = true
	c.LockedBy = &holder
	c.LockedAt = &lockedAt
	c.LockExpiresAt = &expiresAt
}

// ClearLock removes the lease.
func (c *Complaint) ClearLock() {
	c.IsLocked = false
	c.LockedBy = nil
	c.LockedAt = nil
	c.LockExpiresAt = nil
}

// ApplyPatch applies the non-nil fields of patch. It reports the previous
// status and whether the status changed. Call patch.Validate first.
func (c *Complaint) ApplyPatch(patch UpdatePatch, now time.Time) (Status, bool) {
	oldStatus := c.Status
	if patch.Priority != nil {
		c.Priority = *patch.Priority
	}
	if patch.DepartmentID != nil {
		dept := *patch.DepartmentID
		c.DepartmentID = &dept
	}
	if patch.AssignedEmployeeID != nil {
		emp := *patch.AssignedEmployeeID
		c.AssignedEmployeeID = &emp
	}
	changed := false
	if patch.Status != nil && *patch.Status != oldStatus {
		c.Status = *patch.Status
		changed = true
		if c.Status.IsResolved() {
			resolved := now
			c.ResolvedAt = &resolved
		} else {
			c.ResolvedAt = nil
		}
	}
	c.UpdatedAt = now
	return oldStatus, changed
}

// Clone returns a deep copy, so stores never share pointers with callers.
func (c *Complaint) Clone() *Complaint {
	if c == nil {
		return nil
	}
	cp := *c
	cp.DepartmentID = clonePtr(c.DepartmentID)
	cp.AssignedEmployeeID = clonePtr(c.AssignedEmployeeID)
	cp.LockedBy = clonePtr(c.LockedBy)
	cp.LockedAt = clonePtr(c.LockedAt)
	cp.LockExpiresAt = clonePtr(c.LockExpiresAt)
	cp.ResolvedAt = clonePtr(c.ResolvedAt)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
