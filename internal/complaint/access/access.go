// Package access decides what a principal may do with a complaint.
//
// Rules are evaluated in order and the first match wins:
//   - ADMIN: always allowed
//   - CITIZEN: only their own complaints, and never status changes, locks or deletes
//   - EMPLOYEE: only complaints of their department, and only when both sides are set
//
// Every function is pure so the matrix can be tested without storage.
package access

import (
	"time"

	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

// CanView reports whether p may read c.
func CanView(p id.Principal, c *models.Complaint) bool {
	switch p.Role {
	case id.RoleAdmin:
		return true
	case id.RoleCitizen:
		return c.CitizenID == p.ID
	case id.RoleEmployee:
		return p.InDepartment(c.DepartmentID)
	}
	return false
}

// CanComment reports whether p may comment on c. Anyone who can read may comment.
func CanComment(p id.Principal, c *models.Complaint) bool {
	return CanView(p, c)
}

// CanPostInternal rejects internal notes from citizens.
func CanPostInternal(p id.Principal) error {
	if p.IsCitizen() {
		return dErrors.New(dErrors.CodeForbidden, "citizens cannot post internal notes")
	}
	return nil
}

// CanCreate allows only citizens to file complaints.
func CanCreate(p id.Principal) error {
	if !p.IsCitizen() {
		return dErrors.New(dErrors.CodeForbidden, "only citizens can file complaints")
	}
	return nil
}

// CanMutateStatus gates updates to status and routing fields.
func CanMutateStatus(p id.Principal, c *models.Complaint) error {
	switch p.Role {
	case id.RoleAdmin:
		return nil
	case id.RoleEmployee:
		if p.InDepartment(c.DepartmentID) {
			return nil
		}
		return dErrors.New(dErrors.CodeForbidden, "complaint belongs to another department")
	case id.RoleCitizen:
		return dErrors.New(dErrors.CodeForbidden, "citizens cannot change complaint status")
	}
	return dErrors.New(dErrors.CodeForbidden, "unknown role")
}

// CanLock gates acquiring, renewing and releasing a processing lease. Holder
// checks are the lock manager's job; this only checks role and department.
func CanLock(p id.Principal, c *models.Complaint) error {
	if p.IsCitizen() {
		return dErrors.New(dErrors.CodeForbidden, "citizens cannot lock complaints")
	}
	return CanMutateStatus(p, c)
}

// CanRelease reports whether p may clear the lease on c at now. Admins may
// always release; others only their own lease. No live lease means nothing to
// protect.
func CanRelease(p id.Principal, c *models.Complaint, now time.Time) error {
	if p.IsAdmin() || !c.LockActive(now) || c.LockHeldBy(p.ID, now) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "complaint is locked by another user")
}

// CanDelete allows only admins to delete complaints.
func CanDelete(p id.Principal) error {
	if !p.IsAdmin() {
		return dErrors.New(dErrors.CodeForbidden, "only admins can delete complaints")
	}
	return nil
}

// CanViewStatistics denies citizens.
func CanViewStatistics(p id.Principal) error {
	if p.IsCitizen() {
		return dErrors.New(dErrors.CodeForbidden, "citizens cannot view statistics")
	}
	return nil
}

// ListScope restricts listings and statistics to what a principal may see.
// None is set for principals that may see nothing, such as an employee
// without a department.
type ListScope struct {
	CitizenID    *id.UserID
	DepartmentID *id.DepartmentID
	None         bool
}

// Scope derives the listing restriction for p.
func Scope(p id.Principal) ListScope {
	switch p.Role {
	case id.RoleAdmin:
		return ListScope{}
	case id.RoleCitizen:
		citizen := p.ID
		return ListScope{CitizenID: &citizen}
	case id.RoleEmployee:
		if p.DepartmentID == nil {
			return ListScope{None: true}
		}
		dept := *p.DepartmentID
		return ListScope{DepartmentID: &dept}
	}
	return ListScope{None: true}
}

// Allows reports whether c falls inside the scope. Used by in-memory stores.
func (s ListScope) Allows(c *models.Complaint) bool {
	if s.None {
		return false
	}
	if s.CitizenID != nil && c.CitizenID != *s.CitizenID {
		return false
	}
	if s.DepartmentID != nil && (c.DepartmentID == nil || *c.DepartmentID != *s.DepartmentID) {
		return false
	}
	return true
}
