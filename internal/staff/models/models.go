package models

import (
	"strings"
	"time"

	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

// Department is a government body complaints are routed to.
type Department struct {
	ID        id.DepartmentID `json:"id"`
	Name      string          `json:"name"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// User is a directory entry. PasswordHash never leaves the service layer.
type User struct {
	ID           id.UserID        `json:"id"`
	Name         string           `json:"name"`
	Email        *string          `json:"email,omitempty"`
	Phone        *string          `json:"phone,omitempty"`
	Role         id.Role          `json:"role"`
	DepartmentID *id.DepartmentID `json:"department_id,omitempty"`
	PasswordHash string           `json:"-"`
	IsActive     bool             `json:"is_active"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Principal is the access-control view of the user.
func (u *User) Principal() id.Principal {
	return id.Principal{ID: u.ID, Role: u.Role, DepartmentID: u.DepartmentID}
}

// CreateAccountRequest is an admin-issued account. Role defaults to CITIZEN.
type CreateAccountRequest struct {
	Name         string           `json:"name"`
	Email        string           `json:"email,omitempty"`
	Phone        string           `json:"phone,omitempty"`
	Password     string           `json:"password"`
	Role         id.Role          `json:"role,omitempty"`
	DepartmentID *id.DepartmentID `json:"department_id,omitempty"`
}

// Normalize trims identifiers and applies the default role.
func (r *CreateAccountRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	if r.Role == "" {
		r.Role = id.RoleCitizen
	}
}

func (r *CreateAccountRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	if r.Email == "" && r.Phone == "" {
		return dErrors.New(dErrors.CodeBadRequest, "email or phone is required")
	}
	if r.Email != "" && !strings.Contains(r.Email, "@") {
		return dErrors.New(dErrors.CodeValidation, "invalid email")
	}
	if !r.Role.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid role")
	}
	return nil
}
