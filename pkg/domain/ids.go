// Package domain holds identifiers and value types shared across bounded contexts.
package domain

import (
	"github.com/google/uuid"

	dErrors "civicdesk/pkg/domain-errors"
)

// Typed identifiers. Distinct types keep a user ID from being passed where a
// complaint ID is expected.
type (
	UserID       uuid.UUID
	DepartmentID uuid.UUID
	ComplaintID  uuid.UUID
	CommentID    uuid.UUID
)

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id DepartmentID) String() string { return uuid.UUID(id).String() }
func (id ComplaintID) String() string  { return uuid.UUID(id).String() }
func (id CommentID) String() string    { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id DepartmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ComplaintID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id CommentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id DepartmentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ComplaintID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id CommentID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DepartmentID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ComplaintID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CommentID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }

// ParseUserID parses a non-nil UUID. Used at trust boundaries (path params, token claims).
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

func ParseDepartmentID(s string) (DepartmentID, error) {
	u, err := parseUUID(s, "department ID")
	return DepartmentID(u), err
}

func ParseComplaintID(s string) (ComplaintID, error) {
	u, err := parseUUID(s, "complaint ID")
	return ComplaintID(u), err
}

func ParseCommentID(s string) (CommentID, error) {
	u, err := parseUUID(s, "comment ID")
	return CommentID(u), err
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}
