package notification

import (
	"time"

	"github.com/google/uuid"

	id "civicdesk/pkg/domain"
)

// Type classifies a notification for client-side rendering.
type Type string

const (
	TypeComplaintCreated Type = "COMPLAINT_CREATED"
	TypeNewComplaint     Type = "NEW_COMPLAINT"
	TypeStatusUpdate     Type = "STATUS_UPDATE"
	TypeNewComment       Type = "NEW_COMMENT"
	TypeAssignment       Type = "ASSIGNMENT"
	TypeRemoval          Type = "REMOVAL"
	TypeAccountCreated   Type = "ACCOUNT_CREATED"
)

// Record is one notification addressed to one user. ComplaintID is cleared
// when the complaint is deleted; the record itself is kept.
type Record struct {
	ID          uuid.UUID       `json:"id"`
	UserID      id.UserID       `json:"user_id"`
	ComplaintID *id.ComplaintID `json:"complaint_id,omitempty"`
	Type        Type            `json:"type"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	IsRead      bool            `json:"is_read"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ComplaintRef is the slice of a complaint that notifications need.
type ComplaintRef struct {
	ID              id.ComplaintID
	ReferenceNumber string
	CitizenID       id.UserID
}
