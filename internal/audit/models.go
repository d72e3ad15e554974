package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "civicdesk/pkg/domain"
)

// Action names an audited operation.
type Action string

const (
	ActionCreateComplaint  Action = "CREATE_COMPLAINT"
	ActionUpdateComplaint  Action = "UPDATE_COMPLAINT"
	ActionLockComplaint    Action = "LOCK_COMPLAINT"
	ActionUnlockComplaint  Action = "UNLOCK_COMPLAINT"
	ActionRenewLock        Action = "RENEW_COMPLAINT_LOCK"
	ActionAddComment       Action = "ADD_COMMENT"
	ActionDeleteComplaint  Action = "DELETE_COMPLAINT"
	ActionAssignEmployee   Action = "ASSIGN_EMPLOYEE"
	ActionRemoveEmployee   Action = "REMOVE_EMPLOYEE"
	ActionCreateUser       Action = "CREATE_USER"
	ActionCreateDepartment Action = "CREATE_DEPARTMENT"
)

// Entity names the kind of record an entry refers to.
type Entity string

const (
	EntityComplaint  Entity = "Complaint"
	EntityUser       Entity = "User"
	EntityDepartment Entity = "Department"
)

// Entry is one immutable audit row. The recorder fills ID, CreatedAt and the
// client metadata fields from the request context.
type Entry struct {
	ID        uuid.UUID       `json:"id"`
	Action    Action          `json:"action"`
	Entity    Entity          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	UserID    id.UserID       `json:"user_id"`
	Details   json.RawMessage `json:"details,omitempty"`
	IPAddress string          `json:"ip_address,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	Device    string          `json:"device,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Details marshals v for Entry.Details. Values that cannot be marshalled are
// recorded as null rather than failing the audited operation.
func Details(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
