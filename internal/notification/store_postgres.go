package notification

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "civicdesk/pkg/domain"
	txcontext "civicdesk/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, records ...*Record) error {
	query := `
		INSERT INTO notifications (id, user_id, complaint_id, type, title, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	q := txcontext.Use(ctx, s.db)
	for _, r := range records {
		var complaintID any
		if r.ComplaintID != nil {
			complaintID = uuid.UUID(*r.ComplaintID)
		}
		if _, err := q.ExecContext(ctx, query,
			r.ID,
			uuid.UUID(r.UserID),
			complaintID,
			string(r.Type),
			r.Title,
			r.Message,
			r.IsRead,
			r.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}

// DetachComplaint clears the link explicitly so it happens inside the caller's
// transaction even before the complaint row is removed.
func (s *PostgresStore) DetachComplaint(ctx context.Context, complaintID id.ComplaintID) error {
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx,
		`UPDATE notifications SET complaint_id = NULL WHERE complaint_id = $1`, uuid.UUID(complaintID))
	if err != nil {
		return fmt.Errorf("detach notifications: %w", err)
	}
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*Record, error) {
	query := `
		SELECT id, user_id, complaint_id, type, title, message, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			r           Record
			owner       uuid.UUID
			complaintID uuid.NullUUID
			typ         string
		)
		if err := rows.Scan(&r.ID, &owner, &complaintID, &typ, &r.Title, &r.Message, &r.IsRead, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		r.UserID = id.UserID(owner)
		r.Type = Type(typ)
		if complaintID.Valid {
			cid := id.ComplaintID(complaintID.UUID)
			r.ComplaintID = &cid
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
