package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "civicdesk/pkg/domain"
	txcontext "civicdesk/pkg/platform/tx"
)

// PostgresStore writes audit_entries and an outbox row in the caller's
// transaction. The outbox relay publishes the row to Kafka afterwards.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	q := txcontext.Use(ctx, s.db)

	query := `
		INSERT INTO audit_entries (id, action, entity, entity_id, user_id, details, ip_address, user_agent, device, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := q.ExecContext(ctx, query,
		entry.ID,
		string(entry.Action),
		string(entry.Entity),
		entry.EntityID,
		uuid.UUID(entry.UserID),
		nullJSON(entry.Details),
		nullString(entry.IPAddress),
		nullString(entry.UserAgent),
		nullString(entry.Device),
		nullString(entry.RequestID),
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	outbox := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := q.ExecContext(ctx, outbox,
		uuid.New(),
		string(entry.Entity),
		entry.EntityID,
		string(entry.Action),
		payload,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByEntity returns the entries for one entity, oldest first.
func (s *PostgresStore) ListByEntity(ctx context.Context, entity Entity, entityID string) ([]Entry, error) {
	query := `
		SELECT id, action, entity, entity_id, user_id, details,
			COALESCE(ip_address, ''), COALESCE(user_agent, ''), COALESCE(device, ''), COALESCE(request_id, ''),
			created_at
		FROM audit_entries
		WHERE entity = $1 AND entity_id = $2
		ORDER BY created_at ASC
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, string(entity), entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			action  string
			kind    string
			userID  uuid.UUID
			details []byte
		)
		if err := rows.Scan(&e.ID, &action, &kind, &e.EntityID, &userID, &details,
			&e.IPAddress, &e.UserAgent, &e.Device, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = Action(action)
		e.Entity = Entity(kind)
		e.UserID = id.UserID(userID)
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
