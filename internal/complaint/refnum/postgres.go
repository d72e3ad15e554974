package refnum

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	txcontext "civicdesk/pkg/platform/tx"
)

// PostgresSequencer increments a per-day row with an upsert. Inside the create
// transaction the row lock serializes concurrent allocators, and a rolled back
// creation leaves no gap.
type PostgresSequencer struct {
	db *sql.DB
}

func NewPostgresSequencer(db *sql.DB) *PostgresSequencer {
	return &PostgresSequencer{db: db}
}

func (s *PostgresSequencer) Next(ctx context.Context, day time.Time) (int64, error) {
	query := `
		INSERT INTO complaint_sequences (day, last_value)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last_value = complaint_sequences.last_value + 1
		RETURNING last_value
	`
	var n int64
	if err := txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, day.Format(time.DateOnly)).Scan(&n); err != nil {
		return 0, fmt.Errorf("increment complaint sequence: %w", err)
	}
	return n, nil
}
