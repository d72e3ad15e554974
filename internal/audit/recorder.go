// Package audit records who did what to which entity.
//
// Recording is fail-closed: entries are written synchronously through the
// transaction-bound store, and a failed write fails the audited operation.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"civicdesk/pkg/platform/middleware/device"
	"civicdesk/pkg/requestcontext"
)

type Store interface {
	Append(ctx context.Context, entry *Entry) error
}

type Recorder struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func NewRecorder(store Store, opts ...Option) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	r := &Recorder{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record enriches entry from the request context and appends it.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.UserID.IsNil() {
		return errors.New("audit entry requires a user")
	}
	if entry.Action == "" {
		return errors.New("audit entry requires an action")
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = requestcontext.Now(ctx)
	}
	if entry.IPAddress == "" {
		entry.IPAddress = requestcontext.ClientIP(ctx)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = requestcontext.UserAgent(ctx)
	}
	if entry.Device == "" && entry.UserAgent != "" {
		entry.Device = device.Describe(entry.UserAgent)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}

	if err := r.store.Append(ctx, &entry); err != nil {
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "audit write failed",
				"action", string(entry.Action),
				"entity_id", entry.EntityID,
				"request_id", entry.RequestID,
				"error", err,
			)
		}
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}
