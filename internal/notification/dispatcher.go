// Package notification fans lifecycle events out to the users who should hear
// about them. Records are written through the transaction-bound store, so a
// notification commits or rolls back with the mutation that caused it.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "civicdesk/pkg/domain"
	pstrings "civicdesk/pkg/platform/strings"
)

type Store interface {
	Save(ctx context.Context, records ...*Record) error
	DetachComplaint(ctx context.Context, complaintID id.ComplaintID) error
}

type Dispatcher struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func NewDispatcher(store Store, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("notification store is required")
	}
	d := &Dispatcher{store: store}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ComplaintCreated confirms receipt to the citizen and alerts department staff.
// The citizen never receives NEW_COMPLAINT, even when listed as staff.
func (d *Dispatcher) ComplaintCreated(ctx context.Context, ref ComplaintRef, staff []id.UserID, now time.Time) error {
	records := []*Record{d.newRecord(ref.CitizenID, &ref.ID, TypeComplaintCreated,
		"Your complaint was received",
		fmt.Sprintf("Your complaint was received with reference number %s", ref.ReferenceNumber),
		now)}

	for _, userID := range pstrings.Dedupe(staff) {
		if userID == ref.CitizenID {
			continue
		}
		records = append(records, d.newRecord(userID, &ref.ID, TypeNewComplaint,
			"New complaint",
			fmt.Sprintf("New complaint with reference number %s", ref.ReferenceNumber),
			now))
	}
	return d.save(ctx, records...)
}

func (d *Dispatcher) StatusChanged(ctx context.Context, ref ComplaintRef, newStatus string, now time.Time) error {
	return d.save(ctx, d.newRecord(ref.CitizenID, &ref.ID, TypeStatusUpdate,
		"Complaint status updated",
		fmt.Sprintf("Your complaint (%s) was updated to: %s", ref.ReferenceNumber, newStatus),
		now))
}

// CommentAdded tells the citizen about a visible comment written by someone else.
// Internal notes and the citizen's own comments notify nobody.
func (d *Dispatcher) CommentAdded(ctx context.Context, ref ComplaintRef, author id.UserID, internal bool, now time.Time) error {
	if internal || author == ref.CitizenID {
		return nil
	}
	return d.save(ctx, d.newRecord(ref.CitizenID, &ref.ID, TypeNewComment,
		"New comment on your complaint",
		fmt.Sprintf("A new comment was added to your complaint (%s)", ref.ReferenceNumber),
		now))
}

func (d *Dispatcher) EmployeeAssigned(ctx context.Context, userID id.UserID, departmentName string, now time.Time) error {
	return d.save(ctx, d.newRecord(userID, nil, TypeAssignment,
		"Assigned to a department",
		fmt.Sprintf("You were assigned to: %s", departmentName),
		now))
}

func (d *Dispatcher) EmployeeRemoved(ctx context.Context, userID id.UserID, departmentName string, now time.Time) error {
	return d.save(ctx, d.newRecord(userID, nil, TypeRemoval,
		"Removed from a department",
		fmt.Sprintf("You were removed from: %s", departmentName),
		now))
}

func (d *Dispatcher) AccountCreated(ctx context.Context, userID id.UserID, now time.Time) error {
	return d.save(ctx, d.newRecord(userID, nil, TypeAccountCreated,
		"New account",
		"An account was created for you in the complaints system",
		now))
}

// ComplaintDeleted keeps the complaint's notifications but drops their link.
func (d *Dispatcher) ComplaintDeleted(ctx context.Context, complaintID id.ComplaintID) error {
	if err := d.store.DetachComplaint(ctx, complaintID); err != nil {
		return fmt.Errorf("detach notifications: %w", err)
	}
	return nil
}

func (d *Dispatcher) newRecord(userID id.UserID, complaintID *id.ComplaintID, typ Type, title, message string, now time.Time) *Record {
	var cid *id.ComplaintID
	if complaintID != nil {
		v := *complaintID
		cid = &v
	}
	return &Record{
		ID:          uuid.New(),
		UserID:      userID,
		ComplaintID: cid,
		Type:        typ,
		Title:       title,
		Message:     message,
		CreatedAt:   now,
	}
}

func (d *Dispatcher) save(ctx context.Context, records ...*Record) error {
	if err := d.store.Save(ctx, records...); err != nil {
		return fmt.Errorf("save notifications: %w", err)
	}
	if d.logger != nil {
		d.logger.DebugContext(ctx, "notifications queued",
			"count", len(records),
			"type", string(records[0].Type),
		)
	}
	return nil
}
