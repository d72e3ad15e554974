// Package lock grants exclusive processing leases on complaints.
//
// A lease is a compare-and-set on the complaint row: it is granted only when
// the row is unlocked, already held by the caller, expired, or when an admin
// takes it over. Leases lapse after the configured TTL; every reader treats an
// expired lease as unlocked, and the holder can extend it with Renew.
package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"civicdesk/internal/complaint/metrics"
	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
)

// DefaultTTL applies when no lease TTL is configured.
const DefaultTTL = 15 * time.Minute

// Store performs the conditional lease updates. Implementations must apply
// each method as a single atomic statement and return:
//   - sentinel.ErrNotFound when the complaint does not exist
//   - sentinel.ErrLocked when another principal holds a live lease
//   - sentinel.ErrInvalidState from TryRenew when holder holds no lease
type Store interface {
	TryAcquire(ctx context.Context, complaintID id.ComplaintID, holder id.UserID, override bool, now, expiresAt time.Time) (*models.Complaint, error)
	TryRelease(ctx context.Context, complaintID id.ComplaintID, holder id.UserID, override bool, now time.Time) (*models.Complaint, error)
	TryRenew(ctx context.Context, complaintID id.ComplaintID, holder id.UserID, now, expiresAt time.Time) (*models.Complaint, error)
}

// Manager translates lease outcomes into domain errors.
type Manager struct {
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func NewManager(store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("lock store is required")
	}
	m := &Manager{store: store, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the lease duration.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Acquire grants p a lease until now+TTL. Re-acquiring refreshes the lease.
// Admins take over live leases held by others.
func (m *Manager) Acquire(ctx context.Context, complaintID id.ComplaintID, p id.Principal, now time.Time) (*models.Complaint, error) {
	c, err := m.store.TryAcquire(ctx, complaintID, p.ID, p.IsAdmin(), now, now.Add(m.ttl))
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "complaint not found")
		case errors.Is(err, sentinel.ErrLocked):
			m.recordConflict(ctx, complaintID, p)
			return nil, dErrors.New(dErrors.CodeLockConflict, "complaint is locked by another user")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock complaint")
	}
	return c, nil
}

// Release clears the lease. Releasing an unlocked or expired lease succeeds.
func (m *Manager) Release(ctx context.Context, complaintID id.ComplaintID, p id.Principal, now time.Time) (*models.Complaint, error) {
	c, err := m.store.TryRelease(ctx, complaintID, p.ID, p.IsAdmin(), now)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "complaint not found")
		case errors.Is(err, sentinel.ErrLocked):
			return nil, dErrors.New(dErrors.CodeForbidden, "complaint is locked by another user")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to unlock complaint")
	}
	return c, nil
}

// Renew extends the caller's lease to now+TTL. A lapsed lease nobody else
// took is still the caller's to renew.
func (m *Manager) Renew(ctx context.Context, complaintID id.ComplaintID, p id.Principal, now time.Time) (*models.Complaint, error) {
	c, err := m.store.TryRenew(ctx, complaintID, p.ID, now, now.Add(m.ttl))
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "complaint not found")
		case errors.Is(err, sentinel.ErrLocked):
			m.recordConflict(ctx, complaintID, p)
			return nil, dErrors.New(dErrors.CodeLockConflict, "complaint is locked by another user")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeConflict, "lock not held")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to renew lock")
	}
	return c, nil
}

func (m *Manager) recordConflict(ctx context.Context, complaintID id.ComplaintID, p id.Principal) {
	if m.metrics != nil {
		m.metrics.IncrementLockConflict()
	}
	if m.logger != nil {
		m.logger.InfoContext(ctx, "lock conflict",
			"complaint_id", complaintID.String(),
			"user_id", p.ID.String(),
		)
	}
}
