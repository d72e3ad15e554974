// Package service is the complaint lifecycle engine. Every public operation
// authorizes through the access package, applies its change through the
// transaction-bound stores, and writes history, audit and notification records
// in the same unit of work before returning.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"civicdesk/internal/audit"
	"civicdesk/internal/complaint/access"
	"civicdesk/internal/complaint/metrics"
	"civicdesk/internal/complaint/models"
	"civicdesk/internal/notification"
	staffmodels "civicdesk/internal/staff/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
	"civicdesk/pkg/requestcontext"
)

const tracerName = "civicdesk/internal/complaint/service"

// Store persists complaints with their history and comments.
type Store interface {
	Create(ctx context.Context, c *models.Complaint) error
	FindByID(ctx context.Context, complaintID id.ComplaintID) (*models.Complaint, error)
	FindByIDForUpdate(ctx context.Context, complaintID id.ComplaintID) (*models.Complaint, error)
	Update(ctx context.Context, c *models.Complaint) error
	Delete(ctx context.Context, complaintID id.ComplaintID) error
	List(ctx context.Context, scope access.ListScope, f models.Filter) ([]*models.Complaint, int, error)
	CountByStatus(ctx context.Context, scope access.ListScope) (map[models.Status]int, error)
	AppendHistory(ctx context.Context, entry *models.HistoryEntry) error
	ListHistory(ctx context.Context, complaintID id.ComplaintID, limit int) ([]*models.HistoryEntry, error)
	AddComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, complaintID id.ComplaintID, includeInternal bool) ([]*models.Comment, error)
}

type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LockManager grants processing leases. Returned errors are already domain errors.
type LockManager interface {
	Acquire(ctx context.Context, complaintID id.ComplaintID, p id.Principal, now time.Time) (*models.Complaint, error)
	Release(ctx context.Context, complaintID id.ComplaintID, p id.Principal, now time.Time) (*models.Complaint, error)
	Renew(ctx context.Context, complaintID id.ComplaintID, p id.Principal, now time.Time) (*models.Complaint, error)
}

type ReferenceGenerator interface {
	Next(ctx context.Context, now time.Time) (string, error)
}

type Notifier interface {
	ComplaintCreated(ctx context.Context, ref notification.ComplaintRef, staff []id.UserID, now time.Time) error
	StatusChanged(ctx context.Context, ref notification.ComplaintRef, newStatus string, now time.Time) error
	CommentAdded(ctx context.Context, ref notification.ComplaintRef, author id.UserID, internal bool, now time.Time) error
	ComplaintDeleted(ctx context.Context, complaintID id.ComplaintID) error
}

type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// StaffDirectory resolves departments and their employees and admins.
// FindDepartment returns sentinel.ErrNotFound for an unknown department.
type StaffDirectory interface {
	StaffOf(ctx context.Context, deptID id.DepartmentID) ([]id.UserID, error)
	FindDepartment(ctx context.Context, deptID id.DepartmentID) (*staffmodels.Department, error)
}

// Service orchestrates the complaint lifecycle.
type Service struct {
	store    Store
	tx       Transactor
	locks    LockManager
	refs     ReferenceGenerator
	notifier Notifier
	audit    AuditRecorder
	staff    StaffDirectory
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Deps groups the collaborators New requires.
type Deps struct {
	Store     Store
	Tx        Transactor
	Locks     LockManager
	Refs      ReferenceGenerator
	Notifier  Notifier
	Audit     AuditRecorder
	Directory StaffDirectory
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer overrides the global otel tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("complaint store is required")
	case deps.Tx == nil:
		return nil, errors.New("transactor is required")
	case deps.Locks == nil:
		return nil, errors.New("lock manager is required")
	case deps.Refs == nil:
		return nil, errors.New("reference generator is required")
	case deps.Notifier == nil:
		return nil, errors.New("notifier is required")
	case deps.Audit == nil:
		return nil, errors.New("audit recorder is required")
	case deps.Directory == nil:
		return nil, errors.New("staff directory is required")
	}

	s := &Service{
		store:    deps.Store,
		tx:       deps.Tx,
		locks:    deps.Locks,
		refs:     deps.Refs,
		notifier: deps.Notifier,
		audit:    deps.Audit,
		staff:    deps.Directory,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// begin opens a span for op and returns a func that closes it and records the
// operation duration. Call the returned func with the operation's final error.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "complaint."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, start)
		}
	}
}

func complaintAttr(complaintID id.ComplaintID) attribute.KeyValue {
	return attribute.String("complaint.id", complaintID.String())
}

// findComplaint loads a complaint, translating a miss into NotFound.
func (s *Service) findComplaint(ctx context.Context, complaintID id.ComplaintID, forUpdate bool) (*models.Complaint, error) {
	find := s.store.FindByID
	if forUpdate {
		find = s.store.FindByIDForUpdate
	}
	c, err := find(ctx, complaintID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "complaint not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load complaint")
	}
	return c, nil
}

// requireDepartment checks that a complaint may be routed to deptID.
func (s *Service) requireDepartment(ctx context.Context, deptID id.DepartmentID) error {
	dept, err := s.staff.FindDepartment(ctx, deptID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "department not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load department")
	}
	if !dept.IsActive {
		return dErrors.New(dErrors.CodeValidation, "department is inactive")
	}
	return nil
}

func (s *Service) record(ctx context.Context, action audit.Action, complaintID id.ComplaintID, actor id.UserID, details any) error {
	entry := audit.Entry{
		Action:   action,
		Entity:   audit.EntityComplaint,
		EntityID: complaintID.String(),
		UserID:   actor,
	}
	if details != nil {
		entry.Details = audit.Details(details)
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit entry")
	}
	return nil
}

func refOf(c *models.Complaint) notification.ComplaintRef {
	return notification.ComplaintRef{ID: c.ID, ReferenceNumber: c.ReferenceNumber, CitizenID: c.CitizenID}
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	args = append(args, "request_id", requestcontext.RequestID(ctx))
	s.logger.InfoContext(ctx, msg, args...)
}
