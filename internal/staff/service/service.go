package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"civicdesk/internal/audit"
	"civicdesk/internal/staff/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
	"civicdesk/pkg/requestcontext"
)

type Store interface {
	CreateDepartment(ctx context.Context, d *models.Department) error
	FindDepartment(ctx context.Context, deptID id.DepartmentID) (*models.Department, error)
	CreateUser(ctx context.Context, u *models.User) error
	FindUser(ctx context.Context, userID id.UserID) (*models.User, error)
	SetUserDepartment(ctx context.Context, userID id.UserID, deptID *id.DepartmentID) error
	StaffOf(ctx context.Context, deptID id.DepartmentID) ([]id.UserID, error)
}

type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Notifier interface {
	EmployeeAssigned(ctx context.Context, userID id.UserID, departmentName string, now time.Time) error
	EmployeeRemoved(ctx context.Context, userID id.UserID, departmentName string, now time.Time) error
	AccountCreated(ctx context.Context, userID id.UserID, now time.Time) error
}

type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service manages the staff directory: accounts and department membership.
type Service struct {
	store      Store
	tx         Transactor
	notifier   Notifier
	audit      AuditRecorder
	logger     *slog.Logger
	bcryptCost int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithBcryptCost overrides the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func New(store Store, tx Transactor, notifier Notifier, recorder AuditRecorder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("staff store is required")
	}
	if tx == nil {
		return nil, errors.New("transactor is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if recorder == nil {
		return nil, errors.New("audit recorder is required")
	}
	s := &Service{store: store, tx: tx, notifier: notifier, audit: recorder, bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StaffOf lists the active employees and admins of a department.
func (s *Service) StaffOf(ctx context.Context, deptID id.DepartmentID) ([]id.UserID, error) {
	staff, err := s.store.StaffOf(ctx, deptID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load department staff")
	}
	return staff, nil
}

// FindDepartment returns a department, or sentinel.ErrNotFound.
func (s *Service) FindDepartment(ctx context.Context, deptID id.DepartmentID) (*models.Department, error) {
	return s.store.FindDepartment(ctx, deptID)
}

// CreateDepartment registers an active department with a unique name.
func (s *Service) CreateDepartment(ctx context.Context, name string, actor id.Principal) (*models.Department, error) {
	if !actor.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins can create departments")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}

	dept := &models.Department{ID: id.DepartmentID(uuid.New()), Name: name, IsActive: true}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		dept.CreatedAt = requestcontext.Now(ctx)
		if err := s.store.CreateDepartment(ctx, dept); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "department name must be unique")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create department")
		}
		if err := s.audit.Record(ctx, audit.Entry{
			Action:   audit.ActionCreateDepartment,
			Entity:   audit.EntityDepartment,
			EntityID: dept.ID.String(),
			UserID:   actor.ID,
			Details:  audit.Details(map[string]string{"name": name}),
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit department creation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, "department created", "department_id", dept.ID.String())
	return dept, nil
}

// AssignEmployee moves a non-citizen user into an active department.
func (s *Service) AssignEmployee(ctx context.Context, deptID id.DepartmentID, userID id.UserID, actor id.Principal) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins can assign employees")
	}

	var user *models.User
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.findUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.Role == id.RoleCitizen {
			return dErrors.New(dErrors.CodeBadRequest, "citizens cannot be assigned to a department")
		}
		dept, err := s.requireDepartment(ctx, deptID)
		if err != nil {
			return err
		}
		if !dept.IsActive {
			return dErrors.New(dErrors.CodeBadRequest, "department is not active")
		}

		if err := s.store.SetUserDepartment(ctx, userID, &deptID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign employee")
		}
		user.DepartmentID = &deptID

		now := requestcontext.Now(ctx)
		if err := s.audit.Record(ctx, audit.Entry{
			Action:   audit.ActionAssignEmployee,
			Entity:   audit.EntityUser,
			EntityID: userID.String(),
			UserID:   actor.ID,
			Details:  audit.Details(map[string]string{"departmentId": deptID.String(), "departmentName": dept.Name}),
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit assignment")
		}
		if err := s.notifier.EmployeeAssigned(ctx, userID, dept.Name, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to notify employee")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, "employee assigned", "user_id", userID.String(), "department_id", deptID.String())
	return user, nil
}

// RemoveEmployee clears a user's membership of deptID.
func (s *Service) RemoveEmployee(ctx context.Context, deptID id.DepartmentID, userID id.UserID, actor id.Principal) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins can remove employees")
	}

	var user *models.User
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.findUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.DepartmentID == nil || *user.DepartmentID != deptID {
			return dErrors.New(dErrors.CodeBadRequest, "user is not assigned to this department")
		}
		dept, err := s.requireDepartment(ctx, deptID)
		if err != nil {
			return err
		}

		if err := s.store.SetUserDepartment(ctx, userID, nil); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove employee")
		}
		user.DepartmentID = nil

		now := requestcontext.Now(ctx)
		if err := s.audit.Record(ctx, audit.Entry{
			Action:   audit.ActionRemoveEmployee,
			Entity:   audit.EntityUser,
			EntityID: userID.String(),
			UserID:   actor.ID,
			Details:  audit.Details(map[string]string{"departmentName": dept.Name}),
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit removal")
		}
		if err := s.notifier.EmployeeRemoved(ctx, userID, dept.Name, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to notify employee")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, "employee removed", "user_id", userID.String(), "department_id", deptID.String())
	return user, nil
}

// CreateAccount provisions a user on an admin's behalf. The password is stored
// only as a bcrypt hash and is never audited.
func (s *Service) CreateAccount(ctx context.Context, req models.CreateAccountRequest, actor id.Principal) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins can create accounts")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	var user *models.User
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if req.DepartmentID != nil {
			dept, err := s.requireDepartment(ctx, *req.DepartmentID)
			if err != nil {
				return err
			}
			if !dept.IsActive {
				return dErrors.New(dErrors.CodeBadRequest, "department is not active")
			}
		}

		now := requestcontext.Now(ctx)
		user = &models.User{
			ID:           id.UserID(uuid.New()),
			Name:         req.Name,
			Email:        optional(req.Email),
			Phone:        optional(req.Phone),
			Role:         req.Role,
			DepartmentID: req.DepartmentID,
			PasswordHash: string(hash),
			IsActive:     true,
			CreatedAt:    now,
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "user already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
		}

		if err := s.audit.Record(ctx, audit.Entry{
			Action:   audit.ActionCreateUser,
			Entity:   audit.EntityUser,
			EntityID: user.ID.String(),
			UserID:   actor.ID,
			Details: audit.Details(map[string]string{
				"name":  req.Name,
				"role":  string(req.Role),
				"email": req.Email,
				"phone": req.Phone,
			}),
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit account creation")
		}
		if err := s.notifier.AccountCreated(ctx, user.ID, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to notify new user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, "account created", "user_id", user.ID.String(), "role", string(user.Role))
	return user, nil
}

func (s *Service) findUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

func (s *Service) requireDepartment(ctx context.Context, deptID id.DepartmentID) (*models.Department, error) {
	dept, err := s.store.FindDepartment(ctx, deptID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "department not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load department")
	}
	return dept, nil
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	args = append(args, "request_id", requestcontext.RequestID(ctx))
	s.logger.InfoContext(ctx, msg, args...)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
