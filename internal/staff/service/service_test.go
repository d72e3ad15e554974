package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"civicdesk/internal/audit"
	"civicdesk/internal/notification"
	"civicdesk/internal/staff/models"
	"civicdesk/internal/staff/store"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
	"civicdesk/pkg/platform/tx"
	"civicdesk/pkg/requestcontext"
)

type StaffServiceSuite struct {
	suite.Suite
	store         *store.InMemoryStore
	notifications *notification.InMemoryStore
	audits        *audit.InMemoryStore
	service       *Service
	admin         id.Principal
	ctx           context.Context
}

func TestStaffServiceSuite(t *testing.T) {
	suite.Run(t, new(StaffServiceSuite))
}

func (s *StaffServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.notifications = notification.NewInMemoryStore()
	s.audits = audit.NewInMemoryStore()

	dispatcher, err := notification.NewDispatcher(s.notifications)
	s.Require().NoError(err)
	recorder, err := audit.NewRecorder(s.audits)
	s.Require().NoError(err)

	s.service, err = New(s.store, tx.NewMemoryTransactor(), dispatcher, recorder, WithBcryptCost(bcrypt.MinCost))
	s.Require().NoError(err)

	s.admin = id.Principal{ID: id.UserID(uuid.New()), Role: id.RoleAdmin}
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC))
}

func (s *StaffServiceSuite) seedUser(role id.Role, dept *id.DepartmentID) *models.User {
	email := uuid.NewString() + "@example.test"
	u := &models.User{
		ID:           id.UserID(uuid.New()),
		Name:         "Test User",
		Email:        &email,
		Role:         role,
		DepartmentID: dept,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	s.Require().NoError(s.store.CreateUser(context.Background(), u))
	return u
}

func (s *StaffServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, tx.NewMemoryTransactor(), nil, nil)
		s.Error(err)
	})
}

func (s *StaffServiceSuite) TestCreateDepartment() {
	s.Run("admin creates active department", func() {
		dept, err := s.service.CreateDepartment(s.ctx, "  Roads  ", s.admin)
		s.Require().NoError(err)
		s.Equal("Roads", dept.Name)
		s.True(dept.IsActive)
	})

	s.Run("duplicate name conflicts", func() {
		_, err := s.service.CreateDepartment(s.ctx, "Roads", s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("employee is forbidden", func() {
		_, err := s.service.CreateDepartment(s.ctx, "Water", id.Principal{ID: id.UserID(uuid.New()), Role: id.RoleEmployee})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *StaffServiceSuite) TestFindDepartment() {
	dept, err := s.service.CreateDepartment(s.ctx, "Parks", s.admin)
	s.Require().NoError(err)

	s.Run("known department", func() {
		found, err := s.service.FindDepartment(s.ctx, dept.ID)
		s.Require().NoError(err)
		s.Equal("Parks", found.Name)
	})

	s.Run("unknown department returns sentinel", func() {
		_, err := s.service.FindDepartment(s.ctx, id.DepartmentID(uuid.New()))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *StaffServiceSuite) TestAssignEmployee() {
	dept, err := s.service.CreateDepartment(s.ctx, "Roads", s.admin)
	s.Require().NoError(err)

	s.Run("assigns employee, notifies and audits", func() {
		employee := s.seedUser(id.RoleEmployee, nil)

		user, err := s.service.AssignEmployee(s.ctx, dept.ID, employee.ID, s.admin)
		s.Require().NoError(err)
		s.Equal(dept.ID, *user.DepartmentID)

		staff, err := s.service.StaffOf(s.ctx, dept.ID)
		s.Require().NoError(err)
		s.Contains(staff, employee.ID)

		records, err := s.notifications.ListByUser(s.ctx, employee.ID)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(notification.TypeAssignment, records[0].Type)

		entries, err := s.audits.ListByEntity(s.ctx, audit.EntityUser, employee.ID.String())
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionAssignEmployee, entries[0].Action)
	})

	s.Run("citizen cannot be assigned", func() {
		citizen := s.seedUser(id.RoleCitizen, nil)
		_, err := s.service.AssignEmployee(s.ctx, dept.ID, citizen.ID, s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown user is not found", func() {
		_, err := s.service.AssignEmployee(s.ctx, dept.ID, id.UserID(uuid.New()), s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown department is not found", func() {
		employee := s.seedUser(id.RoleEmployee, nil)
		_, err := s.service.AssignEmployee(s.ctx, id.DepartmentID(uuid.New()), employee.ID, s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("inactive department is rejected", func() {
		inactive := &models.Department{ID: id.DepartmentID(uuid.New()), Name: "Closed", IsActive: false}
		s.Require().NoError(s.store.CreateDepartment(s.ctx, inactive))
		employee := s.seedUser(id.RoleEmployee, nil)

		_, err := s.service.AssignEmployee(s.ctx, inactive.ID, employee.ID, s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("non-admin is forbidden", func() {
		employee := s.seedUser(id.RoleEmployee, nil)
		_, err := s.service.AssignEmployee(s.ctx, dept.ID, employee.ID, employee.Principal())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *StaffServiceSuite) TestRemoveEmployee() {
	dept, err := s.service.CreateDepartment(s.ctx, "Water", s.admin)
	s.Require().NoError(err)
	employee := s.seedUser(id.RoleEmployee, &dept.ID)

	s.Run("wrong department is rejected", func() {
		_, err := s.service.RemoveEmployee(s.ctx, id.DepartmentID(uuid.New()), employee.ID, s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("removes membership and notifies", func() {
		user, err := s.service.RemoveEmployee(s.ctx, dept.ID, employee.ID, s.admin)
		s.Require().NoError(err)
		s.Nil(user.DepartmentID)

		staff, err := s.service.StaffOf(s.ctx, dept.ID)
		s.Require().NoError(err)
		s.NotContains(staff, employee.ID)

		records, err := s.notifications.ListByUser(s.ctx, employee.ID)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(notification.TypeRemoval, records[0].Type)
		s.Contains(records[0].Message, "Water")
	})

	s.Run("removing twice is rejected", func() {
		_, err := s.service.RemoveEmployee(s.ctx, dept.ID, employee.ID, s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *StaffServiceSuite) TestCreateAccount() {
	dept, err := s.service.CreateDepartment(s.ctx, "Parks", s.admin)
	s.Require().NoError(err)

	s.Run("creates hashed account and notifies", func() {
		user, err := s.service.CreateAccount(s.ctx, models.CreateAccountRequest{
			Name:         "Dana",
			Email:        "Dana@Example.test",
			Password:     "s3cret-pass",
			Role:         id.RoleEmployee,
			DepartmentID: &dept.ID,
		}, s.admin)
		s.Require().NoError(err)
		s.Equal("dana@example.test", *user.Email)
		s.NoError(bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))

		records, err := s.notifications.ListByUser(s.ctx, user.ID)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(notification.TypeAccountCreated, records[0].Type)

		entries, err := s.audits.ListByEntity(s.ctx, audit.EntityUser, user.ID.String())
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.NotContains(string(entries[0].Details), "s3cret-pass")
	})

	s.Run("role defaults to citizen", func() {
		user, err := s.service.CreateAccount(s.ctx, models.CreateAccountRequest{
			Name: "Eli", Phone: "+15550100", Password: "pw",
		}, s.admin)
		s.Require().NoError(err)
		s.Equal(id.RoleCitizen, user.Role)
	})

	s.Run("duplicate email conflicts", func() {
		_, err := s.service.CreateAccount(s.ctx, models.CreateAccountRequest{
			Name: "Dana Again", Email: "dana@example.test", Password: "pw",
		}, s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("email or phone is required", func() {
		_, err := s.service.CreateAccount(s.ctx, models.CreateAccountRequest{Name: "Nobody", Password: "pw"}, s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown department is not found", func() {
		missing := id.DepartmentID(uuid.New())
		_, err := s.service.CreateAccount(s.ctx, models.CreateAccountRequest{
			Name: "Fay", Email: "fay@example.test", Password: "pw", DepartmentID: &missing,
		}, s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("citizen is forbidden", func() {
		_, err := s.service.CreateAccount(s.ctx, models.CreateAccountRequest{
			Name: "Gus", Email: "gus@example.test", Password: "pw",
		}, id.Principal{ID: id.UserID(uuid.New()), Role: id.RoleCitizen})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
