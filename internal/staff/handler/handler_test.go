package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"civicdesk/internal/staff/handler/mocks"
	"civicdesk/internal/staff/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/staff-mocks.go -package=mocks Service
type StaffHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	admin   id.Principal
}

func TestStaffHandlerSuite(t *testing.T) {
	suite.Run(t, new(StaffHandlerSuite))
}

func (s *StaffHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
	s.admin = id.Principal{ID: id.UserID(uuid.New()), Role: id.RoleAdmin}
}

func (s *StaffHandlerSuite) asAdmin(req *http.Request) *http.Request {
	return testutil.WithPrincipal(req, s.admin)
}

func (s *StaffHandlerSuite) TestRequiresAdmin() {
	employee := id.Principal{ID: id.UserID(uuid.New()), Role: id.RoleEmployee}
	req := testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/departments", createDepartmentRequest{Name: "Roads"}), employee)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}

func (s *StaffHandlerSuite) TestCreateAccount() {
	s.Run("password hash never leaves the server", func() {
		email := "dana@example.test"
		req := models.CreateAccountRequest{Name: "Dana", Email: email, Password: "s3cret", Role: id.RoleEmployee}
		s.service.EXPECT().CreateAccount(gomock.Any(), req, s.admin).Return(&models.User{
			ID:           id.UserID(uuid.New()),
			Name:         "Dana",
			Email:        &email,
			Role:         id.RoleEmployee,
			PasswordHash: "$2a$04$hash",
			IsActive:     true,
		}, nil)

		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/users", req)))
		s.Equal(http.StatusCreated, rr.Code)
		s.NotContains(rr.Body.String(), "hash")
		s.NotContains(rr.Body.String(), "s3cret")
	})

	s.Run("duplicate contact is a conflict", func() {
		s.service.EXPECT().CreateAccount(gomock.Any(), gomock.Any(), s.admin).Return(nil, dErrors.New(dErrors.CodeConflict, "user already exists"))

		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/users", models.CreateAccountRequest{Name: "Dana"})))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})
}

func (s *StaffHandlerSuite) TestCreateDepartment() {
	s.service.EXPECT().CreateDepartment(gomock.Any(), "Roads", s.admin).Return(&models.Department{
		ID:       id.DepartmentID(uuid.New()),
		Name:     "Roads",
		IsActive: true,
	}, nil)

	rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/departments", createDepartmentRequest{Name: "Roads"})))
	s.Equal(http.StatusCreated, rr.Code)
	s.Equal("Roads", testutil.UnmarshalResponse[models.Department](s.T(), rr).Name)
}

func (s *StaffHandlerSuite) TestDepartmentMembership() {
	deptID := id.DepartmentID(uuid.New())
	userID := id.UserID(uuid.New())

	s.Run("assigns an employee", func() {
		s.service.EXPECT().AssignEmployee(gomock.Any(), deptID, userID, s.admin).Return(&models.User{
			ID: userID, Role: id.RoleEmployee, DepartmentID: &deptID,
		}, nil)

		path := "/admin/departments/" + deptID.String() + "/employees"
		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPost, path, assignEmployeeRequest{UserID: userID.String()})))
		s.Equal(http.StatusOK, rr.Code)
		s.Equal(deptID, *testutil.UnmarshalResponse[models.User](s.T(), rr).DepartmentID)
	})

	s.Run("malformed user id is a validation error", func() {
		path := "/admin/departments/" + deptID.String() + "/employees"
		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPost, path, assignEmployeeRequest{UserID: "nope"})))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation")
	})

	s.Run("removes an employee", func() {
		s.service.EXPECT().RemoveEmployee(gomock.Any(), deptID, userID, s.admin).Return(&models.User{ID: userID, Role: id.RoleEmployee}, nil)

		path := "/admin/departments/" + deptID.String() + "/employees/" + userID.String()
		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodDelete, path, nil)))
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("employee outside the department is a bad request", func() {
		s.service.EXPECT().RemoveEmployee(gomock.Any(), deptID, userID, s.admin).
			Return(nil, dErrors.New(dErrors.CodeBadRequest, "user is not assigned to this department"))

		path := "/admin/departments/" + deptID.String() + "/employees/" + userID.String()
		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodDelete, path, nil)))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}
