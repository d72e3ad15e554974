package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"civicdesk/internal/complaint/handler/mocks"
	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/complaint-mocks.go -package=mocks Service
type ComplaintHandlerSuite struct {
	suite.Suite
	service  *mocks.MockService
	router   chi.Router
	citizen  id.Principal
	employee id.Principal
}

func TestComplaintHandlerSuite(t *testing.T) {
	suite.Run(t, new(ComplaintHandlerSuite))
}

func (s *ComplaintHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, logger).Register(s.router)

	dept := id.DepartmentID(uuid.New())
	s.citizen = id.Principal{ID: id.UserID(uuid.New()), Role: id.RoleCitizen}
	s.employee = id.Principal{ID: id.UserID(uuid.New()), Role: id.RoleEmployee, DepartmentID: &dept}
}

func (s *ComplaintHandlerSuite) complaint() *models.Complaint {
	return &models.Complaint{
		ID:              id.ComplaintID(uuid.New()),
		ReferenceNumber: "C202503150001",
		CitizenID:       s.citizen.ID,
		Type:            "pothole",
		Location:        "Main St",
		Description:     "deep hole",
		Priority:        1,
		Status:          models.StatusNew,
		CreatedAt:       time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC),
	}
}

func (s *ComplaintHandlerSuite) TestCreate() {
	s.Run("citizen files a complaint", func() {
		req := models.CreateRequest{Type: "pothole", Location: "Main St", Description: "deep hole"}
		s.service.EXPECT().Create(gomock.Any(), req, s.citizen).Return(s.complaint(), nil)

		httpReq := testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodPost, "/complaints", req), s.citizen)
		rr := testutil.DoRequest(s.router, httpReq)

		s.Equal(http.StatusCreated, rr.Code)
		body := testutil.UnmarshalResponse[models.Complaint](s.T(), rr)
		s.Equal("C202503150001", body.ReferenceNumber)
	})

	s.Run("missing principal is unauthorized", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/complaints", map[string]string{}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("malformed body is a bad request", func() {
		httpReq := testutil.WithPrincipal(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/complaints", "{not json"), s.citizen)
		rr := testutil.DoRequest(s.router, httpReq)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("unknown fields are rejected", func() {
		httpReq := testutil.WithPrincipal(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/complaints", `{"type":"x","status":"COMPLETED"}`), s.citizen)
		rr := testutil.DoRequest(s.router, httpReq)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("forbidden role maps to 403", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any(), s.employee).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "only citizens can file complaints"))

		httpReq := testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodPost, "/complaints", models.CreateRequest{Type: "x"}), s.employee)
		rr := testutil.DoRequest(s.router, httpReq)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})
}

func (s *ComplaintHandlerSuite) TestList() {
	s.Run("query parameters become the filter", func() {
		status := models.StatusInProgress
		dept := *s.employee.DepartmentID
		want := models.Filter{Status: &status, DepartmentID: &dept, Search: "pot", Page: 2, Limit: 5}
		s.service.EXPECT().List(gomock.Any(), want, s.employee).Return(&models.ListResult{
			Data: []*models.Complaint{s.complaint()},
			Meta: models.NewPageMeta(6, 2, 5),
		}, nil)

		path := "/complaints?status=IN_PROGRESS&department_id=" + dept.String() + "&search=pot&page=2&limit=5"
		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodGet, path, nil), s.employee))

		s.Equal(http.StatusOK, rr.Code)
		body := testutil.UnmarshalResponse[models.ListResult](s.T(), rr)
		s.Len(body.Data, 1)
		s.Equal(2, body.Meta.TotalPages)
	})

	s.Run("non-numeric page is a bad request", func() {
		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodGet, "/complaints?page=two", nil), s.employee))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("invalid department id is a bad request", func() {
		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodGet, "/complaints?department_id=nope", nil), s.employee))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *ComplaintHandlerSuite) TestGet() {
	c := s.complaint()

	s.Run("returns the detail", func() {
		s.service.EXPECT().Get(gomock.Any(), c.ID, s.citizen).Return(&models.Detail{
			Complaint: c,
			Comments:  []*models.Comment{},
			History:   []*models.HistoryEntry{},
		}, nil)

		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodGet, "/complaints/"+c.ID.String(), nil), s.citizen))
		s.Equal(http.StatusOK, rr.Code)
		s.Contains(rr.Body.String(), `"comments":[]`)
	})

	s.Run("foreign complaint is forbidden", func() {
		s.service.EXPECT().Get(gomock.Any(), c.ID, s.citizen).Return(nil, dErrors.New(dErrors.CodeForbidden, "access denied"))

		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodGet, "/complaints/"+c.ID.String(), nil), s.citizen))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("malformed id is a bad request", func() {
		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodGet, "/complaints/not-a-uuid", nil), s.citizen))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("internal errors hide their description", func() {
		s.service.EXPECT().Get(gomock.Any(), c.ID, s.citizen).Return(nil, dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "failed to load complaint"))

		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodGet, "/complaints/"+c.ID.String(), nil), s.citizen))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
		s.NotContains(rr.Body.String(), "db down")
	})
}

func (s *ComplaintHandlerSuite) TestUpdate() {
	c := s.complaint()
	status := models.StatusInProgress
	patch := models.UpdatePatch{Status: &status}

	s.Run("applies the patch", func() {
		updated := s.complaint()
		updated.Status = status
		s.service.EXPECT().Update(gomock.Any(), c.ID, patch, s.employee).Return(updated, nil)

		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodPatch, "/complaints/"+c.ID.String(), patch), s.employee))
		s.Equal(http.StatusOK, rr.Code)
		s.Equal(models.StatusInProgress, testutil.UnmarshalResponse[models.Complaint](s.T(), rr).Status)
	})

	s.Run("lock conflict maps to 409", func() {
		s.service.EXPECT().Update(gomock.Any(), c.ID, patch, s.employee).
			Return(nil, dErrors.New(dErrors.CodeLockConflict, "complaint is locked by another user"))

		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodPatch, "/complaints/"+c.ID.String(), patch), s.employee))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "lock_conflict")
	})
}

func (s *ComplaintHandlerSuite) TestLeaseRoutes() {
	c := s.complaint()
	locked := s.complaint()
	expires := time.Date(2025, 3, 15, 9, 15, 0, 0, time.UTC)
	locked.ApplyLock(s.employee.ID, locked.CreatedAt, expires)

	s.Run("POST lock acquires", func() {
		s.service.EXPECT().Lock(gomock.Any(), c.ID, s.employee).Return(locked, nil)
		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodPost, "/complaints/"+c.ID.String()+"/lock", nil), s.employee))
		s.Equal(http.StatusOK, rr.Code)
		s.True(testutil.UnmarshalResponse[models.Complaint](s.T(), rr).IsLocked)
	})

	s.Run("POST lock/renew renews", func() {
		s.service.EXPECT().RenewLock(gomock.Any(), c.ID, s.employee).Return(locked, nil)
		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodPost, "/complaints/"+c.ID.String()+"/lock/renew", nil), s.employee))
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("DELETE lock releases", func() {
		s.service.EXPECT().Unlock(gomock.Any(), c.ID, s.employee).Return(c, nil)
		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodDelete, "/complaints/"+c.ID.String()+"/lock", nil), s.employee))
		s.Equal(http.StatusOK, rr.Code)
		s.False(testutil.UnmarshalResponse[models.Complaint](s.T(), rr).IsLocked)
	})

	s.Run("renew without a lease is a conflict", func() {
		s.service.EXPECT().RenewLock(gomock.Any(), c.ID, s.employee).Return(nil, dErrors.New(dErrors.CodeConflict, "lock not held"))
		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodPost, "/complaints/"+c.ID.String()+"/lock/renew", nil), s.employee))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})
}

func (s *ComplaintHandlerSuite) TestAddComment() {
	c := s.complaint()

	s.Run("creates an internal note", func() {
		s.service.EXPECT().AddComment(gomock.Any(), c.ID, "crew booked", true, s.employee).Return(&models.Comment{
			ID:          id.CommentID(uuid.New()),
			ComplaintID: c.ID,
			AuthorID:    s.employee.ID,
			Content:     "crew booked",
			IsInternal:  true,
		}, nil)

		body := addCommentRequest{Content: "crew booked", IsInternal: true}
		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodPost, "/complaints/"+c.ID.String()+"/comments", body), s.employee))
		s.Equal(http.StatusCreated, rr.Code)
		s.True(testutil.UnmarshalResponse[models.Comment](s.T(), rr).IsInternal)
	})

	s.Run("citizen internal note is forbidden", func() {
		s.service.EXPECT().AddComment(gomock.Any(), c.ID, "psst", true, s.citizen).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "citizens cannot post internal notes"))

		body := addCommentRequest{Content: "psst", IsInternal: true}
		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodPost, "/complaints/"+c.ID.String()+"/comments", body), s.citizen))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})
}

func (s *ComplaintHandlerSuite) TestDeleteAndStatistics() {
	admin := id.Principal{ID: id.UserID(uuid.New()), Role: id.RoleAdmin}
	c := s.complaint()

	s.Run("admin delete returns no content", func() {
		s.service.EXPECT().Delete(gomock.Any(), c.ID, admin).Return(nil)
		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodDelete, "/complaints/"+c.ID.String(), nil), admin))
		s.Equal(http.StatusNoContent, rr.Code)
	})

	s.Run("missing complaint is not found", func() {
		s.service.EXPECT().Delete(gomock.Any(), c.ID, admin).Return(dErrors.New(dErrors.CodeNotFound, "complaint not found"))
		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodDelete, "/complaints/"+c.ID.String(), nil), admin))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("statistics route is not captured by the id route", func() {
		stats := models.NewStatistics(map[models.Status]int{models.StatusNew: 2, models.StatusCompleted: 1})
		s.service.EXPECT().Statistics(gomock.Any(), admin).Return(&stats, nil)

		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodGet, "/complaints/statistics", nil), admin))
		s.Equal(http.StatusOK, rr.Code)
		body := testutil.UnmarshalResponse[models.Statistics](s.T(), rr)
		s.Equal(3, body.Total)
		s.Equal(1, body.ByStatus.Completed)
	})

	s.Run("statistics body uses snake_case keys", func() {
		stats := models.NewStatistics(map[models.Status]int{models.StatusInProgress: 4})
		s.service.EXPECT().Statistics(gomock.Any(), admin).Return(&stats, nil)

		rr := testutil.DoRequest(s.router, testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodGet, "/complaints/statistics", nil), admin))
		s.Equal(http.StatusOK, rr.Code)
		body := *testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal(float64(4), body["total"])
		s.Equal(map[string]any{
			"new":         float64(0),
			"in_progress": float64(4),
			"completed":   float64(0),
			"rejected":    float64(0),
		}, body["by_status"])
	})
}
