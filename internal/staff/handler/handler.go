package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/staff/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/platform/middleware/admin"
	request "civicdesk/pkg/platform/middleware/request"
	"civicdesk/pkg/requestcontext"
)

// Service defines the staff directory operations exposed over HTTP.
type Service interface {
	CreateAccount(ctx context.Context, req models.CreateAccountRequest, actor id.Principal) (*models.User, error)
	CreateDepartment(ctx context.Context, name string, actor id.Principal) (*models.Department, error)
	AssignEmployee(ctx context.Context, deptID id.DepartmentID, userID id.UserID, actor id.Principal) (*models.User, error)
	RemoveEmployee(ctx context.Context, deptID id.DepartmentID, userID id.UserID, actor id.Principal) (*models.User, error)
}

// Handler serves the /admin staff routes.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the admin routes on r behind the admin role check.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdmin(h.logger))
		r.Post("/users", h.handleCreateAccount)
		r.Post("/departments", h.handleCreateDepartment)
		r.Post("/departments/{id}/employees", h.handleAssignEmployee)
		r.Delete("/departments/{id}/employees/{userId}", h.handleRemoveEmployee)
	})
}

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := h.actor(r)

	var req models.CreateAccountRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid create account request")
		return
	}

	user, err := h.service.CreateAccount(ctx, req, actor)
	if err != nil {
		h.writeError(ctx, w, err, "failed to create account")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := h.actor(r)

	var req createDepartmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid create department request")
		return
	}

	dept, err := h.service.CreateDepartment(ctx, req.Name, actor)
	if err != nil {
		h.writeError(ctx, w, err, "failed to create department")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, dept)
}

func (h *Handler) handleAssignEmployee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := h.actor(r)

	deptID, err := id.ParseDepartmentID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid department id"), "invalid assign request")
		return
	}
	var req assignEmployeeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid assign request")
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeValidation, "user_id must be a valid id"), "invalid assign request")
		return
	}

	user, err := h.service.AssignEmployee(ctx, deptID, userID, actor)
	if err != nil {
		h.writeError(ctx, w, err, "failed to assign employee")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleRemoveEmployee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := h.actor(r)

	deptID, err := id.ParseDepartmentID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid department id"), "invalid remove request")
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"), "invalid remove request")
		return
	}

	user, err := h.service.RemoveEmployee(ctx, deptID, userID, actor)
	if err != nil {
		h.writeError(ctx, w, err, "failed to remove employee")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// actor returns the principal RequireAdmin already checked.
func (h *Handler) actor(r *http.Request) id.Principal {
	p, _ := requestcontext.Principal(r.Context())
	return p
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", request.GetRequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", request.GetRequestID(ctx), "error", err.Error())
	}
	httputil.WriteError(w, err)
}
