package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/httputil"
	request "civicdesk/pkg/platform/middleware/request"
	"civicdesk/pkg/requestcontext"
)

// Service is the complaint lifecycle engine as seen by the HTTP layer.
type Service interface {
	Create(ctx context.Context, req models.CreateRequest, p id.Principal) (*models.Complaint, error)
	List(ctx context.Context, f models.Filter, p id.Principal) (*models.ListResult, error)
	Get(ctx context.Context, complaintID id.ComplaintID, p id.Principal) (*models.Detail, error)
	Update(ctx context.Context, complaintID id.ComplaintID, patch models.UpdatePatch, p id.Principal) (*models.Complaint, error)
	Lock(ctx context.Context, complaintID id.ComplaintID, p id.Principal) (*models.Complaint, error)
	Unlock(ctx context.Context, complaintID id.ComplaintID, p id.Principal) (*models.Complaint, error)
	RenewLock(ctx context.Context, complaintID id.ComplaintID, p id.Principal) (*models.Complaint, error)
	AddComment(ctx context.Context, complaintID id.ComplaintID, content string, isInternal bool, p id.Principal) (*models.Comment, error)
	Delete(ctx context.Context, complaintID id.ComplaintID, p id.Principal) error
	Statistics(ctx context.Context, p id.Principal) (*models.Statistics, error)
}

// Handler serves the /complaints routes. Authentication runs upstream; every
// handler expects a principal in the request context.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the complaint routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/complaints", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/statistics", h.handleStatistics)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Patch("/", h.handleUpdate)
			r.Delete("/", h.handleDelete)
			r.Post("/lock", h.handleLock)
			r.Post("/lock/renew", h.handleRenewLock)
			r.Delete("/lock", h.handleUnlock)
			r.Post("/comments", h.handleAddComment)
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req models.CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid create complaint request")
		return
	}

	c, err := h.service.Create(ctx, req, p)
	if err != nil {
		h.writeError(ctx, w, err, "failed to create complaint")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	f, err := parseFilter(r)
	if err != nil {
		h.writeError(ctx, w, err, "invalid list query")
		return
	}

	result, err := h.service.List(ctx, f, p)
	if err != nil {
		h.writeError(ctx, w, err, "failed to list complaints")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Statistics(ctx, p)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load statistics")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, complaintID, ok := h.target(w, r)
	if !ok {
		return
	}

	detail, err := h.service.Get(ctx, complaintID, p)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load complaint")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, complaintID, ok := h.target(w, r)
	if !ok {
		return
	}

	var patch models.UpdatePatch
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		h.writeError(ctx, w, err, "invalid update request")
		return
	}

	c, err := h.service.Update(ctx, complaintID, patch, p)
	if err != nil {
		h.writeError(ctx, w, err, "failed to update complaint")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) {
	h.lease(w, r, h.service.Lock, "failed to lock complaint")
}

func (h *Handler) handleRenewLock(w http.ResponseWriter, r *http.Request) {
	h.lease(w, r, h.service.RenewLock, "failed to renew lock")
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	h.lease(w, r, h.service.Unlock, "failed to unlock complaint")
}

type leaseFunc func(ctx context.Context, complaintID id.ComplaintID, p id.Principal) (*models.Complaint, error)

func (h *Handler) lease(w http.ResponseWriter, r *http.Request, fn leaseFunc, failure string) {
	ctx := r.Context()
	p, complaintID, ok := h.target(w, r)
	if !ok {
		return
	}

	c, err := fn(ctx, complaintID, p)
	if err != nil {
		h.writeError(ctx, w, err, failure)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, complaintID, ok := h.target(w, r)
	if !ok {
		return
	}

	var req addCommentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid comment request")
		return
	}

	comment, err := h.service.AddComment(ctx, complaintID, req.Content, req.IsInternal, p)
	if err != nil {
		h.writeError(ctx, w, err, "failed to add comment")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, comment)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, complaintID, ok := h.target(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, complaintID, p); err != nil {
		h.writeError(ctx, w, err, "failed to delete complaint")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (id.Principal, bool) {
	p, ok := requestcontext.Principal(r.Context())
	if !ok {
		// Only reachable when the auth middleware is not mounted.
		h.logger.ErrorContext(r.Context(), "principal missing from context despite auth middleware",
			"request_id", request.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.Principal{}, false
	}
	return p, true
}

// target resolves the principal and the {id} path parameter.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (id.Principal, id.ComplaintID, bool) {
	p, ok := h.principal(w, r)
	if !ok {
		return id.Principal{}, id.ComplaintID{}, false
	}
	complaintID, err := id.ParseComplaintID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid complaint id"))
		return id.Principal{}, id.ComplaintID{}, false
	}
	return p, complaintID, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

func parseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	f := models.Filter{Search: q.Get("search")}

	if raw := q.Get("status"); raw != "" {
		status := models.Status(raw)
		f.Status = &status
	}
	if raw := q.Get("department_id"); raw != "" {
		dept, err := id.ParseDepartmentID(raw)
		if err != nil {
			return models.Filter{}, dErrors.New(dErrors.CodeBadRequest, "invalid department_id")
		}
		f.DepartmentID = &dept
	}
	if raw := q.Get("citizen_id"); raw != "" {
		citizen, err := id.ParseUserID(raw)
		if err != nil {
			return models.Filter{}, dErrors.New(dErrors.CodeBadRequest, "invalid citizen_id")
		}
		f.CitizenID = &citizen
	}

	var err error
	if f.Page, err = queryInt(q.Get("page")); err != nil {
		return models.Filter{}, dErrors.New(dErrors.CodeBadRequest, "invalid page")
	}
	if f.Limit, err = queryInt(q.Get("limit")); err != nil {
		return models.Filter{}, dErrors.New(dErrors.CodeBadRequest, "invalid limit")
	}
	return f, nil
}

// queryInt parses an optional integer; empty means zero, which the filter
// replaces with its default.
func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
