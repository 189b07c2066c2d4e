package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/aloonj/reefnotify/internal/api/middleware"
	"github.com/aloonj/reefnotify/internal/domain"
	"github.com/aloonj/reefnotify/internal/service"
)

// JobHandler handles the collaborator-facing enqueue endpoint plus job
// visibility reads for the admin console.
type JobHandler struct {
	svc     *service.QueueService
	observe func(t domain.JobType, merged bool)
	logger  *zap.Logger
}

// NewJobHandler constructs the handler. observe is an optional metrics
// callback invoked once per successful enqueue (nil = no-op).
func NewJobHandler(svc *service.QueueService, observe func(domain.JobType, bool), logger *zap.Logger) *JobHandler {
	if observe == nil {
		observe = func(domain.JobType, bool) {}
	}
	return &JobHandler{svc: svc, observe: observe, logger: logger}
}

// Enqueue handles POST /api/v1/jobs.
//
// Returns 201 when a new job row was created, 200 when the request merged
// into an open batch for the same target.
func (h *JobHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	j, merged, err := h.svc.Enqueue(r.Context(), req)
	if err != nil {
		h.logger.Warn("enqueue failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	h.observe(j.Type, merged)

	status := http.StatusCreated
	if merged {
		status = http.StatusOK
	}
	respondJSON(w, status, j)
}

// GetByID handles GET /api/v1/jobs/{id}.
func (h *JobHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, j)
}

// List handles GET /api/v1/jobs with status/type filters and pagination.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := parseListFilter(r)
	jobs, total, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  jobs,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

func parseListFilter(r *http.Request) domain.ListFilter {
	q := r.URL.Query()
	filter := domain.ListFilter{Page: 1, Limit: 20}

	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		filter.Page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 100 {
		filter.Limit = l
	}
	if s := q.Get("status"); s != "" {
		st := domain.JobStatus(s)
		filter.Status = &st
	}
	if t := q.Get("type"); t != "" {
		jt := domain.JobType(t)
		filter.Type = &jt
	}
	return filter
}
