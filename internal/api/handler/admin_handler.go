package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/aloonj/reefnotify/internal/service"
)

// AdminHandler exposes the operator surface: queue status, manual retry,
// cleanup, purge, and test send.
type AdminHandler struct {
	svc    *service.QueueService
	logger *zap.Logger
}

func NewAdminHandler(svc *service.QueueService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

// Status handles GET /api/v1/queue/status.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		h.logger.Error("queue status failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

type retryRequest struct {
	IDs []string `json:"ids"`
}

// Retry handles POST /api/v1/queue/retry. Only failed jobs are re-armed;
// ids in any other state are silently skipped.
func (h *AdminHandler) Retry(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	reset, err := h.svc.Retry(r.Context(), req.IDs)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"reset": reset})
}

// Cleanup handles DELETE /api/v1/queue/completed?older_than_days=N.
// Only terminal jobs are deleted; pending and processing survive.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("older_than_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "older_than_days must be an integer")
			return
		}
		days = n
	}

	deleted, err := h.svc.Cleanup(r.Context(), days)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// DeleteAll handles DELETE /api/v1/queue/jobs, a full queue reset.
func (h *AdminHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.DeleteAll(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// SendTest handles POST /api/v1/queue/test. The synthetic job skips the
// batcher so operators always get a fresh row to watch move through the
// pipeline.
func (h *AdminHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	j, err := h.svc.SendTest(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, j)
}
