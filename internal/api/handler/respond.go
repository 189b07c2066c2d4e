package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aloonj/reefnotify/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidType),
		errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrInvalidMaxAttempts),
		errors.Is(err, domain.ErrInvalidBatchWindow),
		errors.Is(err, domain.ErrNoJobIDs),
		errors.Is(err, domain.ErrInvalidAge):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		respondError(w, http.StatusServiceUnavailable, domain.ErrStoreUnavailable.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
