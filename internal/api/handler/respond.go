package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// timestampLayout is ISO-8601 with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func timestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Success: false, Error: msg, Timestamp: timestamp()})
}

// mapError translates domain errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidPayload):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &verr),
		errors.Is(err, domain.ErrBatchTooLarge),
		errors.Is(err, domain.ErrBatchEmpty):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrQueueFull):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
