package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/mailqueue/internal/api/middleware"
	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/service"
)

// AvailabilityMessage is the static body served by GET /api/v1/emails.
const AvailabilityMessage = "mailqueue ingestion endpoint is available"

// EmailHandler serves the ingestion endpoint and record lookup.
type EmailHandler struct {
	svc    *service.IngestionService
	logger *zap.Logger
}

func NewEmailHandler(svc *service.IngestionService, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{svc: svc, logger: logger}
}

// ingestResponse is the body returned for every request that was parsed.
type ingestResponse struct {
	Success   bool                   `json:"success"`
	Processed int                    `json:"processed"`
	Errors    []string               `json:"errors"`
	Message   string                 `json:"message"`
	Timestamp string                 `json:"timestamp"`
	Records   []domain.RecordSummary `json:"records"`
	Duplicate bool                   `json:"duplicate,omitempty"`
}

// Ingest handles POST /api/v1/emails
//
// The body is either a single submission object or {"rows": [...]}.
// Rows that fail validation are reported in errors without affecting the rest.
// 200 when at least one record was queued or nothing failed, 422 otherwise,
// 400 when the body is not a submission at all.
func (h *EmailHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("read request body: %v", err))
		return
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope == nil {
		respondError(w, http.StatusBadRequest, domain.ErrInvalidPayload.Error())
		return
	}

	req := service.Request{
		IdempotencyKey: r.Header.Get("X-Idempotency-Key"),
		CorrelationID:  apimw.GetCorrelationID(r.Context()),
	}

	var (
		result    *domain.IngestResult
		duplicate bool
		submitted int
	)
	if rowsRaw, ok := envelope["rows"]; ok {
		var rows []domain.Submission
		if err := json.Unmarshal(rowsRaw, &rows); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("%v: rows: %v", domain.ErrInvalidPayload, err))
			return
		}
		submitted = len(rows)
		result, duplicate, err = h.svc.IngestBatch(r.Context(), rows, req)
	} else {
		var sub domain.Submission
		if err := json.Unmarshal(raw, &sub); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("%v: %v", domain.ErrInvalidPayload, err))
			return
		}
		submitted = 1
		result, duplicate, err = h.svc.IngestOne(r.Context(), sub, req)
	}
	if err != nil {
		h.logger.Warn("ingestion rejected",
			zap.String("correlation_id", req.CorrelationID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	resp := ingestResponse{
		Success:   result.Processed > 0 || len(result.Errors) == 0,
		Processed: result.Processed,
		Errors:    result.Errors,
		Timestamp: timestamp(),
		Records:   result.Records,
		Duplicate: duplicate,
	}
	switch {
	case duplicate:
		resp.Message = domain.ErrDuplicate.Error()
	case submitted == 1 && result.Processed == 1:
		resp.Message = "email queued"
	default:
		resp.Message = fmt.Sprintf("%d of %d submissions queued", result.Processed, submitted)
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, resp)
}

// Status handles GET /api/v1/emails with a static availability string.
func (h *EmailHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, AvailabilityMessage)
}

// GetByID handles GET /api/v1/emails/{id}
func (h *EmailHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		mapError(w, domain.ErrInvalidID)
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
