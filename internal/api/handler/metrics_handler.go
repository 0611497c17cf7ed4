package handler

import (
	"net/http"

	"github.com/notifyhub/mailqueue/internal/worker"
)

// DispatchStatus exposes the scheduler's live state. *worker.Cycle satisfies it.
type DispatchStatus interface {
	LastReport() *worker.Report
	Depths() (first, retry int)
}

// MetricsHandler serves a human-readable JSON snapshot of the dispatcher.
// Raw Prometheus metrics are available at /metrics via promhttp.Handler.
type MetricsHandler struct {
	status DispatchStatus
}

func NewMetricsHandler(status DispatchStatus) *MetricsHandler {
	return &MetricsHandler{status: status}
}

// GetMetrics handles GET /api/v1/metrics
//
// last_cycle is null until the first cycle has finished.
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	first, retry := h.status.Depths()
	respondJSON(w, http.StatusOK, map[string]any{
		"queue_depth": map[string]int{
			"first": first,
			"retry": retry,
			"total": first + retry,
		},
		"last_cycle": h.status.LastReport(),
	})
}
