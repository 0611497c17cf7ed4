package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/api/handler"
	apimw "github.com/notifyhub/mailqueue/internal/api/middleware"
	"github.com/notifyhub/mailqueue/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.IngestionService,
	status handler.DispatchStatus,
	checks map[string]handler.Check,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	eh := handler.NewEmailHandler(svc, logger)
	mh := handler.NewMetricsHandler(status)
	hh := handler.NewHealthHandler(checks)

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/emails", eh.Ingest)
		r.Get("/emails", eh.Status)
		r.Get("/emails/{id}", eh.GetByID)

		// JSON dispatcher snapshot
		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
