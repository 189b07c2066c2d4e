package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aloonj/reefnotify/internal/api/handler"
	apimw "github.com/aloonj/reefnotify/internal/api/middleware"
	"github.com/aloonj/reefnotify/internal/domain"
	"github.com/aloonj/reefnotify/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.QueueService,
	observeEnqueue func(domain.JobType, bool),
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
	jh := handler.NewJobHandler(svc, observeEnqueue, logger)
	ah := handler.NewAdminHandler(svc, logger)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Collaborator surface
		r.Post("/jobs", jh.Enqueue)
		r.Get("/jobs", jh.List)
		r.Get("/jobs/{id}", jh.GetByID)

		// Operator surface
		r.Get("/queue/status", ah.Status)
		r.Post("/queue/retry", ah.Retry)
		r.Delete("/queue/completed", ah.Cleanup)
		r.Delete("/queue/jobs", ah.DeleteAll)
		r.Post("/queue/test", ah.SendTest)
	})

	return r
}
