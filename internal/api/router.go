package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shalom-ormsby/sagestocks/internal/api/handler"
	apimw "github.com/shalom-ormsby/sagestocks/internal/api/middleware"
	"github.com/shalom-ormsby/sagestocks/internal/cycle"
	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// NewRouter wires the chi router, attaches all middleware, and
// registers every route. It is the single source of truth for the
// HTTP surface area.
func NewRouter(
	svc *cycle.Service,
	triggerToken string,
	onSummary func(domain.RunSummary),
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
	rh := handler.NewRunHandler(svc, triggerToken, onSummary, logger)
	qh := handler.NewQueueHandler(svc)
	mh := handler.NewMetricsHandler(svc)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/cycle/run", rh.Run)
		r.Get("/cycle", qh.Get)
		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
