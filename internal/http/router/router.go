package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/straye-as/order-sync/internal/http/handler"
	"github.com/straye-as/order-sync/internal/http/middleware"
	"go.uber.org/zap"
)

type Router struct {
	logger        *zap.Logger
	healthHandler *handler.HealthHandler
	runsHandler   *handler.RunsHandler
	metrics       http.Handler
}

func NewRouter(logger *zap.Logger, healthHandler *handler.HealthHandler, runsHandler *handler.RunsHandler) *Router {
	return &Router{
		logger:        logger,
		healthHandler: healthHandler,
		runsHandler:   runsHandler,
		metrics:       promhttp.Handler(),
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders())

	// Liveness probe
	r.Get("/health", rt.healthHandler.Live)

	// Readiness probe (dependency checks and sync loop state)
	r.Get("/health/ready", rt.healthHandler.Ready)

	// Prometheus scrape endpoint
	r.Method(http.MethodGet, "/metrics", rt.metrics)

	// Sync run history
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", rt.runsHandler.List)
		r.Get("/latest", rt.runsHandler.Latest)
	})

	return r
}
