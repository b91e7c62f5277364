// Package httptransport assembles the public HTTP surface: the shared
// middleware chain, the health and metrics endpoints, and the versioned API
// routes with their authentication perimeters.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"platbook/internal/platform/metrics"
	"platbook/internal/platform/middleware"
	"platbook/pkg/platform/httputil"
)

// Registrar mounts a handler's routes on a router. Handlers implement it so
// the assembly stays ignorant of their request and response shapes.
type Registrar interface {
	Register(r chi.Router)
}

// Config carries the collaborators the router wires together. Nil handlers
// are skipped, so partial assemblies work in tests and degraded deployments.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Collectors middleware.CollectorAuthenticator
	Reviewers  middleware.ReviewerValidator
	AdminToken string

	Listings    Registrar
	Properties  Registrar
	Reviews     Registrar
	Enrichments Registrar
	Events      Registrar
	Reports     Registrar

	// Ready reports whether backing stores are reachable. Nil means always
	// ready.
	Ready func(ctx context.Context) error
}

// NewRouter builds the full route tree. Listings and enrichments take
// collector API keys, reviews take reviewer JWTs, events and reports take
// the admin token. Property reads and the operational endpoints are open
// inside the platform perimeter.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(cfg.Metrics.Middleware)
	r.Use(middleware.Recovery(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(req.Context()); err != nil {
				logger.WarnContext(req.Context(), "readiness probe failed",
					slog.String("error", err.Error()))
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		if cfg.Listings != nil || cfg.Enrichments != nil {
			v1.Group(func(g chi.Router) {
				g.Use(middleware.RequireCollector(cfg.Collectors, logger))
				register(g, cfg.Listings)
				register(g, cfg.Enrichments)
			})
		}
		if cfg.Reviews != nil {
			v1.Group(func(g chi.Router) {
				g.Use(middleware.RequireReviewer(cfg.Reviewers, logger))
				cfg.Reviews.Register(g)
			})
		}
		if cfg.Events != nil || cfg.Reports != nil {
			v1.Group(func(g chi.Router) {
				g.Use(middleware.RequireAdmin(cfg.AdminToken, logger))
				register(g, cfg.Events)
				register(g, cfg.Reports)
			})
		}
		register(v1, cfg.Properties)
	})
	return r
}

func register(r chi.Router, h Registrar) {
	if h != nil {
		h.Register(r)
	}
}
