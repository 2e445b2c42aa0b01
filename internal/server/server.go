// Package server is the HTTP surface of the batch selection engine. It parses
// and validates requests, resolves the tenant, dispatches to the batch state
// machine, and maps coded errors onto status lines. It holds no lead state of
// its own.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/topleads/internal/batch"
	"github.com/user/topleads/internal/config"
	"github.com/user/topleads/internal/tenant"
)

// BasePath prefixes every feature route.
const BasePath = "/api/top-scoring-leads"

const requestTimeout = 120 * time.Second

// Server is the HTTP server for the lead selection engine.
type Server struct {
	cfg        config.Config
	resolver   *tenant.Resolver
	machine    *batch.Machine
	httpServer *http.Server
	router     chi.Router
}

// New creates a new Server.
func New(cfg config.Config, resolver *tenant.Resolver, machine *batch.Machine, bindAddr string) *Server {
	srv := &Server{cfg: cfg, resolver: resolver, machine: machine}
	srv.router = srv.buildRouter()
	srv.httpServer = &http.Server{
		Addr:              bindAddr,
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(structuredLogger)
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", tenant.HeaderClientID},
	}))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route(BasePath, func(r chi.Router) {
		// Status answers even when the feature is switched off.
		r.Get("/status", s.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(s.featureGate)
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/threshold", s.handleGetThreshold)
			r.Put("/threshold", s.handlePutThreshold)

			r.Get("/eligible", s.handleEligible)
			r.Get("/eligible/count", s.handleEligibleCount)
			r.Get("/eligible/all", s.handleEligibleAll)

			r.Get("/batch/current", s.handleCurrentBatch)
			r.Post("/batch/select", s.handleSelectBatch)
			r.Post("/batch/select/dry-run", s.handleDryRunSelect)
			r.Post("/batch/finalize", s.handleFinalizeBatch)
			r.Post("/batch/reset", s.handleResetBatch)

			r.Get("/export", s.handleExport)
			r.Get("/export/last", s.handleGetLastExport)
			r.Put("/export/last", s.handlePutLastExport)

			r.Get("/_meta", s.handleMeta)
			r.Get("/_meta/params", s.handleMetaParams)
			r.Get("/_debug/routes", s.handleDebugRoutes)

			r.Post("/dev/sanity-check", s.handleSanityCheck)
		})
	})

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	slog.Info("HTTP server starting", "addr", s.httpServer.Addr, "enabled", s.cfg.Enabled)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// JSON response helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// tenantOf resolves the request's tenant. On failure it writes the error
// response itself and reports false.
func (s *Server) tenantOf(w http.ResponseWriter, r *http.Request) (batch.Tenant, bool) {
	h, err := s.resolver.FromRequest(r)
	if err != nil {
		s.writeErr(w, r, err)
		return batch.Tenant{}, false
	}
	return batch.Tenant{ID: h.ID, Store: h.Store}, true
}

// Middleware

func structuredLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) featureGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Enabled {
			writeError(w, http.StatusNotFound, "top scoring leads is not enabled", "FEATURE_DISABLED")
			return
		}
		next.ServeHTTP(w, r)
	})
}
