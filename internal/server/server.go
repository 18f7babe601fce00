// Package server exposes the vesting engine over HTTP: pool lifecycle, rule
// management, snapshot and sync operations, claims, signed admin commands,
// and treasury solvency reads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/stratalabs/vestflow/internal/auth"
	"github.com/stratalabs/vestflow/internal/metrics"
	"github.com/stratalabs/vestflow/internal/treasury"
	"github.com/stratalabs/vestflow/internal/vesting"
)

// Config holds the server configuration.
type Config struct {
	Addr           string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Server is the HTTP front of the vesting engine.
type Server struct {
	router   *chi.Mux
	engine   *vesting.Engine
	store    vesting.Store
	treasury *treasury.Reconciler
	authn    *auth.Authenticator
	limiter  *RateLimiter
	logger   *slog.Logger
	srv      *http.Server
}

// New creates an HTTP server. The store is used for reads and the audit log;
// all mutations go through the engine.
func New(cfg Config, engine *vesting.Engine, store vesting.Store, tr *treasury.Reconciler, authn *auth.Authenticator, logger *slog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		router:   chi.NewRouter(),
		engine:   engine,
		store:    store,
		treasury: tr,
		authn:    authn,
		// Expensive compute endpoints: 30 per minute per IP, burst of 5.
		limiter: NewRateLimiter(rate.Every(time.Minute/30), 5),
		logger:  logger,
	}
	s.setupRoutes(cfg)
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(cfg Config) {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(cfg.RequestTimeout))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	s.router.Use(metrics.Middleware)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/pools", func(r chi.Router) {
			r.Post("/", s.handleCreatePool)
			r.Get("/", s.handleListPools)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPool)
				r.Patch("/", s.handlePatchPool)
				r.Post("/pause", s.handlePausePool)
				r.Post("/resume", s.handleResumePool)
				r.Post("/cancel", s.handleCancelPool)

				r.Post("/rules", s.handleAddRule)
				r.Get("/rules", s.handleListRules)
				r.Patch("/rules/{ruleID}", s.handlePatchRule)

				r.With(RateLimitMiddleware(s.limiter)).Get("/snapshot/preview", s.handleSnapshotPreview)
				r.With(RateLimitMiddleware(s.limiter)).Post("/snapshot/commit", s.handleSnapshotCommit)
				r.With(RateLimitMiddleware(s.limiter)).Post("/sync", s.handleSync)

				r.Post("/memberships", s.handleAddMembership)
				r.Get("/memberships", s.handleListMemberships)
				r.Delete("/memberships/{wallet}", s.handleRemoveMembership)
			})
		})

		r.Post("/claims", s.handleRecordClaim)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/pause-all", s.handleAdminPauseAll)
			r.Post("/resume-all", s.handleAdminResumeAll)
			r.Post("/emergency-stop", s.handleAdminEmergencyStop)
		})

		r.Route("/treasury", func(r chi.Router) {
			r.Get("/status", s.handleTreasuryStatus)
			r.Get("/breakdown", s.handleTreasuryBreakdown)
		})
	})
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// poolID parses the {id} route parameter. A malformed id is a 404: the
// resource space simply does not contain it.
func (s *Server) poolID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "pool not found")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// writeDomainError maps the domain error taxonomy onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vesting.ErrValidation), errors.Is(err, auth.ErrInvalidEnvelope):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vesting.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, vesting.ErrPreconditionFailed), errors.Is(err, vesting.ErrDuplicateActive):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrBadSignature), errors.Is(err, auth.ErrExpired):
		s.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, vesting.ErrExternal):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
