// Package api exposes derivation and verification over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"inventory-verify/db/clickhouse"
	"inventory-verify/decision/derive"
	"inventory-verify/decision/fetch"
	"inventory-verify/decision/flavor"
	"inventory-verify/decision/reconcile"
	"inventory-verify/decision/verify"
	"inventory-verify/pkg/entity"
	verr "inventory-verify/pkg/errors"
	"inventory-verify/pkg/platform"
)

const version = "0.3.0"

// Verifier runs one verification.
type Verifier interface {
	Run(ctx context.Context) (*verify.Run, error)
}

// RunHistory reads recorded runs.
type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]clickhouse.RunRecord, error)
	GetRun(ctx context.Context, id uuid.UUID) (*clickhouse.RunDetail, error)
	Ping(ctx context.Context) error
}

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	engine     *derive.Engine
	verifier   Verifier
	history    RunHistory
	config     *Config
	logger     zerolog.Logger
	startTime  time.Time
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
	CORSOrigins    []string
	APIKey         string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   5 * time.Minute,
		MaxRequestSize: 32 * 1024 * 1024, // 32MB
		CORSOrigins:    []string{"*"},
	}
}

// NewServer creates a new API server. verifier and history may be nil;
// their endpoints then answer 503.
func NewServer(engine *derive.Engine, verifier Verifier, history RunHistory, config *Config, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if engine == nil {
		engine = derive.NewEngine(derive.WithLogger(logger))
	}
	return &Server{
		engine:    engine,
		verifier:  verifier,
		history:   history,
		config:    config,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(platform.APIKeyMiddleware(s.config.APIKey))
		r.Post("/derive", s.handleDerive)
		r.Post("/verify", s.handleVerify)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info().Int("port", s.config.Port).Str("version", version).Msg("API server starting")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts server with graceful shutdown handling
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.logger.Info().Msg("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.history != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.history.Ping(ctx); err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, "run history not ready")
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

// =============================================================================
// DERIVE ENDPOINT
// =============================================================================

// DeriveRequest carries a document snapshot and the flavor table to
// derive against.
type DeriveRequest struct {
	Snapshot json.RawMessage `json:"snapshot"`
	Flavors  flavor.Table    `json:"flavors"`
}

// DeriveResponse holds the expected count of every entity type.
type DeriveResponse struct {
	Counts entity.Counts `json:"counts"`
}

func (s *Server) handleDerive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req DeriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Snapshot) == 0 {
		s.jsonError(w, http.StatusBadRequest, "snapshot is required")
		return
	}

	static, err := fetch.Parse(req.Snapshot)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	counts, err := s.engine.Derive(r.Context(), static, req.Flavors)
	if err != nil {
		status := http.StatusInternalServerError
		if verr.HasCode(err, verr.ErrCodeUnresolvedLookup) {
			status = http.StatusUnprocessableEntity
		}
		s.jsonError(w, status, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, DeriveResponse{Counts: counts})
}

// =============================================================================
// VERIFY ENDPOINT
// =============================================================================

// VerifyResponse wraps a finished run.
type VerifyResponse struct {
	Run                 *verify.Run                `json:"run"`
	Mismatches          []reconcile.Row            `json:"mismatches,omitempty"`
	AttributeMismatches []reconcile.AttributeCheck `json:"attribute_mismatches,omitempty"`
	Error               string                     `json:"error,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "verification is not configured")
		return
	}

	run, err := s.verifier.Run(r.Context())
	resp := VerifyResponse{Run: run}
	if err == nil {
		s.jsonResponse(w, http.StatusOK, resp)
		return
	}

	resp.Error = err.Error()
	var mismatch *reconcile.MismatchError
	switch {
	case errors.As(err, &mismatch):
		resp.Mismatches = mismatch.Mismatches
		resp.AttributeMismatches = mismatch.Attributes
		s.jsonResponse(w, http.StatusConflict, resp)
	case verr.HasCode(err, verr.ErrCodeUnresolvedLookup):
		s.jsonResponse(w, http.StatusUnprocessableEntity, resp)
	default:
		s.jsonResponse(w, http.StatusInternalServerError, resp)
	}
}

// =============================================================================
// RUN HISTORY ENDPOINTS
// =============================================================================

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []clickhouse.RunRecord{}
	}
	s.jsonResponse(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.history.GetRun(r.Context(), id)
	if errors.Is(err, clickhouse.ErrRunNotFound) {
		s.jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get run: %v", err))
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
