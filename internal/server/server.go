// Package server provides the HTTP REST API for market research requests.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/market-research/internal/config"
	"github.com/jonathan/market-research/internal/observability"
	"github.com/jonathan/market-research/internal/pipeline"
	"github.com/jonathan/market-research/internal/server/middleware"
	"github.com/jonathan/market-research/internal/server/ratelimit"
	"github.com/jonathan/market-research/internal/store"
)

// ReportRenderer returns the artifact URL of a completed request, rendering it on
// first use. rendering.Service satisfies it.
type ReportRenderer interface {
	Render(ctx context.Context, id uuid.UUID) (string, error)
}

// ArtifactOpener reads stored report files. Both artifact stores satisfy it.
type ArtifactOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// Deps are the collaborators the API is built on.
type Deps struct {
	Requests  store.RequestStore
	Users     store.UserStore
	Runs      pipeline.Submitter
	Reports   ReportRenderer
	Artifacts ArtifactOpener
	JWT       *config.JWTConfig
	Password  *config.PasswordConfig
	// RateLimit nil disables rate limiting.
	RateLimit *ratelimit.Config
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// Config holds server configuration
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration

	requests    store.RequestStore
	runs        pipeline.Submitter
	reports     ReportRenderer
	artifacts   ArtifactOpener
	userService *UserService
	jwtService  *JWTService
	rateLimiter *ratelimit.Limiter
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Requests == nil || deps.Users == nil || deps.Runs == nil {
		return nil, fmt.Errorf("server requires a request store, a user store and a run submitter")
	}
	if deps.JWT == nil || deps.Password == nil {
		return nil, fmt.Errorf("server requires JWT and password configuration")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		shutdownTimeout: cfg.ShutdownTimeout,
		requests:        deps.Requests,
		runs:            deps.Runs,
		reports:         deps.Reports,
		artifacts:       deps.Artifacts,
		userService:     NewUserService(deps.Users, deps.Password),
		jwtService:      NewJWTService(deps.JWT),
		metrics:         deps.Metrics,
		logger:          observability.OrNop(deps.Logger).Named("http"),
		now:             time.Now,
	}
	if deps.RateLimit != nil && deps.RateLimit.Enabled {
		s.rateLimiter = ratelimit.NewLimiter(deps.RateLimit)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	auth := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /api/users/register", s.handleRegister)
	mux.HandleFunc("POST /api/users/login", s.handleLogin)
	mux.Handle("GET /api/users/profile", protected(s.handleGetProfile))
	mux.Handle("PUT /api/users/profile", protected(s.handleUpdateProfile))
	mux.Handle("GET /api/users/research", protected(s.handleListResearch))

	mux.Handle("GET /api/research", protected(s.handleListResearch))
	mux.Handle("POST /api/research", protected(s.handleCreateResearch))
	mux.Handle("GET /api/research/{id}", protected(s.handleGetResearch))
	mux.Handle("PUT /api/research/{id}", protected(s.handleUpdateResearch))
	mux.Handle("DELETE /api/research/{id}", protected(s.handleDeleteResearch))
	mux.Handle("GET /api/research/{id}/results", protected(s.handleResearchResults))
	mux.Handle("GET /api/research/{id}/download", protected(s.handleDownloadResearch))
	mux.HandleFunc("GET /api/downloads/{name}", s.handleServeArtifact)

	return s.withLogging(s.withCORS(s.withRateLimit(mux)))
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown stops the listener and the rate limiter cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.metrics.HTTPRequest(r.Method, rec.status)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// fail maps err onto a status and logs what clients do not see.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	s.errorResponse(w, status, publicMessage(err))
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return &ErrValidation{Field: "body", Message: "invalid JSON"}
	}
	return nil
}

// clientID extracts the client identifier from the request.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Too many requests from this IP, please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		retry := int(info.RetryAfter.Seconds())
		if retry < 1 {
			retry = 1
		}
		response["retry_after"] = retry
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}

	s.logger.Warn("rate limit exceeded",
		zap.String("client", clientID(r)),
		zap.String("path", r.URL.Path),
		zap.Int("limit", info.Limit),
	)
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
