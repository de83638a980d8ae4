package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"envelopes/internal/log"
	"envelopes/internal/metrics"
	"envelopes/internal/services"
	"envelopes/internal/store"
)

const readyTimeout = 2 * time.Second

// Server is the JSON API server.
type Server struct {
	http.Server

	svc             *services.ChallengeService
	ready           store.Pinger
	logger          *log.Logger
	defaultCurrency string
	rateLimiter     *rateLimiter

	shutdownOnce sync.Once
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithReadiness makes /readyz ping p.
func WithReadiness(p store.Pinger) ServerOption {
	return func(s *Server) { s.ready = p }
}

func WithServerLogger(l *log.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithDefaultCurrency sets the currency used when a create request omits one.
func WithDefaultCurrency(code string) ServerOption {
	return func(s *Server) { s.defaultCurrency = code }
}

// WithWriteLimit sets the per-client limit of write requests per minute.
func WithWriteLimit(perMinute int) ServerOption {
	return func(s *Server) { s.rateLimiter = newRateLimiter(perMinute) }
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.ChallengeService, opts ...ServerOption) *Server {
	s := &Server{
		svc:             svc,
		logger:          log.Discard(),
		defaultCurrency: "RUB",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rateLimiter == nil {
		s.rateLimiter = newRateLimiter(defaultWritesPerMinute)
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)
	go s.rateLimiter.startCleanup()

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(log.Middleware(s.logger))
	r.Use(observe)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimiter.limitWrites)
		r.Get("/preview", s.handlePreview)
		r.Get("/achievements", s.handleCatalog)
		r.Post("/challenges", s.handleCreateChallenge)
		r.Route("/challenges/{code}", func(r chi.Router) {
			r.Get("/", s.handleGetChallenge)
			r.Patch("/", s.handleUpdateChallenge)
			r.Delete("/", s.handleResetChallenge)
			r.Post("/join", s.handleJoinChallenge)
			r.Get("/envelopes", s.handleListEnvelopes)
			r.Post("/envelopes/{id}/open", s.handleOpenEnvelope)
			r.Get("/achievements", s.handleAchievements)
			r.Get("/timeline", s.handleTimeline)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError(r, "route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(r, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed").Write(w)
	})
	return r
}

// observe records request latency under the matched route pattern.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		metrics.ObserveHTTP(route, r.Method, status, time.Since(start))
	})
}

// Shutdown stops the rate limiter cleanup and gracefully shuts down the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			NewJSONResponse().
				Status(http.StatusServiceUnavailable).
				Body(map[string]string{"status": "unavailable"}).
				Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}
