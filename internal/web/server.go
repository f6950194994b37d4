// Package web provides the HTTP API for the fiscal audit service.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auditoria/fiscal/internal/config"
	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/internal/pipeline"
	"github.com/auditoria/fiscal/internal/store"
	"github.com/auditoria/fiscal/internal/web/middleware"
)

// JobStore is the persistence surface the handlers need. *store.Store
// satisfies it; tests substitute an in-memory implementation.
type JobStore interface {
	CreateJob(ctx context.Context, fileCount int) (*store.Job, error)
	MarkRunning(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, percent float64, step string) error
	Complete(ctx context.Context, id string, report *model.Report) error
	Fail(ctx context.Context, id, message string) error
	UpdateReport(ctx context.Context, id string, report *model.Report) error
	Get(ctx context.Context, id string) (*store.Job, error)
	GetReport(ctx context.Context, id string) (*model.Report, error)
	List(ctx context.Context, limit, offset int) ([]store.Job, error)
}

// Server is the HTTP server for the audit API.
type Server struct {
	cfg     *config.Config
	log     *slog.Logger
	pipe    *pipeline.Pipeline
	jobs    JobStore
	limiter *JobLimiter
	router  *chi.Mux
	server  *http.Server

	jobCtx     context.Context
	cancelJobs context.CancelFunc
}

// NewServer creates a server wired to the given pipeline and job store.
func NewServer(cfg *config.Config, logger *slog.Logger, pipe *pipeline.Pipeline, jobs JobStore) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		log:        logger,
		pipe:       pipe,
		jobs:       jobs,
		limiter:    NewJobLimiter(cfg.Upload.MaxConcurrent),
		router:     chi.NewRouter(),
		jobCtx:     jobCtx,
		cancelJobs: cancel,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		r.Get("/audits", s.handleListAudits)
		r.Get("/audits/{jobID}", s.handleGetAudit)
		r.Get("/audits/{jobID}/report", s.handleGetReport)

		// Upload endpoints get a stricter per-IP rate limit.
		upload := r
		if s.cfg.Rate.Enabled {
			upload = r.With(newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute).middleware)
		}
		upload.Post("/audits", s.handleCreateAudit)
		upload.Post("/audits/{jobID}/reconcile", s.handleReconcile)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and waits for running jobs to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelJobs()
	if err := s.limiter.WaitForDrain(ctx); err != nil {
		s.log.Warn("audit jobs did not drain in time", "error", err)
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: time.Now()}
		return true
	}
	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, "RATE_LIMIT", "limite de requisições excedido")
			return
		}
		next.ServeHTTP(w, r)
	})
}
