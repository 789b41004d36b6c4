// Package web provides the HTTP API for the contact import service:
// authentication, import preview and apply, record management, and
// snapshot rollback.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alphaops/contactsync/internal/config"
	"github.com/alphaops/contactsync/internal/core"
	"github.com/alphaops/contactsync/internal/filestore"
	"github.com/alphaops/contactsync/internal/web/middleware"
)

// Server is the HTTP server for the contact import API.
type Server struct {
	service  *core.Service
	archiver *filestore.Archiver
	cfg      *config.Config
	limiter  *importLimiter
	rates    []*rateLimiter
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, archiver *filestore.Archiver, cfg *config.Config) *Server {
	if archiver == nil {
		archiver = filestore.Disabled()
	}
	s := &Server{
		service:  service,
		archiver: archiver,
		cfg:      cfg,
		limiter:  newImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		router:   chi.NewRouter(),
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

	// Security hardening
	s.router.Use(s.securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.rates = append(s.rates, limiter)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		// Everything below requires a valid token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(s.cfg.Auth.JWTSecret))

			// Import pipeline: a stricter rate limit guards the
			// file-accepting endpoint.
			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled {
					importRate := newRateLimiter(s.cfg.Rate.ImportLimit, time.Minute)
					s.rates = append(s.rates, importRate)
					r.Use(importRate.middleware)
				}
				r.Post("/import/upload", s.handleImportUpload)
			})
			r.Post("/import/preview", s.handleImportPreview)
			r.Post("/import/apply", s.handleImportApply)
			r.Get("/import/archive", s.handleArchiveURL)

			// Records
			r.Get("/records", s.handleListRecords)
			r.Get("/records/{id}", s.handleGetRecord)
			r.Delete("/records/{id}", s.handleDeleteRecord)
			r.Get("/export", s.handleExportRecords)

			// Snapshots
			r.Get("/snapshots", s.handleListSnapshots)
			r.Delete("/snapshots", s.handleDeleteAllSnapshots)
			r.Get("/snapshots/{id}", s.handleGetSnapshot)
			r.Post("/snapshots/{id}/rollback", s.handleRollback)
			r.Delete("/snapshots/{id}", s.handleDeleteSnapshot)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight imports
// to finish before closing the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.rates {
		rl.close()
	}
	s.rates = nil
	if s.server == nil {
		return nil
	}
	if s.limiter.ActiveCount() > 0 {
		slog.Info("waiting for imports to complete", "active", s.limiter.ActiveCount())
		if err := s.limiter.WaitForDrain(ctx); err != nil {
			slog.Warn("imports did not complete in time", "error", err)
		}
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if s.cfg.Security.EnableCSP {
			// API-only server: no scripts, styles, or frames at all
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	stop     chan struct{} // closed to end the cleanup goroutine
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		stop:     make(chan struct{}),
	}
	// Start cleanup goroutine
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute until close().
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if time.Since(v.lastReset) > rl.window*2 {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// close ends the cleanup goroutine. Call exactly once.
func (rl *rateLimiter) close() {
	close(rl.stop)
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1, // consume one token
			lastReset: time.Now(),
		}
		return true
	}

	// Reset tokens if window has passed
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
		ip := r.RemoteAddr
		// Use X-Real-IP if set (by RealIP middleware)
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			ip = realIP
		}

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded","code":"RATE_LIMITED"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
