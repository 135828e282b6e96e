// Package web provides the HTTP server and handlers for bulk loading and
// the administrator audit log.
package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/rs/cors"

	"github.com/JonMunkholm/TruckRewards/internal/config"
	"github.com/JonMunkholm/TruckRewards/internal/core"
	"github.com/JonMunkholm/TruckRewards/internal/metrics"
	mw "github.com/JonMunkholm/TruckRewards/internal/web/middleware"
)

// BulkLoader runs one ingestion session. Satisfied by *core.Ingestor.
type BulkLoader interface {
	Run(ctx context.Context, actor core.Actor, r io.Reader) (*core.Summary, error)
}

// AuditStore reads and writes the audit trail. Satisfied by *core.AuditService.
type AuditStore interface {
	core.AuditSink
	core.AuditStreamer
	Query(ctx context.Context, q core.AuditQuery) (*core.AuditLogResult, error)
	Recent(ctx context.Context, prefix string, limit int) ([]core.AuditEvent, error)
}

// Deps are the collaborators the server routes to. Metrics and Limiter are optional.
type Deps struct {
	Ingestor BulkLoader
	Audit    AuditStore
	Sessions sessions.Store
	Limiter  *core.SessionLimiter
	Metrics  *metrics.Metrics
}

// Server is the HTTP server for the bulk loading application.
type Server struct {
	cfg      *config.Config
	ingestor BulkLoader
	audit    AuditStore
	limiter  *core.SessionLimiter
	metrics  *metrics.Metrics
	auth     *mw.Auth
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		ingestor: deps.Ingestor,
		audit:    deps.Audit,
		limiter:  deps.Limiter,
		metrics:  deps.Metrics,
		router:   chi.NewRouter(),
	}
	s.auth = mw.NewAuth(deps.Sessions, cfg.Session.Name, s.respondError)
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}

	// Security hardening
	s.router.Use(securityHeaders)

	s.router.Use(s.auth.LoadUser)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	requireAdmin := s.auth.RequireRole(core.RoleAdministrator)
	requireSponsor := s.auth.RequireRole(core.RoleSponsor)

	// Pages
	s.router.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/admin/bulk-loading", s.handleBulkLoadPage(core.ModeAdmin))
		r.Post("/admin/bulk-loading", s.handleBulkLoad(core.ModeAdmin))
		r.Get("/bulk-loading/logs", s.handleBulkLoadLogs)
		r.Get("/admin/audit-logs", s.handleAuditLog)
		r.Get("/admin/audit-logs/export", s.handleAuditLogExport)
	})
	s.router.Group(func(r chi.Router) {
		r.Use(requireSponsor)
		r.Get("/sponsor/bulk-loading", s.handleBulkLoadPage(core.ModeSponsor))
		r.Post("/sponsor/bulk-loading", s.handleBulkLoad(core.ModeSponsor))
	})
	s.router.With(s.auth.RequireRole(core.RoleAdministrator, core.RoleSponsor)).
		Get("/bulk-loading/template", s.handleDownloadTemplate)

	// API routes always answer with JSON
	s.router.Route("/api", func(r chi.Router) {
		if len(s.cfg.CORS.AllowedOrigins) > 0 {
			r.Use(cors.New(cors.Options{
				AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost},
				AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
				AllowCredentials: true,
				MaxAge:           300,
			}).Handler)
		}

		r.With(requireAdmin).Post("/admin/bulk-loading", s.handleBulkLoad(core.ModeAdmin))
		r.With(requireSponsor).Post("/sponsor/bulk-loading", s.handleBulkLoad(core.ModeSponsor))
		r.With(requireAdmin).Get("/bulk-loading/logs", s.handleBulkLoadLogs)
		r.With(requireAdmin).Get("/admin/audit-logs", s.handleAuditLog)
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

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// handleHealth reports liveness and the session limiter state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.limiter != nil {
		resp["sessions"] = s.limiter.Status()
	}
	writeJSON(w, resp)
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Pages are server rendered with no scripts of their own
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
