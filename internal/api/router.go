// Package api exposes DevPulse's HTTP surface: the ingest endpoint, the
// read/query endpoints, webhook and admin management, and the /stream
// subscriber channel (spec.md §6). Routing follows the teacher's explicit
// authorize/origin-check handler style, generalized from a bare
// http.ServeMux onto chi so path parameters (`:id`, `:name`) don't need
// hand-rolled prefix parsing.
package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/devpulse/server/internal/alert"
	"github.com/devpulse/server/internal/config"
	"github.com/devpulse/server/internal/conflict"
	"github.com/devpulse/server/internal/hub"
	"github.com/devpulse/server/internal/ingest"
	"github.com/devpulse/server/internal/retention"
	"github.com/devpulse/server/internal/store"
	"github.com/devpulse/server/internal/webhook"
)

// Server holds every component a handler needs and builds the chi router
// (spec.md §6 "external interfaces").
type Server struct {
	cfg        *config.Config
	store      *store.Store
	processor  *ingest.Processor
	hub        *hub.Hub
	dispatcher *webhook.Dispatcher
	retention  *retention.Manager
	alerts     *alert.Engine
	conflicts  *conflict.Detector
	log        zerolog.Logger

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
}

// New builds a Server wired to every long-lived component (spec.md §2).
func New(cfg *config.Config, s *store.Store, p *ingest.Processor, h *hub.Hub, d *webhook.Dispatcher, r *retention.Manager, ae *alert.Engine, cd *conflict.Detector, log zerolog.Logger) *Server {
	srv := &Server{
		cfg:            cfg,
		store:          s,
		processor:      p,
		hub:            h,
		dispatcher:     d,
		retention:      r,
		alerts:         ae,
		conflicts:      cd,
		log:            log.With().Str("component", "api").Logger(),
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		srv.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			srv.allowedHosts[parsed.Host] = true
		}
	}
	return srv
}

// Router assembles the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.authenticate)

	r.Post("/events", s.handleIngest)
	r.Get("/events/recent", s.handleRecentEvents)
	r.Get("/events/filter-options", s.handleFilterOptions)

	r.Get("/stream", s.handleStream)

	r.Route("/api", func(r chi.Router) {
		r.Get("/projects", s.handleListProjects)
		r.Get("/projects/{name}", s.handleGetProject)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}/events", s.handleSessionEvents)

		r.Get("/devlogs", s.handleListDevLogs)
		r.Get("/topology", s.handleTopology)
		r.Get("/summaries", s.handleSummaries)
		r.Get("/costs", s.handleCosts)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/conflicts", s.handleListConflicts)
		r.Post("/conflicts/{id}/dismiss", s.handleDismissConflict)

		r.Get("/search", s.handleSearch)
		r.Get("/analytics/heatmap", s.handleHeatmap)

		r.Get("/webhooks", s.handleListWebhooks)
		r.Post("/webhooks", s.handleCreateWebhook)
		r.Put("/webhooks/{id}", s.handleUpdateWebhook)
		r.Delete("/webhooks/{id}", s.handleDeleteWebhook)
		r.Post("/webhooks/{id}/test", s.handleTestWebhook)

		r.Get("/admin/stats", s.handleAdminStats)
		r.Post("/admin/cleanup", s.handleAdminCleanup)
		r.Get("/admin/settings", s.handleGetSettings)
		r.Put("/admin/settings", s.handlePutSettings)

		r.Get("/export/report", s.handleExportReport)
	})

	return r
}

// requestLogger mirrors the teacher's plain-text request log, switched to
// zerolog's structured one-line-per-request style (SPEC_FULL.md §10.1).
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// authenticate enforces the optional bearer/query/header token the teacher's
// Server.authorize checks, and the origin allowlist its checkOrigin checks
// (spec.md §6 mentions no auth scheme explicitly; this carries the
// teacher's ambient auth/origin gate forward rather than dropping it).
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(r *http.Request) bool {
	token := s.cfg.Server.AuthToken
	if token == "" {
		return true
	}
	if r.URL.Query().Get("token") == token {
		return true
	}
	if r.Header.Get("X-DevPulse-Token") == token {
		return true
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == token {
		return true
	}
	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}
	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	return false
}
