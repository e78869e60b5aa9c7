// Package api provides the HTTP and WebSocket front door to the agent.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/agent"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/buildinfo"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/connwatch"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/docs"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
)

// writeJSON encodes v as JSON to w, logging any encoding error.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	svc     *agent.Service
	store   *store.Store
	logger  *slog.Logger
	server  *http.Server
	stats   *SessionStats
	health  HealthReporter
}

// HealthReporter reports the reachability of the services the agent
// depends on. *connwatch.Manager implements it.
type HealthReporter interface {
	Status() map[string]connwatch.ServiceStatus
	Healthy() bool
}

// NewServer creates a new API server.
func NewServer(address string, port int, svc *agent.Service, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		svc:     svc,
		store:   st,
		logger:  logger,
		stats:   NewSessionStats(),
	}
}

// SetHealth makes /health report dependency status from h.
func (s *Server) SetHealth(h HealthReporter) {
	s.health = h
}

// Stats returns the process-wide counters.
func (s *Server) Stats() *SessionStats {
	return s.stats
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.withLogging)

	r.Get("/health", s.handleHealth)
	r.Get("/v1/version", s.handleVersion)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/v1/tools", s.handleTools)
		r.Post("/v1/agent/chat", s.handleAgentChat)
		r.Post("/v1/chat/completions", s.handleChatCompletions)
		r.Get("/v1/agent/ws", s.handleWebSocket)
		r.Get("/v1/traces/{requestID}", s.handleTraces)
		r.Get("/v1/invoices.csv", s.handleInvoicesCSV)
		r.Get("/v1/stats", s.handleStats)
	})

	return r
}

// Start serves until the server is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A request may take several model rounds.
		WriteTimeout: 10 * time.Minute,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errorType(code),
			"code":    code,
		},
	}, s.logger)
}

func errorType(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusBadGateway:
		return "upstream_error"
	}
	if code >= 500 {
		return "server_error"
	}
	return "invalid_request_error"
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.health == nil {
		writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
		return
	}

	status := "healthy"
	if !s.health.Healthy() {
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, map[string]any{
		"status":   status,
		"services": s.health.Status(),
	}, s.logger)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.stats.Snapshot(), s.logger)
}

// handleTools lists the operations the caller may invoke.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	reg, err := s.svc.Registry(p)
	if err != nil {
		s.logger.Error("build registry failed", "user", p.ID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not list operations")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"object": "list",
		"data":   reg.Definitions(),
	}, s.logger)
}

// handleTraces returns the recorded rounds of one request. Non-admins
// only see their own requests.
func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "trace store not configured")
		return
	}
	p := principalFrom(r.Context())
	requestID := chi.URLParam(r, "requestID")

	traces, err := s.store.Traces(r.Context(), requestID)
	if err != nil {
		s.logger.Error("load traces failed", "request_id", requestID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not load traces")
		return
	}
	if p.Role != auth.RoleAdmin {
		for _, tr := range traces {
			if tr.ActorID != p.ID {
				traces = nil
				break
			}
		}
	}
	if len(traces) == 0 {
		s.errorResponse(w, http.StatusNotFound, "no traces for request "+requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"request_id": requestID,
		"rounds":     traces,
	}, s.logger)
}

// maxExportRows is the store's list ceiling.
const maxExportRows = 100

// handleInvoicesCSV exports invoices, optionally filtered by ?status=.
func (s *Server) handleInvoicesCSV(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	p := principalFrom(r.Context())
	if !p.Can(auth.InvoicesRead) {
		s.errorResponse(w, http.StatusForbidden, fmt.Sprintf("%s may not read invoices", p.Role))
		return
	}

	invoices, err := s.store.ListInvoices(r.Context(), r.URL.Query().Get("status"), maxExportRows)
	if err != nil {
		s.logger.Error("list invoices failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not list invoices")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.csv"`)
	if err := docs.WriteInvoicesCSV(w, invoices); err != nil {
		s.logger.Warn("write invoices csv failed", "error", err)
	}
}
