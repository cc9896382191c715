// Package http exposes the dispatch core over HTTP and WebSocket: commands
// in, events and status out, plus health and metrics surfaces.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skylift-io/dispatch-go/internal/constants"
	"github.com/skylift-io/dispatch-go/internal/controller"
	"github.com/skylift-io/dispatch-go/internal/infra/config"
	"github.com/skylift-io/dispatch-go/internal/infra/health"
	"github.com/skylift-io/dispatch-go/internal/infra/observability"
)

// Server is the main HTTP server: command submission, status, health and
// metrics endpoints.
type Server struct {
	ctrl          *controller.Controller
	httpServer    *http.Server
	cfg           *config.Config
	logger        *slog.Logger
	healthService *health.HealthService
}

// CommandRequestBody represents the JSON request body for command submission.
type CommandRequestBody struct {
	Command string `json:"command"`
}

// CommandResponse acknowledges an accepted command.
type CommandResponse struct {
	Command  string `json:"command"`
	Accepted bool   `json:"accepted"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]interface{} `json:"checks"`
}

// NewServer creates the HTTP server wired to the controller.
func NewServer(cfg *config.Config, port int, ctrl *controller.Controller, tp *observability.TelemetryProvider) *Server {
	s := &Server{
		ctrl:          ctrl,
		cfg:           cfg,
		logger:        slog.With(slog.String("component", constants.ComponentHTTPServer)),
		healthService: health.NewHealthService(10 * time.Second),
	}

	s.healthService.Register(health.NewLivenessChecker())
	s.healthService.Register(health.NewComponentHealthChecker("fleet", func(ctx context.Context) (bool, string, map[string]interface{}) {
		cabins := ctrl.Fleet().Cabins()
		running := 0
		for _, c := range cabins {
			if c.IsStarted() {
				running++
			}
		}
		healthy := len(cabins) == 0 || running > 0
		return healthy, fmt.Sprintf("%d/%d cabins running", running, len(cabins)), map[string]interface{}{
			"cabins":  len(cabins),
			"running": running,
		}
	}))

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/command", s.commandHandler)
	mux.HandleFunc("/v1/status", s.statusHandler)
	if cfg.HealthEnabled {
		mux.HandleFunc(cfg.HealthPath, s.healthHandler)
	}
	if cfg.MetricsEnabled {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	var handler http.Handler = mux
	if tp != nil {
		handler = tp.Middleware()(mux)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// commandHandler accepts a command line, JSON or plain text, and hands it to
// the controller without waiting for completion.
func (s *Server) commandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var command string
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, constants.ContentTypeJSON) {
		var body CommandRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		command = body.Command
	} else {
		raw, err := io.ReadAll(io.LimitReader(r.Body, 1024))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		command = strings.TrimSpace(string(raw))
	}

	if command == "" {
		http.Error(w, "empty command", http.StatusBadRequest)
		return
	}

	s.logger.Debug("command received", slog.String("command", command))
	task := s.ctrl.HandleCommand(command)

	w.Header().Set("Content-Type", constants.ContentTypeJSON)
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(CommandResponse{Command: command, Accepted: task != nil}); err != nil {
		s.logger.Error("failed to write command response", slog.String("error", err.Error()))
	}
}

// statusHandler returns the observable status of every cabin.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", constants.ContentTypeJSON)
	if err := json.NewEncoder(w).Encode(s.ctrl.Statuses()); err != nil {
		s.logger.Error("failed to write status response", slog.String("error", err.Error()))
	}
}

// healthHandler aggregates the registered health checks.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, results := s.healthService.GetOverallStatus(r.Context())

	checks := make(map[string]interface{}, len(results))
	for name, result := range results {
		checks[name] = result
	}

	code := http.StatusOK
	if status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", constants.ContentTypeJSON)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(HealthResponse{
		Status:    string(status),
		Timestamp: time.Now(),
		Checks:    checks,
	}); err != nil {
		s.logger.Error("failed to write health response", slog.String("error", err.Error()))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
