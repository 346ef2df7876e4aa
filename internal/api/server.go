package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/ytdl-client/internal/job"
	"github.com/JakeFAU/ytdl-client/internal/metrics"
	"github.com/JakeFAU/ytdl-client/internal/session"
)

const (
	readyTimeout    = 3 * time.Second
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
	maxLogLimit     = 1000
)

// Session is the read side of the session controller.
type Session interface {
	Snapshot() session.State
	Logs() []job.LogEntry
}

// Backend reports download service health.
type Backend interface {
	Health(ctx context.Context) (string, error)
}

// Server wires HTTP handlers to the live session.
type Server struct {
	router  chi.Router
	session Session
	backend Backend
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. backend may be
// nil, in which case /readyz always reports ready.
func NewServer(sess Session, backend Backend, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		session: sess,
		backend: backend,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/session", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Get("/logs", s.getLogs)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("operator server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	status, err := s.backend.Health(ctx)
	if err != nil {
		s.logger.Warn("backend health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "backend": status})
}

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request) {
	if s.session == nil {
		writeError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	snap := s.session.Snapshot()
	dto := toSessionDTO(snap)
	writeJSON(w, http.StatusOK, map[string]any{"session": dto})
}

// getLogs handles GET /v1/session/logs?level=&limit=. limit keeps the most
// recent entries.
func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		writeError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	limit, err := parseLimit(r, maxLogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	level, err := parseLevel(r.URL.Query().Get("level"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logs := s.session.Logs()
	out := make([]job.LogEntry, 0, len(logs))
	for _, entry := range logs {
		if level != "" && entry.Level != level {
			continue
		}
		out = append(out, entry)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": out})
}

func parseLimit(r *http.Request, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return maxLimit, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New("invalid limit")
	}
	if v > maxLimit {
		v = maxLimit
	}
	return v, nil
}

func parseLevel(input string) (job.LogLevel, error) {
	switch strings.ToLower(input) {
	case "":
		return "", nil
	case "info":
		return job.LevelInfo, nil
	case "warning", "warn":
		return job.LevelWarning, nil
	case "error":
		return job.LevelError, nil
	default:
		return "", errors.New("invalid level")
	}
}

type sessionDTO struct {
	URL         string          `json:"url"`
	Status      job.Status      `json:"status"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message,omitempty"`
	JobID       string          `json:"job_id,omitempty"`
	Error       string          `json:"error,omitempty"`
	Monitor     session.Monitor `json:"monitor"`
	Request     job.Request     `json:"request"`
	Metadata    *job.Metadata   `json:"metadata,omitempty"`
	ArtifactURI string          `json:"artifact_uri,omitempty"`
	LogCount    int             `json:"log_count"`
}

func toSessionDTO(s session.State) sessionDTO {
	return sessionDTO{
		URL:         s.URL,
		Status:      s.Status,
		Progress:    s.Progress,
		Message:     s.Message,
		JobID:       s.JobID,
		Error:       s.Error,
		Monitor:     s.Monitor,
		Request:     s.Request,
		Metadata:    s.Metadata,
		ArtifactURI: s.ArtifactURI,
		LogCount:    len(s.Logs),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
