package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"afterlive/internal/api"
	"afterlive/internal/config"
	"afterlive/internal/live"
	"afterlive/internal/logging"
	"afterlive/internal/uploadqueue"
	"afterlive/internal/workflow"
)

const maxEventBytes = 1 << 20

type apiServer struct {
	cfg    *config.Config
	daemon *Daemon
	logger *slog.Logger
	router chi.Router

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	s := &apiServer{
		cfg:    cfg,
		daemon: d,
		logger: logging.NewComponentLogger(logger, "api-server"),
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(requestMetrics(d.c.Metrics))

	r.Post("/webhook", s.handleWebhook)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		d.c.Metrics.Handler(func() { d.c.Workflow.Status(r.Context()) }).ServeHTTP(w, r)
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(cfg.Paths.APIToken))
		r.Get("/status", s.handleStatus)
		r.Get("/queue", s.handleQueue)
		r.Get("/queue/stuck", s.handleStuck)
		r.Post("/upload/drain", s.handleDrain)
	})
	s.router = r

	s.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *apiServer) start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen on %s: %w", bind, err)
	}
	s.listener = listener
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
	}
}

func (s *apiServer) address() string {
	if s.listener == nil {
		return strings.TrimSpace(s.cfg.Paths.APIBind)
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "event body too large")
		return
	}
	event, err := live.ParseEvent(body)
	if err != nil {
		s.logger.Debug("rejected recorder event", logging.Error(err))
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.daemon.c.Workflow.Submit(event); err != nil {
		if errors.Is(err, workflow.ErrNotRunning) {
			s.writeError(w, http.StatusServiceUnavailable, "daemon is shutting down")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.EventResponse{Status: "accepted"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.statusPayload(r.Context()))
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := s.daemon.c.Queue.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: api.FromEntries(entries)})
}

func (s *apiServer) handleStuck(w http.ResponseWriter, r *http.Request) {
	minAttempts := s.cfg.Notifications.StuckAfterAttempts
	if raw := strings.TrimSpace(r.URL.Query().Get("min_attempts")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "min_attempts must be a positive integer")
			return
		}
		minAttempts = parsed
	}
	if minAttempts < 1 {
		minAttempts = 1
	}
	entries, err := s.daemon.c.Queue.Stuck(r.Context(), minAttempts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: api.FromEntries(entries)})
}

func (s *apiServer) handleDrain(w http.ResponseWriter, r *http.Request) {
	wf := s.daemon.c.Workflow
	if wf.DrainRunning() {
		s.writeError(w, http.StatusConflict, uploadqueue.ErrDrainInProgress.Error())
		return
	}
	err := wf.TriggerDrain()
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, api.DrainResponse{Status: "draining"})
	case errors.Is(err, uploadqueue.ErrDrainInProgress):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, workflow.ErrUploadDisabled), errors.Is(err, workflow.ErrNotRunning):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
