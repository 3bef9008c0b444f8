package ingress

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/health"
	"github.com/c360/fieldstream/metric"
	"github.com/c360/fieldstream/validate"
)

// Replayer resubmits a dead-lettered record into the pipeline by ID.
type Replayer interface {
	Replay(ctx context.Context, id string) error
}

// DeviceLister reports the devices currently considered online.
type DeviceLister interface {
	ActiveDevices() []validate.Device
}

// ServerDeps holds runtime dependencies for the HTTP server.
type ServerDeps struct {
	Logger         *slog.Logger
	Core           *metric.CoreMetrics
	Submit         SubmitFunc
	Monitor        *health.Monitor
	MetricsHandler http.Handler
	Replayer       Replayer
	Devices        DeviceLister
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr        string
	ServiceName string
	MaxBodySize int64
}

// Server is the HTTP ingress and control plane: event submission, metrics,
// health, and DLQ replay.
type Server struct {
	cfg     ServerConfig
	adapter *Adapter
	deps    ServerDeps
	logger  *slog.Logger

	srv     *http.Server
	running atomic.Bool
}

const defaultMaxBodySize = 1 << 20 // 1 MiB

// NewServer creates the HTTP server. Start binds the listener.
func NewServer(cfg ServerConfig, deps ServerDeps) (*Server, error) {
	if cfg.Addr == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Server", "NewServer", "addr required")
	}
	if deps.Submit == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Server", "NewServer", "submit func required")
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "fieldstream"
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "ingress-http")
	}

	s := &Server{
		cfg:     cfg,
		adapter: NewAdapter("http"),
		deps:    deps,
		logger:  logger,
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/v1/events", s.handleEvents)
	if s.deps.Replayer != nil {
		r.Post("/v1/dlq/{id}/replay", s.handleReplay)
	}
	if s.deps.Devices != nil {
		r.Get("/v1/devices/active", s.handleActiveDevices)
	}
	if s.deps.Monitor != nil {
		r.Get("/healthz", s.deps.Monitor.Handler(s.cfg.ServiceName).ServeHTTP)
	}
	if s.deps.MetricsHandler != nil {
		r.Get("/metrics", s.deps.MetricsHandler.ServeHTTP)
	}
	return r
}

// handleEvents accepts a single event object or a JSON array of events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if int64(len(body)) > s.cfg.MaxBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	payloads, err := splitBatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON")
		return
	}

	accepted := 0
	var firstErr error
	for _, payload := range payloads {
		if s.deps.Core != nil {
			s.deps.Core.RecordReceived("http")
		}
		msg, err := s.adapter.DecodeEvent(payload)
		if err != nil {
			if s.deps.Core != nil {
				s.deps.Core.RecordInvalid("parse")
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.deps.Submit(msg); err != nil {
			writeError(w, http.StatusServiceUnavailable, "intake full")
			return
		}
		accepted++
	}

	status := http.StatusAccepted
	if accepted == 0 && firstErr != nil {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]any{"accepted": accepted, "received": len(payloads)}
	if firstErr != nil {
		resp["error"] = firstErr.Error()
	}
	_ = json.NewEncoder(w).Encode(resp)
}

type deviceStatus struct {
	DeviceID string    `json:"deviceId"`
	Tenant   string    `json:"tenant,omitempty"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

func (s *Server) handleActiveDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.deps.Devices.ActiveDevices()
	out := make([]deviceStatus, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceStatus{
			DeviceID: d.DeviceID,
			Tenant:   d.Tenant,
			Online:   d.Online,
			LastSeen: d.LastSeen,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"devices": out, "count": len(out)})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Replayer.Replay(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.IsInvalid(err) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// splitBatch returns the individual event documents of a body that is
// either one object or an array of objects.
func splitBatch(body []byte) ([]json.RawMessage, error) {
	trimmed := firstNonSpace(body)
	if trimmed == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}
	if !json.Valid(body) {
		return nil, errors.New("invalid JSON")
	}
	return []json.RawMessage{body}, nil
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Name identifies the component in health reporting.
func (s *Server) Name() string { return "ingress-http" }

// Start binds the listener and serves until Stop.
func (s *Server) Start(_ context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "start")
	}

	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", "error", err)
			if s.deps.Monitor != nil {
				s.deps.Monitor.UpdateUnhealthy(s.Name(), "listener failed")
			}
		}
	}()
	return nil
}

// Stop shuts the server down, waiting up to timeout for open requests.
func (s *Server) Stop(timeout time.Duration) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown")
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }
