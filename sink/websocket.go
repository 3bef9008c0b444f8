package sink

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

// WebSocketSink runs a broadcast server for the live alert feed. Every
// record written to the sink is pushed to all connected clients; a client
// that cannot keep up is disconnected rather than allowed to stall the
// broadcast.
type WebSocketSink struct {
	name   string
	addr   string
	path   string
	logger *slog.Logger

	upgrader websocket.Upgrader
	srv      *http.Server

	mu      sync.RWMutex
	clients map[*websocket.Conn]*wsClient
	running bool
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

const wsWriteTimeout = 5 * time.Second

// NewWebSocketSink creates the alert feed server. Start binds the
// listener.
func NewWebSocketSink(name, addr, path string, logger *slog.Logger) (*WebSocketSink, error) {
	if addr == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "WebSocketSink", "NewWebSocketSink", "addr required")
	}
	if path == "" {
		path = "/ws"
	}
	if logger == nil {
		logger = slog.Default().With("component", "sink-websocket")
	}

	s := &WebSocketSink{
		name:   name,
		addr:   addr,
		path:   path,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the feed is read-only telemetry; any origin may subscribe
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*wsClient),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleConnect)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *WebSocketSink) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &wsClient{conn: conn}
	s.mu.Lock()
	s.clients[conn] = client
	count := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("client connected", "remote", r.RemoteAddr, "clients", count)

	// drain control frames; the feed never expects client data
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.dropClient(conn)
				return
			}
		}
	}()
}

func (s *WebSocketSink) dropClient(conn *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.clients[conn]
	delete(s.clients, conn)
	s.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// Name implements Sink.
func (s *WebSocketSink) Name() string { return s.name }

// Start binds the listener and serves until Stop.
func (s *WebSocketSink) Start(_ context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "WebSocketSink", "Start", "start")
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		s.logger.Info("websocket feed listening", "addr", s.addr, "path", s.path)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("websocket server failed", "error", err)
		}
	}()
	return nil
}

// Write implements Sink. Broadcasting to zero clients succeeds; the feed
// is best-effort and never dead-letters records.
func (s *WebSocketSink) Write(_ context.Context, rec event.Record) error {
	payload, err := rec.Payload()
	if err != nil {
		return err
	}

	s.mu.RLock()
	clients := make([]*wsClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		err := c.conn.WriteMessage(websocket.TextMessage, payload)
		c.writeMu.Unlock()
		if err != nil {
			s.logger.Warn("dropping slow client", "remote", c.conn.RemoteAddr(), "error", err)
			s.dropClient(c.conn)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (s *WebSocketSink) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Stop disconnects all clients and shuts the server down.
func (s *WebSocketSink) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.clients = make(map[*websocket.Conn]*wsClient)
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "WebSocketSink", "Stop", "shutdown")
	}
	return nil
}

// Close implements Sink.
func (s *WebSocketSink) Close() error {
	return s.Stop(5 * time.Second)
}
