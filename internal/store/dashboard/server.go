// Package dashboard serves live sync and progress activity over WebSocket.
//
// The sync manager's events and progress statistics are broadcast to
// connected clients, so a study session can be monitored from a browser
// while the daemon runs.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/freshstart/freshstart/internal/progress"
	storesync "github.com/freshstart/freshstart/internal/store/sync"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeFlush reports a finished flush
	MessageTypeFlush MessageType = "flush"

	// MessageTypeRestore reports a restore from the durable store
	MessageTypeRestore MessageType = "restore"

	// MessageTypeWipe reports a ClearAllData outcome
	MessageTypeWipe MessageType = "wipe"

	// MessageTypeBackup reports a fallback export artifact
	MessageTypeBackup MessageType = "backup"

	// MessageTypeStats carries progress statistics
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StatsFunc returns current progress statistics.
type StatsFunc func() (*progress.Stats, error)

// StatusFunc returns the per-dataset sync status.
type StatusFunc func(ctx context.Context) ([]storesync.DatasetStatus, error)

// Server accepts dashboard clients and fans messages out to them. Each
// client has its own bounded send queue drained by a writer goroutine; a
// client whose queue is full is disconnected rather than slowing the rest.
type Server struct {
	addr     string
	listener net.Listener
	http     *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}

	stats  StatsFunc
	status StatusFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration.
type Config struct {
	// Port to listen on; 0 picks a free port.
	Port int

	// Stats feeds the welcome message and /stats. Optional.
	Stats StatsFunc

	// Status feeds /status. Optional.
	Status StatusFunc

	Logger *log.Logger
}

// Per-client limits.
const (
	clientQueue  = 32
	writeTimeout = 5 * time.Second
)

// NewServer creates a server. A nil config listens on port 8080 without
// stats or status sources.
func NewServer(config *Config) *Server {
	if config == nil {
		config = &Config{Port: 8080}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    fmt.Sprintf(":%d", config.Port),
		clients: make(map[*client]struct{}),
		stats:   config.Stats,
		status:  config.Status,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Serve failed: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for c := range s.clients {
		c.close(websocket.StatusGoingAway, "dashboard stopping")
		delete(s.clients, c)
	}
	s.mu.Unlock()

	var err error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if shutdownErr := s.http.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to shut down dashboard: %w", shutdownErr)
		}
	}
	s.wg.Wait()
	s.logger.Println("Dashboard stopped")
	return err
}

// Broadcast queues msg for every connected client. It never blocks.
func (s *Server) Broadcast(msg Message) {
	if s.ctx.Err() != nil {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("Failed to encode %s message: %v", msg.Type, err)
		return
	}

	s.mu.Lock()
	var dropped []*client
	for c := range s.clients {
		if !c.enqueue(data) {
			dropped = append(dropped, c)
		}
	}
	s.mu.Unlock()

	for _, c := range dropped {
		s.logger.Printf("Client %s is not keeping up, disconnecting", c.remote)
		s.remove(c, websocket.StatusPolicyViolation, "too slow")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	c := newClient(conn, r.RemoteAddr)

	// The welcome goes first in the queue, ahead of any broadcast.
	if data, err := json.Marshal(s.welcome()); err == nil {
		c.enqueue(data)
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		c.close(websocket.StatusGoingAway, "dashboard stopping")
		return
	}
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Printf("Client %s connected (%d total)", c.remote, n)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := c.writeLoop(s.ctx); err != nil {
			s.remove(c, websocket.StatusInternalError, "write failed")
		}
	}()

	// Clients only send close frames and pings; reading processes them and
	// notices disconnects.
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			s.remove(c, websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (s *Server) welcome() Message {
	msg := Message{Type: MessageTypeStats, Timestamp: time.Now()}
	if s.stats == nil {
		return msg
	}
	st, err := s.stats()
	if err != nil {
		s.logger.Printf("Failed to compute stats: %v", err)
		return msg
	}
	msg.Data, _ = json.Marshal(st)
	return msg
}

func (s *Server) remove(c *client, code websocket.StatusCode, reason string) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()
	if !ok {
		return
	}
	c.close(code, reason)
	s.logger.Printf("Client %s disconnected (%d total)", c.remote, n)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, "stats unavailable", http.StatusNotFound)
		return
	}
	st, err := s.stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "status unavailable", http.StatusNotFound)
		return
	}
	st, err := s.status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, rootPage, r.Host)
}

const rootPage = `<!DOCTYPE html>
<html>
<head><title>freshstart</title></head>
<body>
<h1>freshstart</h1>
<p>Live sync events: <code>ws://%s/ws</code></p>
<p><a href="/stats">stats</a> | <a href="/status">datasets</a> | <a href="/health">health</a></p>
</body>
</html>
`

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
