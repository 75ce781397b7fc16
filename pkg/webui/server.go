// Package webui serves the builder API, the live preview and its push
// channels over HTTP.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alantheprice/sitebuilder/pkg/agent"
	"github.com/alantheprice/sitebuilder/pkg/blocks"
	"github.com/alantheprice/sitebuilder/pkg/docstore"
	"github.com/alantheprice/sitebuilder/pkg/events"
	"github.com/alantheprice/sitebuilder/pkg/preview"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Runner runs one agent request. *agent.Agent implements it.
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error)
}

// Options wires a Server to the rest of the application.
type Options struct {
	Addr            string
	Root            string
	ShutdownTimeout time.Duration

	Agent     Runner
	Publisher *preview.Publisher
	Docs      *docstore.Store // optional
	Events    *events.EventBus
	Logger    *zap.Logger
}

// ConnectionInfo stores metadata about a WebSocket connection
type ConnectionInfo struct {
	SessionID   string
	Channel     string
	ConnectedAt time.Time
}

// Server is the builder web server.
type Server struct {
	opts     Options
	store    *blocks.Store
	logger   *zap.Logger
	upgrader websocket.Upgrader

	server      *http.Server
	connections sync.Map // map[*websocket.Conn]*ConnectionInfo
	isRunning   bool
	mutex       sync.RWMutex
	startTime   time.Time
	queryCount  int
}

// NewServer creates a server. The block store it owns republishes the
// preview after every mutation.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = events.NewEventBus()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
			},
		},
		startTime: time.Now(),
	}
	s.store = blocks.NewStore(s.republish)
	return s
}

// Store returns the document store edited through the API.
func (s *Server) Store() *blocks.Store {
	return s.store
}

func (s *Server) republish(forest []blocks.Block) {
	if s.opts.Publisher == nil {
		return
	}
	if err := s.opts.Publisher.Publish(context.Background(), forest); err != nil {
		s.logger.Error("failed to republish preview", zap.Error(err))
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ai/builder", s.handleBuilder)
	mux.HandleFunc("/api/ws/agent", s.handleAgentStream)

	mux.HandleFunc("/api/document", s.handleDocument)
	mux.HandleFunc("/api/blocks", s.handleAddBlock)
	mux.HandleFunc("/api/blocks/{id}", s.handleBlock)
	mux.HandleFunc("/api/selection", s.handleSelection)
	mux.HandleFunc("/api/documents", s.handleListDocuments)
	mux.HandleFunc("/api/documents/{name}", s.handleDocumentSnapshot)
	mux.HandleFunc("/api/documents/{name}/load", s.handleLoadDocument)

	mux.HandleFunc("/api/files", s.handleAPIFiles)
	mux.HandleFunc("/api/file", s.handleAPIFile)
	mux.HandleFunc("/api/stats", s.handleAPIStats)

	mux.HandleFunc("/api/preview/events", s.handlePreviewEvents)
	mux.HandleFunc("/ws/preview", s.handlePreviewWebSocket)
	mux.HandleFunc("/ws/events", s.handleEventsWebSocket)
	mux.HandleFunc("/preview/", s.handlePreviewFile)
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/preview/", http.StatusFound)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"uptime": time.Since(s.startTime).String(),
		})
	})

	return mux
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mutex.Lock()
	if s.isRunning {
		s.mutex.Unlock()
		ln.Close()
		return fmt.Errorf("web server is already running")
	}
	s.isRunning = true
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := s.server
	s.mutex.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", zap.String("addr", "http://"+ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the web server
func (s *Server) Shutdown() error {
	s.mutex.Lock()
	if !s.isRunning {
		s.mutex.Unlock()
		return nil
	}
	s.isRunning = false
	srv := s.server
	s.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by http.Server.
	s.connections.Range(func(conn, value interface{}) bool {
		if wsConn, ok := conn.(*websocket.Conn); ok {
			wsConn.Close()
		}
		return true
	})

	s.logger.Info("web server shutting down")
	return srv.Shutdown(ctx)
}

// IsRunning returns true if the web server is running
func (s *Server) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.isRunning
}

// countConnections returns the current number of WebSocket connections
func (s *Server) countConnections() int {
	count := 0
	s.connections.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// CheckPortAvailable reports whether addr can be bound.
func CheckPortAvailable(addr string) bool {
	listener, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
