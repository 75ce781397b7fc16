package webui

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/alantheprice/sitebuilder/pkg/events"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	writeWait  = 10 * time.Second
)

// SafeConn wraps a WebSocket connection with a write mutex and panic
// recovery. gorilla connections support one concurrent writer.
type SafeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
	logger  *zap.Logger
}

// NewSafeConn creates a new safe connection wrapper
func NewSafeConn(conn *websocket.Conn, logger *zap.Logger) *SafeConn {
	return &SafeConn{conn: conn, logger: logger}
}

// WriteJSON safely writes JSON to the WebSocket connection
func (sc *SafeConn) WriteJSON(v interface{}) (err error) {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	if sc.closed {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			sc.logger.Error("websocket write panic recovered", zap.Any("panic", r))
			sc.closed = true
			err = websocket.ErrCloseSent
		}
	}()

	sc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return sc.conn.WriteJSON(v)
}

// Ping sends a control ping frame.
func (sc *SafeConn) Ping() error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	if sc.closed {
		return websocket.ErrCloseSent
	}
	return sc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close closes the underlying connection
func (sc *SafeConn) Close() error {
	sc.writeMu.Lock()
	sc.closed = true
	sc.writeMu.Unlock()
	return sc.conn.Close()
}

// Underlying returns the underlying websocket.Conn for read operations
func (sc *SafeConn) Underlying() *websocket.Conn {
	return sc.conn
}

// handlePreviewWebSocket pushes preview_updated events only.
func (s *Server) handlePreviewWebSocket(w http.ResponseWriter, r *http.Request) {
	s.serveWebSocket(w, r, "preview", events.EventTypePreviewUpdated)
}

// handleEventsWebSocket pushes every bus event.
func (s *Server) handleEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	s.serveWebSocket(w, r, "events")
}

// serveWebSocket upgrades the request and forwards bus events of the given
// types until the client goes away or the server shuts down. No types
// forwards everything.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request, channel string, types ...string) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("websocket handler panic", zap.Any("panic", rec))
		}
	}()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	safeConn := NewSafeConn(conn, s.logger)
	defer safeConn.Close()

	sessionID := "ws_" + uuid.NewString()
	s.connections.Store(conn, &ConnectionInfo{
		SessionID:   sessionID,
		Channel:     channel,
		ConnectedAt: time.Now(),
	})
	defer s.connections.Delete(conn)

	log := s.logger.With(zap.String("session", sessionID), zap.String("channel", channel))
	log.Debug("websocket client connected")

	// Subscribe before announcing the connection so a client that reacts to
	// connection_status cannot miss the next event.
	sub := s.opts.Events.Subscribe(sessionID, types...)
	defer sub.Close()

	safeConn.WriteJSON(map[string]interface{}{
		"type": "connection_status",
		"data": map[string]interface{}{"connected": true, "session_id": sessionID},
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only drive pong handling and close detection. Any client
	// message extends the deadline too.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(64 * 1024)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("websocket closed", zap.Error(err))
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case <-ticker.C:
			if err := safeConn.Ping(); err != nil {
				log.Debug("websocket ping failed", zap.Error(err))
				return
			}
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if err := safeConn.WriteJSON(event); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}
