package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Keepalive timing. pingPeriod must be shorter than pongWait so a healthy
// connection always answers before its read deadline expires.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocketTransport abstracts the network layer of the WebSocket gateway.
// connID identifies one client connection for the lifetime of the socket.
type WebSocketTransport interface {
	// SetMessageHandler sets the handler invoked for each inbound message.
	SetMessageHandler(handler func(connID string, message []byte) error)

	// SetConnectHandler sets the handler invoked when a client connects.
	SetConnectHandler(handler func(connID string, remoteAddr string) error)

	// SetDisconnectHandler sets the handler invoked when a client disconnects.
	SetDisconnectHandler(handler func(connID string))

	// SendMessage sends a message to a specific client.
	SendMessage(connID string, message []byte) error

	// Close tears down all live connections.
	Close() error
}

// clientConnection wraps a WebSocket connection with a mutex for safe
// concurrent writes.
type clientConnection struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

// DefaultWebSocketTransport is the gorilla/websocket implementation of
// WebSocketTransport. It is an http.Handler: mount it on the upgrade route.
type DefaultWebSocketTransport struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clientsMutex sync.RWMutex
	clients      map[string]*clientConnection

	messageHandler    func(connID string, message []byte) error
	connectHandler    func(connID string, remoteAddr string) error
	disconnectHandler func(connID string)
}

// NewDefaultWebSocketTransport creates a transport. allowedOrigin of "*"
// accepts any origin; anything else must match the Origin header exactly.
func NewDefaultWebSocketTransport(logger *zap.Logger, allowedOrigin string) *DefaultWebSocketTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultWebSocketTransport{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
		clients: make(map[string]*clientConnection),
	}
}

// SetMessageHandler sets the handler invoked for each inbound message.
func (t *DefaultWebSocketTransport) SetMessageHandler(handler func(connID string, message []byte) error) {
	t.messageHandler = handler
}

// SetConnectHandler sets the handler invoked when a client connects.
func (t *DefaultWebSocketTransport) SetConnectHandler(handler func(connID string, remoteAddr string) error) {
	t.connectHandler = handler
}

// SetDisconnectHandler sets the handler invoked when a client disconnects.
func (t *DefaultWebSocketTransport) SetDisconnectHandler(handler func(connID string)) {
	t.disconnectHandler = handler
}

// isConnectionClosedError checks if the error indicates a closed connection.
func isConnectionClosedError(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) ||
		strings.Contains(err.Error(), "close sent") ||
		strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// removeClient removes a client and fires the disconnect handler. Returns
// false if the client was already removed.
func (t *DefaultWebSocketTransport) removeClient(connID string) bool {
	t.clientsMutex.Lock()
	client, exists := t.clients[connID]
	if exists {
		delete(t.clients, connID)
	}
	t.clientsMutex.Unlock()

	if !exists {
		return false
	}

	_ = client.conn.Close()
	if t.disconnectHandler != nil {
		t.disconnectHandler(connID)
	}
	return true
}

// SendMessage sends a message to a specific client.
func (t *DefaultWebSocketTransport) SendMessage(connID string, message []byte) error {
	t.clientsMutex.RLock()
	client, exists := t.clients[connID]
	t.clientsMutex.RUnlock()

	if !exists {
		return fmt.Errorf("client with ID %s not found", connID)
	}

	client.mutex.Lock()
	defer client.mutex.Unlock()

	_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if isConnectionClosedError(err) {
			go t.removeClient(connID)
		}
		return fmt.Errorf("failed to send message to client %s: %w", connID, err)
	}
	return nil
}

// Close tears down every live connection.
func (t *DefaultWebSocketTransport) Close() error {
	t.clientsMutex.Lock()
	ids := make([]string, 0, len(t.clients))
	for connID := range t.clients {
		ids = append(ids, connID)
	}
	t.clientsMutex.Unlock()

	for _, connID := range ids {
		t.removeClient(connID)
	}
	return nil
}

// ServeHTTP upgrades the request and runs the connection's read loop.
func (t *DefaultWebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Error("websocket upgrade failed",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	connID := uuid.NewString()
	client := &clientConnection{conn: conn}

	t.clientsMutex.Lock()
	t.clients[connID] = client
	t.clientsMutex.Unlock()

	defer t.removeClient(connID)

	if t.connectHandler != nil {
		if err := t.connectHandler(connID, r.RemoteAddr); err != nil {
			t.logger.Error("connect handler failed", zap.Error(err), zap.String("conn_id", connID))
			return
		}
	}

	// Keepalive: expect a pong (or any read) within pongWait, ping at
	// pingPeriod. A connection that misses pongs fails its read deadline
	// and is torn down.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				client.mutex.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				client.mutex.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				t.logger.Warn("unexpected websocket close", zap.Error(err), zap.String("conn_id", connID))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if t.messageHandler != nil {
			if err := t.messageHandler(connID, message); err != nil {
				if !isConnectionClosedError(err) {
					t.logger.Error("message handler failed", zap.Error(err), zap.String("conn_id", connID))
				}
			}
		}
	}
}
