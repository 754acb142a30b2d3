package server

import (
	"time"

	"go.uber.org/zap"

	"github.com/mjohnson139/MobileApi-sub000/auth"
	"github.com/mjohnson139/MobileApi-sub000/protocol"
	"github.com/mjohnson139/MobileApi-sub000/state"
)

// WebSocketServer is the stateful gateway: it tracks a Session per
// connection, caches authentication on it after auth_login, and forwards
// state changes to every other authenticated session.
type WebSocketServer struct {
	parent    *Server
	logger    *zap.Logger
	transport *DefaultWebSocketTransport
	sessions  *sessionRegistry

	unsubscribe func()
	stopCh      chan struct{}
}

func newWebSocketServer(parent *Server) *WebSocketServer {
	ws := &WebSocketServer{
		parent:   parent,
		logger:   parent.logger,
		sessions: newSessionRegistry(),
		stopCh:   make(chan struct{}),
	}

	ws.transport = NewDefaultWebSocketTransport(parent.logger, parent.opts.CORSOrigin)
	ws.transport.SetConnectHandler(ws.handleClientConnect)
	ws.transport.SetMessageHandler(ws.handleClientMessage)
	ws.transport.SetDisconnectHandler(ws.handleClientDisconnect)

	return ws
}

// start subscribes to the store and begins the periodic metrics push.
func (ws *WebSocketServer) start() {
	ws.unsubscribe = ws.parent.opts.Store.Subscribe(ws.broadcastChange)

	if interval := ws.parent.opts.MetricsPushInterval; interval > 0 {
		go ws.pushMetricsLoop(interval)
	}
}

// stop unsubscribes and closes all connections.
func (ws *WebSocketServer) stop() {
	if ws.unsubscribe != nil {
		ws.unsubscribe()
		ws.unsubscribe = nil
	}
	close(ws.stopCh)
	_ = ws.transport.Close()
}

func (ws *WebSocketServer) handleClientConnect(connID string, remoteAddr string) error {
	ws.sessions.add(&Session{
		ConnID:      connID,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
	})
	ws.parent.opts.Metrics.ConnectionOpened()
	ws.logger.Debug("websocket connected",
		zap.String("conn_id", connID),
		zap.String("remote_addr", remoteAddr))
	return nil
}

func (ws *WebSocketServer) handleClientDisconnect(connID string) {
	ws.sessions.remove(connID)
	ws.parent.opts.Metrics.ConnectionClosed()
	ws.logger.Debug("websocket disconnected", zap.String("conn_id", connID))
}

// handleClientMessage parses the envelope and routes by message type.
// Authentication is session-scoped: everything except auth_login, ping and
// get_health requires a prior successful login on this connection.
func (ws *WebSocketServer) handleClientMessage(connID string, message []byte) error {
	msg, err := protocol.ParseMessage(message)
	if err != nil {
		ws.logger.Warn("unparseable websocket message", zap.Error(err), zap.String("conn_id", connID))
		return ws.sendResult(connID, "message", "", protocol.ResultPayload{
			Success: false,
			Error: &protocol.Error{
				Code:    protocol.ErrorCodeInvalidRequest,
				Message: "Malformed message",
			},
		})
	}

	session, ok := ws.sessions.get(connID)
	if !ok {
		// The connection raced its own teardown; nothing to answer.
		return nil
	}

	switch msg.Type {
	case protocol.MessageTypeAuthLogin:
		return ws.handleAuthLogin(session, msg)
	case protocol.MessageTypePing:
		return ws.send(connID, protocol.MessageTypePong, nil, msg.ID)
	case protocol.MessageTypeGetHealth:
		return ws.handleGetHealth(session, msg)
	case protocol.MessageTypeGetState:
		return ws.requireScope(session, msg, auth.ScopeRead, ws.handleGetState)
	case protocol.MessageTypeUpdateState:
		return ws.requireScope(session, msg, auth.ScopeWrite, ws.handleUpdateState)
	case protocol.MessageTypeExecuteAction:
		return ws.requireScope(session, msg, auth.ScopeWrite, ws.handleExecuteAction)
	case protocol.MessageTypeCaptureScreenshot:
		return ws.requireScope(session, msg, auth.ScopeRead, ws.handleCaptureScreenshot)
	case protocol.MessageTypeGetMetrics:
		return ws.requireScope(session, msg, auth.ScopeRead, ws.handleGetMetrics)
	default:
		return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
			Success: false,
			Error: &protocol.Error{
				Code:    protocol.ErrorCodeInvalidRequest,
				Message: "Unknown message type: " + string(msg.Type),
			},
		})
	}
}

// requireScope rejects the message unless the session logged in with the
// required scope. A scope failure leaves the session's authentication state
// untouched.
func (ws *WebSocketServer) requireScope(session *Session, msg *protocol.Message, required auth.Scope, handler func(*Session, *protocol.Message) error) error {
	if !session.Authenticated() {
		return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
			Success: false,
			Error: &protocol.Error{
				Code:    protocol.ErrorCodeUnauthorized,
				Message: "Not authenticated",
			},
		})
	}
	if !session.HasScope(required) {
		return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
			Success: false,
			Error: &protocol.Error{
				Code:    protocol.ErrorCodeForbidden,
				Message: "Insufficient scope",
			},
		})
	}
	return handler(session, msg)
}

// send marshals and delivers one message to one connection.
func (ws *WebSocketServer) send(connID string, msgType protocol.MessageType, payload any, requestID string) error {
	data, err := protocol.CreateMessage(msgType, payload, requestID)
	if err != nil {
		return err
	}
	return ws.transport.SendMessage(connID, data)
}

// sendResult delivers the *_response for a request message.
func (ws *WebSocketServer) sendResult(connID string, reqType protocol.MessageType, requestID string, result protocol.ResultPayload) error {
	return ws.send(connID, protocol.ResponseType(reqType), result, requestID)
}

// broadcastChange forwards a state change to every authenticated session
// except the one that caused it. The change's origin is the originator's
// connection id for WebSocket commands, so the issuer never hears its own
// echo.
func (ws *WebSocketServer) broadcastChange(change state.Change) {
	payload := protocol.StateChangedPayload{
		Path:      change.Path,
		Value:     change.NewValue,
		Timestamp: change.Timestamp,
		Source:    "api",
	}

	for _, session := range ws.sessions.authenticated() {
		if session.ConnID == change.Origin {
			continue
		}
		if err := ws.send(session.ConnID, protocol.MessageTypeStateChanged, payload, ""); err != nil {
			ws.logger.Debug("state_changed push failed",
				zap.Error(err),
				zap.String("conn_id", session.ConnID))
		}
	}
}

// pushMetricsLoop periodically pushes a metrics_update to all authenticated
// sessions.
func (ws *WebSocketServer) pushMetricsLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ws.stopCh:
			return
		case <-ticker.C:
			snapshot := ws.parent.opts.Metrics.Snapshot(ws.parent.opts.Store.UpdateCount())
			for _, session := range ws.sessions.authenticated() {
				if err := ws.send(session.ConnID, protocol.MessageTypeMetricsUpdate, snapshot, ""); err != nil {
					ws.logger.Debug("metrics_update push failed",
						zap.Error(err),
						zap.String("conn_id", session.ConnID))
				}
			}
		}
	}
}
