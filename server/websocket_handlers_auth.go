package server

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/mjohnson139/MobileApi-sub000/protocol"
)

// handleAuthLogin authenticates the session. On success the identity and
// scope set are cached on the Session; later messages on this connection are
// trusted without re-verifying the token.
func (ws *WebSocketServer) handleAuthLogin(session *Session, msg *protocol.Message) error {
	var payload protocol.AuthLoginPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
			Success: false,
			Error: &protocol.Error{
				Code:    protocol.ErrorCodeInvalidRequest,
				Message: "Malformed auth_login payload",
			},
		})
	}

	scopes, err := ws.parent.opts.Credentials.Authenticate(payload.Username, payload.Password)
	if err != nil {
		ws.logger.Info("websocket login rejected",
			zap.String("conn_id", session.ConnID),
			zap.String("username", payload.Username))
		return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
			Success: false,
			Error:   protocolError(err),
		})
	}

	token, claims, err := ws.parent.opts.Tokens.Issue(payload.Username, scopes)
	if err != nil {
		ws.logger.Error("websocket token issue failed", zap.Error(err))
		return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
			Success: false,
			Error:   protocolError(err),
		})
	}

	session.Authenticate(claims.Username, claims.Scopes)
	ws.logger.Info("websocket login succeeded",
		zap.String("conn_id", session.ConnID),
		zap.String("username", claims.Username))

	data, err := json.Marshal(protocol.AuthLoginData{
		Token:     token,
		ExpiresIn: int64(claims.ExpiresAt.Sub(claims.IssuedAt).Seconds()),
		TokenType: "Bearer",
		Scope:     scopeStrings(claims.Scopes),
	})
	if err != nil {
		return err
	}

	return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
		Success: true,
		Data:    data,
	})
}
