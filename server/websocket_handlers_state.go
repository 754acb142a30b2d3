package server

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/mjohnson139/MobileApi-sub000/command"
	"github.com/mjohnson139/MobileApi-sub000/protocol"
)

// handleGetState answers with the whole tree, or with the node at the
// requested path.
func (ws *WebSocketServer) handleGetState(session *Session, msg *protocol.Message) error {
	var payload protocol.GetStatePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
			Success: false,
			Error: &protocol.Error{
				Code:    protocol.ErrorCodeInvalidRequest,
				Message: "Malformed get_state payload",
			},
		})
	}

	var body any
	if payload.Path != "" {
		value, _ := ws.parent.opts.Store.Read(payload.Path)
		body = protocol.UpdatedState{Path: payload.Path, Value: value, Timestamp: time.Now()}
	} else {
		snapshot := ws.parent.opts.Store.Snapshot()
		body = protocol.StateData{
			UIState:     snapshot["ui"],
			DeviceState: snapshot["devices"],
			ServerState: snapshot["server"],
			Timestamp:   time.Now(),
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
		Success: true,
		Data:    data,
	})
}

// handleUpdateState applies one state patch on behalf of the session. The
// session's connection id rides along as the write origin so the broadcast
// skips the issuer.
func (ws *WebSocketServer) handleUpdateState(session *Session, msg *protocol.Message) error {
	var payload protocol.UpdateStatePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
			Success: false,
			Error: &protocol.Error{
				Code:    protocol.ErrorCodeInvalidRequest,
				Message: "Malformed update_state payload",
			},
		})
	}

	result, err := ws.parent.opts.Dispatcher.ApplyPatch(command.StatePatch{
		Path:  payload.Path,
		Value: payload.Value,
	}, session.ConnID)
	if err != nil {
		return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
			Success: false,
			Error:   protocolError(err),
		})
	}
	ws.parent.observeStateWrites(len(result.Changes))

	data, err := json.Marshal(protocol.UpdateStateData{
		Updated: protocol.UpdatedState{
			Path:      payload.Path,
			Value:     payload.Value,
			Timestamp: result.Timestamp,
		},
	})
	if err != nil {
		return err
	}
	return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
		Success: true,
		Data:    data,
	})
}

// handleExecuteAction runs a named action on behalf of the session.
func (ws *WebSocketServer) handleExecuteAction(session *Session, msg *protocol.Message) error {
	var payload protocol.ExecuteActionPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
			Success: false,
			Error: &protocol.Error{
				Code:    protocol.ErrorCodeInvalidRequest,
				Message: "Malformed execute_action payload",
			},
		})
	}

	result, err := ws.parent.opts.Dispatcher.ExecuteAction(command.Action{
		Type:    payload.ActionType,
		Target:  payload.Target,
		Payload: payload.Payload,
	}, session.ConnID)
	if err != nil {
		return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
			Success: false,
			Error:   protocolError(err),
		})
	}
	ws.parent.observeStateWrites(len(result.Changes))

	ws.logger.Info("websocket action executed",
		zap.String("conn_id", session.ConnID),
		zap.String("type", payload.ActionType),
		zap.String("target", payload.Target),
		zap.Int("changes", len(result.Changes)))

	data, err := json.Marshal(protocol.ExecuteActionData{
		Action: protocol.ExecutedAction{
			Type:       payload.ActionType,
			Target:     payload.Target,
			Payload:    payload.Payload,
			ExecutedAt: result.Timestamp,
		},
	})
	if err != nil {
		return err
	}
	return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
		Success: true,
		Data:    data,
	})
}
