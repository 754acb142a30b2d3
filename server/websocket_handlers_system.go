package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/mjohnson139/MobileApi-sub000/protocol"
)

// handleGetHealth mirrors GET /health; like it, it needs no authentication.
func (ws *WebSocketServer) handleGetHealth(session *Session, msg *protocol.Message) error {
	data, err := json.Marshal(protocol.HealthData{
		Status:    "ok",
		Uptime:    ws.parent.uptime(),
		Timestamp: time.Now(),
		Server: protocol.ServerInfo{
			Port:    ws.parent.opts.Port,
			Version: Version,
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

// handleGetMetrics answers with the JSON aggregate counters.
func (ws *WebSocketServer) handleGetMetrics(session *Session, msg *protocol.Message) error {
	data, err := json.Marshal(ws.parent.opts.Metrics.Snapshot(ws.parent.opts.Store.UpdateCount()))
	if err != nil {
		return err
	}
	return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
		Success: true,
		Data:    data,
	})
}

// handleCaptureScreenshot captures a frame under the request-timeout budget.
// The wait is the only suspension point in message handling; other
// connections keep being served meanwhile.
func (ws *WebSocketServer) handleCaptureScreenshot(session *Session, msg *protocol.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), ws.parent.opts.RequestTimeout)
	defer cancel()

	shot, err := ws.parent.opts.Screens.Capture(ctx)
	if err != nil {
		ws.logger.Error("websocket screenshot capture failed",
			zap.Error(err),
			zap.String("conn_id", session.ConnID))
		return ws.sendResult(session.ConnID, msg.Type, msg.ID, protocol.ResultPayload{
			Success: false,
			Error: &protocol.Error{
				Code:    protocol.ErrorCodeServerError,
				Message: "Screenshot capture failed",
			},
		})
	}

	data, err := json.Marshal(protocol.ScreenshotData{
		ImageData:  base64.StdEncoding.EncodeToString(shot.Data),
		Format:     shot.Format,
		CapturedAt: shot.CapturedAt,
		Metadata: protocol.ScreenshotMetadata{
			Width:  shot.Width,
			Height: shot.Height,
			Size:   len(shot.Data),
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
