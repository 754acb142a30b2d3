package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mjohnson139/MobileApi-sub000/command"
	"github.com/mjohnson139/MobileApi-sub000/protocol"
)

// httpOrigin tags store writes made over HTTP. It never collides with a
// WebSocket connection id, so HTTP-initiated changes broadcast to every
// authenticated session.
const httpOrigin = "http"

type stateResponse struct {
	UIState     any       `json:"ui_state"`
	DeviceState any       `json:"device_state"`
	ServerState any       `json:"server_state"`
	Timestamp   time.Time `json:"timestamp"`
}

type pathValueResponse struct {
	Path      string    `json:"path"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// handleGetState returns the whole tree, or the node at ?path=.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	if path := r.URL.Query().Get("path"); path != "" {
		value, _ := s.opts.Store.Read(path)
		writeJSON(w, http.StatusOK, pathValueResponse{
			Path:      path,
			Value:     value,
			Timestamp: time.Now(),
		})
		return
	}

	snapshot := s.opts.Store.Snapshot()
	writeJSON(w, http.StatusOK, stateResponse{
		UIState:     snapshot["ui"],
		DeviceState: snapshot["devices"],
		ServerState: snapshot["server"],
		Timestamp:   time.Now(),
	})
}

type updateStateResponse struct {
	Success bool                  `json:"success"`
	Updated protocol.UpdatedState `json:"updated"`
}

// handleUpdateState applies a single state patch.
func (s *Server) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	var patch command.StatePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{
			Error:     "INVALID_REQUEST",
			Message:   "Malformed request body",
			Timestamp: time.Now(),
		})
		return
	}

	result, err := s.opts.Dispatcher.ApplyPatch(patch, httpOrigin)
	if err != nil {
		writeError(w, err)
		return
	}
	s.observeStateWrites(len(result.Changes))

	writeJSON(w, http.StatusOK, updateStateResponse{
		Success: true,
		Updated: protocol.UpdatedState{
			Path:      patch.Path,
			Value:     patch.Value,
			Timestamp: result.Timestamp,
		},
	})
}

type actionRequest struct {
	Target  string         `json:"target,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type actionResponse struct {
	Success bool                    `json:"success"`
	Action  protocol.ExecutedAction `json:"action"`
}

// handleAction executes a named action; the action type rides the URL.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	actionType := chi.URLParam(r, "type")

	var req actionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorEnvelope{
				Error:     "INVALID_REQUEST",
				Message:   "Malformed request body",
				Timestamp: time.Now(),
			})
			return
		}
	}

	result, err := s.opts.Dispatcher.ExecuteAction(command.Action{
		Type:    actionType,
		Target:  req.Target,
		Payload: req.Payload,
	}, httpOrigin)
	if err != nil {
		writeError(w, err)
		return
	}
	s.observeStateWrites(len(result.Changes))

	s.logger.Info("action executed",
		zap.String("type", actionType),
		zap.String("target", req.Target),
		zap.Int("changes", len(result.Changes)))

	writeJSON(w, http.StatusOK, actionResponse{
		Success: true,
		Action: protocol.ExecutedAction{
			Type:       actionType,
			Target:     req.Target,
			Payload:    req.Payload,
			ExecutedAt: result.Timestamp,
		},
	})
}

// observeStateWrites feeds the Prometheus state-update counter.
func (s *Server) observeStateWrites(n int) {
	for i := 0; i < n; i++ {
		s.opts.Metrics.ObserveStateUpdate()
	}
}
