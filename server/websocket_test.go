package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjohnson139/MobileApi-sub000/protocol"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, id string, msgType protocol.MessageType, payload any) {
	t.Helper()

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = data
	}
	require.NoError(t, conn.WriteJSON(protocol.Message{
		ID:        id,
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   raw,
	}))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	return msg
}

func readResult(t *testing.T, conn *websocket.Conn, wantType protocol.MessageType) (protocol.ResultPayload, *protocol.Message) {
	t.Helper()

	msg := readEnvelope(t, conn)
	require.Equal(t, wantType, msg.Type)

	var result protocol.ResultPayload
	require.NoError(t, protocol.ParsePayload(msg, &result))
	return result, msg
}

func wsLogin(t *testing.T, conn *websocket.Conn, username, password string) {
	t.Helper()

	sendEnvelope(t, conn, "login-1", protocol.MessageTypeAuthLogin, protocol.AuthLoginPayload{
		Username: username,
		Password: password,
	})
	result, _ := readResult(t, conn, protocol.ResponseType(protocol.MessageTypeAuthLogin))
	require.True(t, result.Success)
}

func TestWebSocketLoginFlow(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	sendEnvelope(t, conn, "req-1", protocol.MessageTypeAuthLogin, protocol.AuthLoginPayload{
		Username: "api_user",
		Password: "mobile_api_password",
	})

	result, msg := readResult(t, conn, protocol.ResponseType(protocol.MessageTypeAuthLogin))
	assert.Equal(t, "req-1", msg.RequestID)
	require.True(t, result.Success)
	require.Nil(t, result.Error)

	var data protocol.AuthLoginData
	require.NoError(t, json.Unmarshal(result.Data, &data))
	assert.NotEmpty(t, data.Token)
	assert.Equal(t, "Bearer", data.TokenType)
	assert.ElementsMatch(t, []string{"read", "write"}, data.Scope)
}

func TestWebSocketLoginBadPassword(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	sendEnvelope(t, conn, "req-1", protocol.MessageTypeAuthLogin, protocol.AuthLoginPayload{
		Username: "api_user",
		Password: "wrong_password",
	})

	result, _ := readResult(t, conn, protocol.ResponseType(protocol.MessageTypeAuthLogin))
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, protocol.ErrorCodeUnauthorized, result.Error.Code)
}

func TestWebSocketRejectsUnauthenticatedCommands(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	sendEnvelope(t, conn, "req-1", protocol.MessageTypeGetState, nil)

	result, _ := readResult(t, conn, protocol.ResponseType(protocol.MessageTypeGetState))
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, protocol.ErrorCodeUnauthorized, result.Error.Code)
	assert.Equal(t, "Not authenticated", result.Error.Message)
}

func TestWebSocketScopeEnforcement(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)
	wsLogin(t, conn, "qa_viewer", "viewer_password_1")

	// Reads pass.
	sendEnvelope(t, conn, "req-1", protocol.MessageTypeGetState, nil)
	result, _ := readResult(t, conn, protocol.ResponseType(protocol.MessageTypeGetState))
	require.True(t, result.Success)

	// Writes do not.
	sendEnvelope(t, conn, "req-2", protocol.MessageTypeUpdateState, protocol.UpdateStatePayload{
		Path:  "ui.screens.current",
		Value: "settings",
	})
	result, _ = readResult(t, conn, protocol.ResponseType(protocol.MessageTypeUpdateState))
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, protocol.ErrorCodeForbidden, result.Error.Code)
}

func TestWebSocketPingPong(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	sendEnvelope(t, conn, "ping-1", protocol.MessageTypePing, nil)

	msg := readEnvelope(t, conn)
	assert.Equal(t, protocol.MessageTypePong, msg.Type)
	assert.Equal(t, "ping-1", msg.RequestID)
}

func TestWebSocketGetState(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)
	wsLogin(t, conn, "api_user", "mobile_api_password")

	sendEnvelope(t, conn, "req-1", protocol.MessageTypeGetState, nil)
	result, _ := readResult(t, conn, protocol.ResponseType(protocol.MessageTypeGetState))
	require.True(t, result.Success)

	var data struct {
		UIState     map[string]any `json:"ui_state"`
		DeviceState map[string]any `json:"device_state"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &data))
	assert.Contains(t, data.UIState, "controls")
	assert.Contains(t, data.DeviceState, "front_door")

	// Path-scoped read.
	sendEnvelope(t, conn, "req-2", protocol.MessageTypeGetState, protocol.GetStatePayload{
		Path: "ui.screens.current",
	})
	result, _ = readResult(t, conn, protocol.ResponseType(protocol.MessageTypeGetState))
	require.True(t, result.Success)

	var node protocol.UpdatedState
	require.NoError(t, json.Unmarshal(result.Data, &node))
	assert.Equal(t, "home", node.Value)
}

func TestWebSocketExecuteAction(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dialWS(t, ts)
	wsLogin(t, conn, "api_user", "mobile_api_password")

	sendEnvelope(t, conn, "req-1", protocol.MessageTypeExecuteAction, protocol.ExecuteActionPayload{
		ActionType: "toggle",
		Target:     "bedroom_light",
	})
	result, _ := readResult(t, conn, protocol.ResponseType(protocol.MessageTypeExecuteAction))
	require.True(t, result.Success)

	power, ok := srv.opts.Store.Read("devices.bedroom_light.state.power")
	require.True(t, ok)
	assert.Equal(t, "on", power)
}

func TestWebSocketUnknownMessageType(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	sendEnvelope(t, conn, "req-1", protocol.MessageType("bogus"), nil)

	result, _ := readResult(t, conn, protocol.MessageType("bogus_response"))
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, protocol.ErrorCodeInvalidRequest, result.Error.Code)
}

func TestWebSocketMalformedMessage(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	result, _ := readResult(t, conn, protocol.MessageType("message_response"))
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, protocol.ErrorCodeInvalidRequest, result.Error.Code)
}

// TestBroadcastSkipsOriginator verifies that a state change made over one
// WebSocket session is pushed to the other authenticated sessions but never
// echoed back to the issuer.
func TestBroadcastSkipsOriginator(t *testing.T) {
	_, ts := newTestServer(t)

	connA := dialWS(t, ts)
	connB := dialWS(t, ts)
	wsLogin(t, connA, "api_user", "mobile_api_password")
	wsLogin(t, connB, "qa_viewer", "viewer_password_1")

	sendEnvelope(t, connA, "req-1", protocol.MessageTypeUpdateState, protocol.UpdateStatePayload{
		Path:  "ui.controls.living_room_light.state",
		Value: "on",
	})

	// The issuer gets its response and nothing else: the next message after
	// a follow-up ping must be the pong.
	result, _ := readResult(t, connA, protocol.ResponseType(protocol.MessageTypeUpdateState))
	require.True(t, result.Success)

	sendEnvelope(t, connA, "ping-1", protocol.MessageTypePing, nil)
	msg := readEnvelope(t, connA)
	assert.Equal(t, protocol.MessageTypePong, msg.Type, "originator must not receive its own state_changed echo")

	// The other session gets the push.
	msg = readEnvelope(t, connB)
	require.Equal(t, protocol.MessageTypeStateChanged, msg.Type)

	var change protocol.StateChangedPayload
	require.NoError(t, protocol.ParsePayload(msg, &change))
	assert.Equal(t, "ui.controls.living_room_light.state", change.Path)
	assert.Equal(t, "on", change.Value)
	assert.Equal(t, "api", change.Source)
}

// TestHTTPWriteReachesWebSocketSessions verifies that changes made over the
// stateless HTTP gateway are pushed to every authenticated WebSocket session.
func TestHTTPWriteReachesWebSocketSessions(t *testing.T) {
	_, ts := newTestServer(t)

	conn := dialWS(t, ts)
	wsLogin(t, conn, "qa_viewer", "viewer_password_1")

	token := loginToken(t, ts, "api_user", "mobile_api_password")
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/state", token, map[string]any{
		"path":  "ui.screens.current",
		"value": "settings",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	msg := readEnvelope(t, conn)
	require.Equal(t, protocol.MessageTypeStateChanged, msg.Type)

	var change protocol.StateChangedPayload
	require.NoError(t, protocol.ParsePayload(msg, &change))
	assert.Equal(t, "ui.screens.current", change.Path)
	assert.Equal(t, "settings", change.Value)
}

// TestUnauthenticatedSessionsGetNoBroadcast verifies a connected but not
// logged-in session is excluded from the push set.
func TestUnauthenticatedSessionsGetNoBroadcast(t *testing.T) {
	_, ts := newTestServer(t)

	silent := dialWS(t, ts)
	writer := dialWS(t, ts)
	wsLogin(t, writer, "api_user", "mobile_api_password")

	sendEnvelope(t, writer, "req-1", protocol.MessageTypeUpdateState, protocol.UpdateStatePayload{
		Path:  "ui.screens.current",
		Value: "settings",
	})
	result, _ := readResult(t, writer, protocol.ResponseType(protocol.MessageTypeUpdateState))
	require.True(t, result.Success)

	// A ping round-trip proves nothing was queued ahead of the pong.
	sendEnvelope(t, silent, "ping-1", protocol.MessageTypePing, nil)
	msg := readEnvelope(t, silent)
	assert.Equal(t, protocol.MessageTypePong, msg.Type)
}

func TestMetricsPushToAuthenticatedSessions(t *testing.T) {
	_, ts := newTestServer(t, func(o *Options) {
		o.MetricsPushInterval = 50 * time.Millisecond
	})

	conn := dialWS(t, ts)
	sendEnvelope(t, conn, "login-1", protocol.MessageTypeAuthLogin, protocol.AuthLoginPayload{
		Username: "api_user",
		Password: "mobile_api_password",
	})

	// The push may interleave with the login response; scan for it.
	for i := 0; i < 5; i++ {
		msg := readEnvelope(t, conn)
		if msg.Type != protocol.MessageTypeMetricsUpdate {
			continue
		}
		var snapshot struct {
			Timestamp time.Time `json:"timestamp"`
		}
		require.NoError(t, protocol.ParsePayload(msg, &snapshot))
		require.False(t, snapshot.Timestamp.IsZero())
		return
	}
	t.Fatal("no metrics_update received")
}
