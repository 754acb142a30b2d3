// Package protocol defines the WebSocket wire format shared by the server
// and its clients: a message envelope, the message-type and error-code
// vocabularies, and one payload struct per message type.
package protocol

import (
	"encoding/json"
	"time"
)

// MessageType defines the type of message being sent between client and server.
type MessageType string

const (
	// Client -> Server message types
	MessageTypeAuthLogin         MessageType = "auth_login"
	MessageTypeGetState          MessageType = "get_state"
	MessageTypeUpdateState       MessageType = "update_state"
	MessageTypeExecuteAction     MessageType = "execute_action"
	MessageTypeCaptureScreenshot MessageType = "capture_screenshot"
	MessageTypeGetHealth         MessageType = "get_health"
	MessageTypeGetMetrics        MessageType = "get_metrics"
	MessageTypePing              MessageType = "ping"

	// Server -> Client message types
	MessageTypePong          MessageType = "pong"
	MessageTypeStateChanged  MessageType = "state_changed"
	MessageTypeMetricsUpdate MessageType = "metrics_update"
)

// ResponseType returns the response message type paired with a request type,
// e.g. auth_login -> auth_login_response.
func ResponseType(t MessageType) MessageType {
	return t + "_response"
}

// ErrorCode defines error codes carried in error results. The same
// vocabulary is used by the HTTP error envelope.
type ErrorCode string

const (
	ErrorCodeInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrorCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrorCodeValidationError   ErrorCode = "VALIDATION_ERROR"
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrorCodeServerError       ErrorCode = "SERVER_ERROR"
)

// Message is the envelope for every WebSocket message in both directions.
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Error represents a protocol-level error in a result payload.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ResultPayload is the payload for every *_response message.
type ResultPayload struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// AuthLoginPayload is the payload for the auth_login message.
type AuthLoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthLoginData is the data of a successful auth_login_response.
type AuthLoginData struct {
	Token     string   `json:"token"`
	ExpiresIn int64    `json:"expires_in"`
	TokenType string   `json:"token_type"`
	Scope     []string `json:"scope"`
}

// GetStatePayload is the payload for the get_state message. An empty path
// requests the whole tree.
type GetStatePayload struct {
	Path string `json:"path,omitempty"`
}

// StateData is the data of a get_state_response for the whole tree.
type StateData struct {
	UIState     any       `json:"ui_state"`
	DeviceState any       `json:"device_state"`
	ServerState any       `json:"server_state"`
	Timestamp   time.Time `json:"timestamp"`
}

// UpdateStatePayload is the payload for the update_state message.
type UpdateStatePayload struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// UpdatedState describes the applied write in an update_state_response.
type UpdatedState struct {
	Path      string    `json:"path"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// UpdateStateData is the data of a successful update_state_response.
type UpdateStateData struct {
	Updated UpdatedState `json:"updated"`
}

// ExecuteActionPayload is the payload for the execute_action message.
type ExecuteActionPayload struct {
	ActionType string         `json:"actionType"`
	Target     string         `json:"target,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// ExecutedAction describes the applied action in an execute_action_response.
type ExecutedAction struct {
	Type       string         `json:"type"`
	Target     string         `json:"target,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	ExecutedAt time.Time      `json:"executedAt"`
}

// ExecuteActionData is the data of a successful execute_action_response.
type ExecuteActionData struct {
	Action ExecutedAction `json:"action"`
}

// ScreenshotMetadata carries the dimensions of a captured image.
type ScreenshotMetadata struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Size   int `json:"size"`
}

// ScreenshotData is the data of a capture_screenshot_response.
type ScreenshotData struct {
	ImageData  string             `json:"imageData"`
	Format     string             `json:"format"`
	CapturedAt time.Time          `json:"capturedAt"`
	Metadata   ScreenshotMetadata `json:"metadata"`
}

// ServerInfo identifies the serving process in health responses.
type ServerInfo struct {
	Port    int    `json:"port"`
	Version string `json:"version"`
}

// HealthData is the data of a get_health_response and the GET /health body.
type HealthData struct {
	Status    string     `json:"status"`
	Uptime    float64    `json:"uptime"`
	Timestamp time.Time  `json:"timestamp"`
	Server    ServerInfo `json:"server"`
}

// StateChangedPayload is the payload of the server-pushed state_changed
// message, sent to every authenticated session except the originator.
type StateChangedPayload struct {
	Path      string    `json:"path"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// CreateMessage builds and marshals an envelope with the given type and
// payload. requestID is echoed for responses and empty for server pushes.
func CreateMessage(msgType MessageType, payload any, requestID string) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	msg := Message{
		Type:      msgType,
		Timestamp: time.Now(),
		RequestID: requestID,
		Payload:   raw,
	}
	return json.Marshal(msg)
}

// ParseMessage parses a JSON message into a Message struct.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParsePayload parses the payload of a message into the given struct.
func ParsePayload(msg *Message, payload any) error {
	if len(msg.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(msg.Payload, payload)
}
