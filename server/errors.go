package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mjohnson139/MobileApi-sub000/auth"
	"github.com/mjohnson139/MobileApi-sub000/command"
	"github.com/mjohnson139/MobileApi-sub000/protocol"
)

// ErrRateLimited is returned by the gate when the client exceeded its
// request budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// errorEnvelope is the standard HTTP error body.
type errorEnvelope struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// classify maps a core error onto the wire taxonomy: an error code shared by
// both transports and the HTTP status it implies. Unknown errors are
// internal and surface with no detail.
func classify(err error) (protocol.ErrorCode, int, string) {
	switch {
	case errors.Is(err, auth.ErrNoToken):
		return protocol.ErrorCodeUnauthorized, http.StatusUnauthorized, "No token provided"
	case errors.Is(err, auth.ErrTokenExpired):
		return protocol.ErrorCodeUnauthorized, http.StatusUnauthorized, "Token expired"
	case errors.Is(err, auth.ErrInvalidToken):
		return protocol.ErrorCodeUnauthorized, http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return protocol.ErrorCodeUnauthorized, http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, auth.ErrInsufficientScope):
		return protocol.ErrorCodeForbidden, http.StatusForbidden, "Insufficient scope"
	case errors.Is(err, ErrRateLimited):
		return protocol.ErrorCodeRateLimitExceeded, http.StatusTooManyRequests, "Rate limit exceeded"
	case errors.Is(err, command.ErrInvalidPath),
		errors.Is(err, command.ErrPathTooDeep),
		errors.Is(err, command.ErrUnknownActionType),
		errors.Is(err, command.ErrInvalidTarget),
		errors.Is(err, command.ErrInvalidPayload):
		return protocol.ErrorCodeValidationError, http.StatusBadRequest, err.Error()
	default:
		return protocol.ErrorCodeServerError, http.StatusInternalServerError, "Internal server error"
	}
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes the standard HTTP error envelope for err.
func writeError(w http.ResponseWriter, err error) {
	code, status, message := classify(err)

	// The 401 body keeps the app's historical wording.
	if status == http.StatusUnauthorized {
		writeJSON(w, status, errorEnvelope{
			Error:     "Access denied",
			Message:   message,
			Timestamp: time.Now(),
		})
		return
	}

	writeJSON(w, status, errorEnvelope{
		Error:     string(code),
		Message:   message,
		Timestamp: time.Now(),
	})
}

// protocolError builds the WebSocket result error for err.
func protocolError(err error) *protocol.Error {
	code, _, message := classify(err)
	return &protocol.Error{Code: code, Message: message}
}
