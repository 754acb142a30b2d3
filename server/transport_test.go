package server

import (
	"net/http"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// TestPingPeriodLessThanPongWait verifies the heartbeat invariant: a healthy
// connection must be pinged before its read deadline can expire.
func TestPingPeriodLessThanPongWait(t *testing.T) {
	if pingPeriod >= pongWait {
		t.Errorf("pingPeriod (%v) must be less than pongWait (%v)", pingPeriod, pongWait)
	}
}

func TestWriteWaitPositive(t *testing.T) {
	if writeWait <= 0 {
		t.Errorf("writeWait must be positive, got %v", writeWait)
	}
}

func TestSendMessageToUnknownClient(t *testing.T) {
	transport := NewDefaultWebSocketTransport(zap.NewNop(), "*")

	err := transport.SendMessage("no-such-conn", []byte("hello"))
	if err == nil {
		t.Fatal("SendMessage to an unknown client should error")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error should mention 'not found', got: %v", err)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name          string
		allowedOrigin string
		requestOrigin string
		want          bool
	}{
		{"wildcard accepts anything", "*", "http://evil.example", true},
		{"exact match accepted", "http://app.example", "http://app.example", true},
		{"mismatch rejected", "http://app.example", "http://evil.example", false},
		{"missing origin accepted", "http://app.example", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewDefaultWebSocketTransport(zap.NewNop(), tt.allowedOrigin)

			r, err := http.NewRequest(http.MethodGet, "/ws", nil)
			if err != nil {
				t.Fatal(err)
			}
			if tt.requestOrigin != "" {
				r.Header.Set("Origin", tt.requestOrigin)
			}

			if got := transport.upgrader.CheckOrigin(r); got != tt.want {
				t.Errorf("CheckOrigin(%q) with allowed %q = %v, want %v",
					tt.requestOrigin, tt.allowedOrigin, got, tt.want)
			}
		})
	}
}

func TestCloseWithNoClients(t *testing.T) {
	transport := NewDefaultWebSocketTransport(zap.NewNop(), "*")
	if err := transport.Close(); err != nil {
		t.Errorf("Close with no clients should not error, got: %v", err)
	}
}

func TestRemoveClientTwice(t *testing.T) {
	transport := NewDefaultWebSocketTransport(zap.NewNop(), "*")

	disconnects := 0
	transport.SetDisconnectHandler(func(connID string) {
		disconnects++
	})

	if transport.removeClient("ghost") {
		t.Error("removing an unknown client should report false")
	}
	if disconnects != 0 {
		t.Errorf("disconnect handler fired %d times for an unknown client", disconnects)
	}
}
