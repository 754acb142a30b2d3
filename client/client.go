// Package client is a small Go client for the control server's WebSocket
// endpoint. It correlates requests with their responses and delivers
// server-pushed notifications through callbacks. QA harnesses use it to
// drive a device under test without hand-rolling the wire protocol.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mjohnson139/MobileApi-sub000/protocol"
)

// ErrClosed is returned for calls made after Close.
var ErrClosed = errors.New("client closed")

// DefaultRequestTimeout bounds each request/response round trip when the
// caller's context has no deadline of its own.
const DefaultRequestTimeout = 10 * time.Second

// StateChangedHandler receives server-pushed state changes.
type StateChangedHandler func(protocol.StateChangedPayload)

// MetricsHandler receives server-pushed metrics snapshots as raw JSON.
type MetricsHandler func(json.RawMessage)

// Client is one WebSocket connection to the control server. All methods are
// safe for concurrent use.
type Client struct {
	conn   *websocket.Conn
	nextID atomic.Uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.ResultPayload
	closed  bool

	onStateChanged StateChangedHandler
	onMetrics      MetricsHandler

	readDone chan struct{}
}

// Options configures a Dial.
type Options struct {
	// OnStateChanged, when set, is invoked for every state_changed push.
	OnStateChanged StateChangedHandler

	// OnMetrics, when set, is invoked for every metrics_update push.
	OnMetrics MetricsHandler
}

// Dial connects to the server's /ws endpoint. serverURL uses the ws or wss
// scheme, e.g. ws://localhost:8080/ws.
func Dial(ctx context.Context, serverURL string, opts Options) (*Client, error) {
	if _, err := url.Parse(serverURL); err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", serverURL, err)
	}

	c := &Client{
		conn:           conn,
		pending:        make(map[string]chan protocol.ResultPayload),
		onStateChanged: opts.OnStateChanged,
		onMetrics:      opts.OnMetrics,
		readDone:       make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears the connection down. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	err := c.conn.Close()
	<-c.readDone
	return err
}

// readLoop dispatches inbound messages: responses resolve their pending
// request, pushes go to the registered handlers.
func (c *Client) readLoop() {
	defer close(c.readDone)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.closed = true
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
			c.mu.Unlock()
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			continue
		}

		switch msg.Type {
		case protocol.MessageTypeStateChanged:
			if c.onStateChanged != nil {
				var change protocol.StateChangedPayload
				if err := protocol.ParsePayload(msg, &change); err == nil {
					c.onStateChanged(change)
				}
			}
		case protocol.MessageTypeMetricsUpdate:
			if c.onMetrics != nil {
				c.onMetrics(msg.Payload)
			}
		default:
			if msg.RequestID == "" {
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[msg.RequestID]
			if ok {
				delete(c.pending, msg.RequestID)
			}
			c.mu.Unlock()
			if !ok {
				continue
			}

			var result protocol.ResultPayload
			if msg.Type == protocol.MessageTypePong {
				result = protocol.ResultPayload{Success: true}
			} else if err := protocol.ParsePayload(msg, &result); err != nil {
				result = protocol.ResultPayload{Success: false, Error: &protocol.Error{
					Code:    protocol.ErrorCodeServerError,
					Message: "unparseable response payload",
				}}
			}
			ch <- result
			close(ch)
		}
	}
}

// request sends one message and waits for the matching response.
func (c *Client) request(ctx context.Context, msgType protocol.MessageType, payload any) (protocol.ResultPayload, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRequestTimeout)
		defer cancel()
	}

	id := strconv.FormatUint(c.nextID.Add(1), 10)

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return protocol.ResultPayload{}, err
		}
		raw = data
	}
	data, err := json.Marshal(protocol.Message{
		ID:        id,
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   raw,
	})
	if err != nil {
		return protocol.ResultPayload{}, err
	}

	ch := make(chan protocol.ResultPayload, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.ResultPayload{}, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return protocol.ResultPayload{}, err
	}

	select {
	case result, ok := <-ch:
		if !ok {
			return protocol.ResultPayload{}, ErrClosed
		}
		return result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return protocol.ResultPayload{}, ctx.Err()
	}
}

// resultError converts a failed ResultPayload into an error.
func resultError(result protocol.ResultPayload) error {
	if result.Success {
		return nil
	}
	if result.Error != nil {
		return fmt.Errorf("%s: %s", result.Error.Code, result.Error.Message)
	}
	return errors.New("request failed")
}

// Login authenticates this connection. Later calls are trusted with the
// returned scope set until the connection closes.
func (c *Client) Login(ctx context.Context, username, password string) (protocol.AuthLoginData, error) {
	result, err := c.request(ctx, protocol.MessageTypeAuthLogin, protocol.AuthLoginPayload{
		Username: username,
		Password: password,
	})
	if err != nil {
		return protocol.AuthLoginData{}, err
	}
	if err := resultError(result); err != nil {
		return protocol.AuthLoginData{}, err
	}

	var data protocol.AuthLoginData
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return protocol.AuthLoginData{}, err
	}
	return data, nil
}

// GetState fetches the whole state tree.
func (c *Client) GetState(ctx context.Context) (protocol.StateData, error) {
	result, err := c.request(ctx, protocol.MessageTypeGetState, nil)
	if err != nil {
		return protocol.StateData{}, err
	}
	if err := resultError(result); err != nil {
		return protocol.StateData{}, err
	}

	var data protocol.StateData
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return protocol.StateData{}, err
	}
	return data, nil
}

// GetStateAt fetches the node at a dot-separated path.
func (c *Client) GetStateAt(ctx context.Context, path string) (any, error) {
	result, err := c.request(ctx, protocol.MessageTypeGetState, protocol.GetStatePayload{Path: path})
	if err != nil {
		return nil, err
	}
	if err := resultError(result); err != nil {
		return nil, err
	}

	var node protocol.UpdatedState
	if err := json.Unmarshal(result.Data, &node); err != nil {
		return nil, err
	}
	return node.Value, nil
}

// UpdateState writes one value into the state tree.
func (c *Client) UpdateState(ctx context.Context, path string, value any) error {
	result, err := c.request(ctx, protocol.MessageTypeUpdateState, protocol.UpdateStatePayload{
		Path:  path,
		Value: value,
	})
	if err != nil {
		return err
	}
	return resultError(result)
}

// ExecuteAction runs a named action against a target.
func (c *Client) ExecuteAction(ctx context.Context, actionType, target string, payload map[string]any) error {
	result, err := c.request(ctx, protocol.MessageTypeExecuteAction, protocol.ExecuteActionPayload{
		ActionType: actionType,
		Target:     target,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	return resultError(result)
}

// CaptureScreenshot requests a screen capture from the server.
func (c *Client) CaptureScreenshot(ctx context.Context) (protocol.ScreenshotData, error) {
	result, err := c.request(ctx, protocol.MessageTypeCaptureScreenshot, nil)
	if err != nil {
		return protocol.ScreenshotData{}, err
	}
	if err := resultError(result); err != nil {
		return protocol.ScreenshotData{}, err
	}

	var data protocol.ScreenshotData
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return protocol.ScreenshotData{}, err
	}
	return data, nil
}

// Ping round-trips a protocol-level ping.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, protocol.MessageTypePing, nil)
	return err
}
