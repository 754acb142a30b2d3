package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mjohnson139/MobileApi-sub000/auth"
	"github.com/mjohnson139/MobileApi-sub000/command"
	"github.com/mjohnson139/MobileApi-sub000/protocol"
	"github.com/mjohnson139/MobileApi-sub000/server"
	"github.com/mjohnson139/MobileApi-sub000/state"
)

func newTestEndpoint(t *testing.T) string {
	t.Helper()

	creds, err := auth.NewDemoCredentials(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)

	store := state.NewDemoStore()
	srv := server.New(server.Options{
		Store:       store,
		Dispatcher:  command.NewDispatcher(store, zap.NewNop()),
		Credentials: creds,
		Tokens:      tokens,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestClientRoundTrip(t *testing.T) {
	endpoint := newTestEndpoint(t)
	ctx := context.Background()

	c, err := Dial(ctx, endpoint, Options{})
	require.NoError(t, err)
	defer c.Close()

	login, err := c.Login(ctx, "api_user", "mobile_api_password")
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, "Bearer", login.TokenType)

	require.NoError(t, c.UpdateState(ctx, "ui.screens.current", "settings"))

	value, err := c.GetStateAt(ctx, "ui.screens.current")
	require.NoError(t, err)
	assert.Equal(t, "settings", value)

	tree, err := c.GetState(ctx)
	require.NoError(t, err)
	assert.NotNil(t, tree.DeviceState)

	require.NoError(t, c.Ping(ctx))
}

func TestClientRequiresLogin(t *testing.T) {
	endpoint := newTestEndpoint(t)
	ctx := context.Background()

	c, err := Dial(ctx, endpoint, Options{})
	require.NoError(t, err)
	defer c.Close()

	err = c.UpdateState(ctx, "ui.screens.current", "settings")
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(protocol.ErrorCodeUnauthorized))
}

func TestClientReceivesStateChanges(t *testing.T) {
	endpoint := newTestEndpoint(t)
	ctx := context.Background()

	changes := make(chan protocol.StateChangedPayload, 1)
	watcher, err := Dial(ctx, endpoint, Options{
		OnStateChanged: func(change protocol.StateChangedPayload) {
			select {
			case changes <- change:
			default:
			}
		},
	})
	require.NoError(t, err)
	defer watcher.Close()

	_, err = watcher.Login(ctx, "qa_viewer", "viewer_password_1")
	require.NoError(t, err)

	writer, err := Dial(ctx, endpoint, Options{})
	require.NoError(t, err)
	defer writer.Close()

	_, err = writer.Login(ctx, "api_user", "mobile_api_password")
	require.NoError(t, err)
	require.NoError(t, writer.ExecuteAction(ctx, "update", "front_door", map[string]any{"locked": false}))

	select {
	case change := <-changes:
		assert.Equal(t, "api", change.Source)
		assert.Equal(t, "devices.front_door.state.locked", change.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("no state_changed push received")
	}
}

func TestClientScreenshot(t *testing.T) {
	endpoint := newTestEndpoint(t)
	ctx := context.Background()

	c, err := Dial(ctx, endpoint, Options{})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Login(ctx, "api_user", "mobile_api_password")
	require.NoError(t, err)

	shot, err := c.CaptureScreenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "png", shot.Format)
	assert.NotEmpty(t, shot.ImageData)
}

func TestClientClosePendingRequests(t *testing.T) {
	endpoint := newTestEndpoint(t)

	c, err := Dial(context.Background(), endpoint, Options{})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	err = c.Ping(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
