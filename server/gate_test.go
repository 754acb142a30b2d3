package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjohnson139/MobileApi-sub000/auth"
)

func newTestGate(t *testing.T) (*authGate, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService([]byte(testSecret), time.Hour)
	require.NoError(t, err)
	return &authGate{tokens: tokens}, tokens
}

func TestGateCheck(t *testing.T) {
	gate, tokens := newTestGate(t)

	token, _, err := tokens.Issue("api_user", []auth.Scope{auth.ScopeRead})
	require.NoError(t, err)

	claims, err := gate.check(token, auth.ScopeRead)
	require.NoError(t, err)
	assert.Equal(t, "api_user", claims.Username)

	_, err = gate.check("", auth.ScopeRead)
	assert.ErrorIs(t, err, auth.ErrNoToken)

	_, err = gate.check("garbage", auth.ScopeRead)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = gate.check(token, auth.ScopeWrite)
	assert.ErrorIs(t, err, auth.ErrInsufficientScope)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"Bearer   spaced  ", "spaced"},
		{"bearer abc", ""},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
	}

	for _, tt := range tests {
		r, err := http.NewRequest(http.MethodGet, "/api/state", nil)
		require.NoError(t, err)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, bearerToken(r), "header %q", tt.header)
	}
}

func TestSessionScopeCaching(t *testing.T) {
	s := &Session{ConnID: "c1", ConnectedAt: time.Now()}

	assert.False(t, s.Authenticated())
	assert.False(t, s.HasScope(auth.ScopeRead))

	s.Authenticate("qa_viewer", []auth.Scope{auth.ScopeRead})
	assert.True(t, s.Authenticated())
	assert.Equal(t, "qa_viewer", s.Username())
	assert.True(t, s.HasScope(auth.ScopeRead))
	assert.False(t, s.HasScope(auth.ScopeWrite))
}

func TestSessionRegistry(t *testing.T) {
	reg := newSessionRegistry()

	a := &Session{ConnID: "a"}
	b := &Session{ConnID: "b"}
	reg.add(a)
	reg.add(b)
	require.Equal(t, 2, reg.count())

	b.Authenticate("api_user", []auth.Scope{auth.ScopeRead, auth.ScopeWrite})
	authed := reg.authenticated()
	require.Len(t, authed, 1)
	assert.Equal(t, "b", authed[0].ConnID)

	reg.remove("b")
	assert.Empty(t, reg.authenticated())

	_, ok := reg.get("a")
	assert.True(t, ok)
}
