package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func demoTable(t *testing.T) *Credentials {
	t.Helper()
	c, err := NewDemoCredentials(bcrypt.MinCost)
	require.NoError(t, err)
	return c
}

func TestAuthenticateDemoUser(t *testing.T) {
	c := demoTable(t)

	scopes, err := c.Authenticate("api_user", "mobile_api_password")
	require.NoError(t, err)
	assert.True(t, HasScope(scopes, ScopeRead))
	assert.True(t, HasScope(scopes, ScopeWrite))

	scopes, err = c.Authenticate("qa_viewer", "viewer_password_1")
	require.NoError(t, err)
	assert.True(t, HasScope(scopes, ScopeRead))
	assert.False(t, HasScope(scopes, ScopeWrite))
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	c := demoTable(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "api_user", "wrong_password"},
		{"unknown user", "nobody_here", "mobile_api_password"},
		{"malformed username", "bad user!", "mobile_api_password"},
		{"password too short", "api_user", "short"},
		{"empty password", "api_user", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Authenticate(tt.username, tt.password)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestRegisterValidation(t *testing.T) {
	c, err := NewCredentials(bcrypt.MinCost)
	require.NoError(t, err)

	assert.Error(t, c.Register("ab", "longenough1", []Scope{ScopeRead}, bcrypt.MinCost), "username shorter than 3")
	assert.Error(t, c.Register("valid_name", "short", []Scope{ScopeRead}, bcrypt.MinCost), "password shorter than 8")
	assert.NoError(t, c.Register("valid_name", "longenough1", []Scope{ScopeRead}, bcrypt.MinCost))
}
