package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mjohnson139/MobileApi-sub000/auth"
)

// authGate is the authentication/authorization check shared by both
// gateways: extract token, verify signature, check expiry, compare scope.
// The gate never mutates state; it only decides whether a command may pass.
type authGate struct {
	tokens *auth.TokenService
}

// check runs the full gate for a raw bearer token and a required scope.
func (g *authGate) check(token string, required auth.Scope) (auth.Claims, error) {
	if token == "" {
		return auth.Claims{}, auth.ErrNoToken
	}
	claims, err := g.tokens.Verify(token)
	if err != nil {
		return auth.Claims{}, err
	}
	if g.tokens.IsExpired(claims) {
		return auth.Claims{}, auth.ErrTokenExpired
	}
	if !auth.HasScope(claims.Scopes, required) {
		return auth.Claims{}, fmt.Errorf("%w: %s required", auth.ErrInsufficientScope, required)
	}
	return claims, nil
}

// bearerToken extracts the token from an Authorization header. A missing or
// non-Bearer header yields the empty string, which the gate reports as
// ErrNoToken.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
