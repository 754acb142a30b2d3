// Package auth holds the credential table and the token service that gate
// every command-bearing request on both transports.
package auth

import "errors"

// Scope is a coarse permission level attached to a token.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

// HasScope reports whether the given scope set contains want.
func HasScope(scopes []Scope, want Scope) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

// Authentication and authorization failures surfaced to callers. The
// credential check deliberately collapses unknown-user and wrong-password
// into the same error so callers cannot enumerate accounts.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoToken            = errors.New("no token provided")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInsufficientScope  = errors.New("insufficient scope")
)
