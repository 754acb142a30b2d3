package auth

import (
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
)

type credential struct {
	hash   []byte
	scopes []Scope
}

// Credentials is a fixed, pre-hashed user table. There is no user management
// surface; accounts are registered once at construction.
type Credentials struct {
	users map[string]credential

	// decoyHash is compared against when the username is unknown, so the
	// unknown-user and wrong-password paths cost the same.
	decoyHash []byte
}

// NewCredentials creates an empty credential table using the given bcrypt
// cost factor for registration.
func NewCredentials(cost int) (*Credentials, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	decoy, err := bcrypt.GenerateFromPassword([]byte("decoy-password-never-matches"), cost)
	if err != nil {
		return nil, err
	}
	return &Credentials{
		users:     make(map[string]credential),
		decoyHash: decoy,
	}, nil
}

// Register adds a user with the given password and scope set. The password
// is hashed immediately and never retained.
func (c *Credentials) Register(username, password string, scopes []Scope, cost int) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("invalid username %q", username)
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return fmt.Errorf("password length must be %d-%d characters", minPasswordLen, maxPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}
	c.users[username] = credential{hash: hash, scopes: scopes}
	return nil
}

// Authenticate checks a username/password pair and returns the account's
// scope set. Any failure - malformed input, unknown user, wrong password -
// yields the same ErrInvalidCredentials.
func (c *Credentials) Authenticate(username, password string) ([]Scope, error) {
	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidCredentials
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return nil, ErrInvalidCredentials
	}

	cred, ok := c.users[username]
	if !ok {
		// Burn a comparison anyway so response time does not signal
		// whether the account exists.
		_ = bcrypt.CompareHashAndPassword(c.decoyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(cred.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	scopes := make([]Scope, len(cred.scopes))
	copy(scopes, cred.scopes)
	return scopes, nil
}

// NewDemoCredentials builds the fixed table the demo app ships with: a
// read/write API account and a read-only viewer account.
func NewDemoCredentials(cost int) (*Credentials, error) {
	c, err := NewCredentials(cost)
	if err != nil {
		return nil, err
	}
	if err := c.Register("api_user", "mobile_api_password", []Scope{ScopeRead, ScopeWrite}, cost); err != nil {
		return nil, err
	}
	if err := c.Register("qa_viewer", "viewer_password_1", []Scope{ScopeRead}, cost); err != nil {
		return nil, err
	}
	return c, nil
}
