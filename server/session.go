package server

import (
	"sync"
	"time"

	"github.com/mjohnson139/MobileApi-sub000/auth"
)

// Session tracks one live WebSocket connection. Authentication is cached on
// the session after a successful auth_login: the token is verified once and
// trusted for the connection's lifetime. This is a deliberate asymmetry with
// the HTTP gateway, which re-authenticates every request.
type Session struct {
	ConnID      string
	RemoteAddr  string
	ConnectedAt time.Time

	mu            sync.Mutex
	authenticated bool
	username      string
	scopes        []auth.Scope
}

// Authenticate marks the session as authenticated with the given identity.
func (s *Session) Authenticate(username string, scopes []auth.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
	s.username = username
	s.scopes = append([]auth.Scope(nil), scopes...)
}

// Authenticated reports whether auth_login succeeded on this connection.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Username returns the authenticated username, or "" before login.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// HasScope reports whether the cached token scope set contains want.
func (s *Session) HasScope(want auth.Scope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated && auth.HasScope(s.scopes, want)
}

// sessionRegistry holds the live sessions, keyed by connection id. Sessions
// are removed on disconnect, which also drops them from the broadcast set.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*Session)}
}

func (r *sessionRegistry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ConnID] = s
}

func (r *sessionRegistry) remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connID)
}

func (r *sessionRegistry) get(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// authenticated returns every authenticated session.
func (r *sessionRegistry) authenticated() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Authenticated() {
			out = append(out, s)
		}
	}
	return out
}

func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
