package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mjohnson139/MobileApi-sub000/auth"
)

// scopeStrings flattens a scope set for JSON responses.
func scopeStrings(scopes []auth.Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string   `json:"token"`
	ExpiresIn int64    `json:"expires_in"`
	TokenType string   `json:"token_type"`
	Scope     []string `json:"scope"`
}

// handleLogin checks credentials and issues an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{
			Error:     "INVALID_REQUEST",
			Message:   "Malformed request body",
			Timestamp: time.Now(),
		})
		return
	}

	scopes, err := s.opts.Credentials.Authenticate(req.Username, req.Password)
	if err != nil {
		s.logger.Info("login rejected", zap.String("username", req.Username))
		writeError(w, err)
		return
	}

	token, claims, err := s.opts.Tokens.Issue(req.Username, scopes)
	if err != nil {
		s.logger.Error("token issue failed", zap.Error(err))
		writeError(w, err)
		return
	}

	s.logger.Info("login succeeded", zap.String("username", req.Username))
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresIn: int64(claims.ExpiresAt.Sub(claims.IssuedAt).Seconds()),
		TokenType: "Bearer",
		Scope:     scopeStrings(claims.Scopes),
	})
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid     bool      `json:"valid"`
	User      string    `json:"user"`
	Scope     []string  `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleValidate reports whether a token is currently valid.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{
			Error:     "INVALID_REQUEST",
			Message:   "Malformed request body",
			Timestamp: time.Now(),
		})
		return
	}

	claims, err := s.opts.Tokens.Verify(req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.opts.Tokens.IsExpired(claims) {
		writeError(w, auth.ErrTokenExpired)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:     true,
		User:      claims.Username,
		Scope:     scopeStrings(claims.Scopes),
		ExpiresAt: claims.ExpiresAt,
	})
}
