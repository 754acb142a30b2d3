package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// MinSecretLen is the minimum HMAC signing secret length in bytes.
	// Shorter secrets fail construction, not individual requests.
	MinSecretLen = 32

	// MaxTokenTTL caps token lifetime. Expiry is always at most one hour
	// after issuance.
	MaxTokenTTL = time.Hour

	// DefaultTokenTTL is used when the configuration does not set one.
	DefaultTokenTTL = time.Hour
)

// Claims is the decoded payload of a verified access token.
type Claims struct {
	Username  string
	Scopes    []Scope
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService issues and verifies HMAC-SHA256 signed access tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration

	// now is swappable for expiry-boundary tests.
	now func() time.Time
}

// NewTokenService validates the signing configuration up front: a secret
// shorter than MinSecretLen or a TTL outside (0, MaxTokenTTL] is a
// configuration error.
func NewTokenService(secret []byte, ttl time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretLen, len(secret))
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if ttl > MaxTokenTTL {
		return nil, fmt.Errorf("token TTL %v exceeds maximum %v", ttl, MaxTokenTTL)
	}
	return &TokenService{secret: secret, ttl: ttl, now: time.Now}, nil
}

// TTL returns the configured token lifetime.
func (ts *TokenService) TTL() time.Duration {
	return ts.ttl
}

// Issue signs a token for the given subject and scope set.
func (ts *TokenService) Issue(username string, scopes []Scope) (string, Claims, error) {
	iat := ts.now()
	exp := iat.Add(ts.ttl)

	scopeStrs := make([]string, len(scopes))
	for i, s := range scopes {
		scopeStrs[i] = string(s)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   username,
		"scope": scopeStrs,
		"iat":   iat.Unix(),
		"exp":   exp.Unix(),
	})
	signed, err := tok.SignedString(ts.secret)
	if err != nil {
		return "", Claims{}, err
	}

	return signed, Claims{
		Username:  username,
		Scopes:    scopes,
		IssuedAt:  iat,
		ExpiresAt: exp,
	}, nil
}

// Verify checks the token's signature and shape and returns its claims.
// Expiry is deliberately not checked here; callers pair Verify with
// IsExpired to distinguish a forged token from a stale one.
func (ts *TokenService) Verify(token string) (Claims, error) {
	parsed, err := jwt.Parse(token,
		func(t *jwt.Token) (any, error) { return ts.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	sub, ok := mc["sub"].(string)
	if !ok || sub == "" {
		return Claims{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	iat, ok := numericClaim(mc["iat"])
	if !ok {
		return Claims{}, fmt.Errorf("%w: missing iat claim", ErrInvalidToken)
	}
	exp, ok := numericClaim(mc["exp"])
	if !ok {
		return Claims{}, fmt.Errorf("%w: missing exp claim", ErrInvalidToken)
	}

	rawScopes, ok := mc["scope"].([]any)
	if !ok {
		return Claims{}, fmt.Errorf("%w: missing scope claim", ErrInvalidToken)
	}
	scopes := make([]Scope, 0, len(rawScopes))
	for _, rs := range rawScopes {
		s, ok := rs.(string)
		if !ok {
			return Claims{}, fmt.Errorf("%w: malformed scope claim", ErrInvalidToken)
		}
		scopes = append(scopes, Scope(s))
	}

	return Claims{
		Username:  sub,
		Scopes:    scopes,
		IssuedAt:  time.Unix(iat, 0),
		ExpiresAt: time.Unix(exp, 0),
	}, nil
}

// IsExpired reports whether the claims' expiry has passed. It trusts the
// decoded exp claim; callers must have verified the token first.
func (ts *TokenService) IsExpired(c Claims) bool {
	return !ts.now().Before(c.ExpiresAt)
}

func numericClaim(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
