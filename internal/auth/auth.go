// Package auth verifies operator tokens. Tokens are HS256 JWTs issued by the
// storefront identity service; switchboard only checks signature, expiry,
// and that the role claim is an operator role.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("auth: missing token")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrForbidden    = errors.New("auth: role is not an operator role")
)

// Claims are the token claims switchboard reads.
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks operator tokens against a shared secret.
type Verifier struct {
	secret []byte
	roles  map[string]bool
}

// NewVerifier creates a Verifier accepting any of roles.
func NewVerifier(secret string, roles []string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: secret is required")
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("auth: at least one operator role is required")
	}
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[strings.ToLower(strings.TrimSpace(r))] = true
	}
	return &Verifier{secret: []byte(secret), roles: set}, nil
}

// Verify parses and checks raw. A well-signed token for a non-operator role
// yields its claims together with ErrForbidden.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !v.roles[strings.ToLower(claims.Role)] {
		return claims, ErrForbidden
	}
	return claims, nil
}

// Mint signs a token for subject with role, valid for ttl from now.
func Mint(secret, subject, role string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("auth: secret is required")
	}
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// TokenFromRequest returns the bearer token from the Authorization header,
// falling back to the token query parameter, which browsers need for
// WebSocket and EventSource connections.
func TokenFromRequest(r *http.Request) string {
	if t := bearerToken(r.Header.Get("Authorization")); t != "" {
		return t
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
