package livehub

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid authentication token")
	ErrExpiredToken = errors.New("token has expired")
)

// Authenticator extracts and validates a tenant identity from an incoming
// WebSocket upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (tenantID string, err error)
}

// JWTAuth authenticates WebSocket connections the same way the REST API
// authenticates requests, trying the Authorization header first and
// falling back to sources a browser WebSocket client can actually set
// (spec.md §4.5 "Client connection lifecycle": "auth token over the
// Authorization header or a query parameter").
type JWTAuth struct {
	secretKey string
}

// NewJWTAuth constructs a JWTAuth.
func NewJWTAuth(secretKey string) *JWTAuth {
	return &JWTAuth{secretKey: secretKey}
}

// TenantClaims mirrors the REST API's access-token claims.
type TenantClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Authenticate tries, in order: the Authorization header, the "token"
// query parameter, and the Sec-WebSocket-Protocol "auth-<token>" entry.
func (a *JWTAuth) Authenticate(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return a.validateToken(strings.TrimPrefix(authHeader, "Bearer "))
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return a.validateToken(token)
	}

	if protocols := r.Header.Get("Sec-WebSocket-Protocol"); protocols != "" {
		for _, p := range strings.Split(protocols, ",") {
			p = strings.TrimSpace(p)
			if strings.HasPrefix(p, "auth-") {
				return a.validateToken(strings.TrimPrefix(p, "auth-"))
			}
		}
	}

	return "", ErrMissingToken
}

func (a *JWTAuth) validateToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &TenantClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(a.secretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*TenantClaims)
	if !ok || !token.Valid || claims.TenantID == "" {
		return "", ErrInvalidToken
	}
	return claims.TenantID, nil
}

// GenerateToken is a test/tooling helper for minting tenant-scoped tokens.
func (a *JWTAuth) GenerateToken(tenantID string, expiresAt time.Time) (string, error) {
	claims := TenantClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenantID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.secretKey))
}
