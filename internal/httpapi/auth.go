package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when token validation fails.
	ErrInvalidToken = errors.New("httpapi: invalid or expired token")
	// ErrMissingToken is returned when no token is provided.
	ErrMissingToken = errors.New("httpapi: missing authorization token")
	// ErrInvalidAuthHeader is returned when the Authorization header format
	// is malformed.
	ErrInvalidAuthHeader = errors.New("httpapi: invalid authorization header format")
)

// Claims identifies the caller permitted to read a run's introspection
// endpoints. The engine never authenticates trading decisions against
// these — they gate read access only.
type Claims struct {
	RunID string `json:"run_id"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates read-access tokens for the
// introspection API.
type TokenManager struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewTokenManager constructs a TokenManager. secret must be non-empty.
func NewTokenManager(secret []byte, expiry time.Duration) (*TokenManager, error) {
	if len(secret) == 0 {
		return nil, errors.New("httpapi: token secret cannot be empty")
	}
	if expiry == 0 {
		expiry = time.Hour
	}
	return &TokenManager{secret: secret, expiry: expiry, issuer: "jax-backtest-engine"}, nil
}

// IssueToken generates a read-access token scoped to one run.
func (m *TokenManager) IssueToken(runID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		RunID: runID,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   runID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken parses and validates a token string.
func (m *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrInvalidAuthHeader
	}
	return parts[1], nil
}

// Middleware validates the bearer token on every request, rejecting with
// 401 on failure.
func (m *TokenManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if _, err := m.ValidateToken(token); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
