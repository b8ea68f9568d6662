package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/emberleaf/emberleaf/internal/platform/id"
)

type contextKey string

const sessionKey contextKey = "session"

// Session identifies the authenticated caller for one request.
type Session struct {
	UserID string
	Guest  bool
}

type sessionClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Guest  bool   `json:"guest"`
}

// Sessions verifies bearer tokens and mints guest-session tokens. Real
// credential auth stays external; this layer only trusts the shared HMAC
// secret.
type Sessions struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  func() time.Time
}

// NewSessions builds a session verifier over the shared HS256 secret.
func NewSessions(secret []byte, issuer string, ttl time.Duration) (*Sessions, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("session secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if issuer == "" {
		issuer = "emberleaf"
	}
	return &Sessions{secret: secret, issuer: issuer, ttl: ttl, clock: time.Now}, nil
}

// MintGuest issues a token for a fresh guest identity.
func (s *Sessions) MintGuest() (token string, userID string, err error) {
	return s.mint(id.NewID(), true)
}

// MintUser issues a token for a known registered user id.
func (s *Sessions) MintUser(userID string) (string, error) {
	token, _, err := s.mint(userID, false)
	return token, err
}

func (s *Sessions) mint(userID string, guest bool) (string, string, error) {
	now := s.clock().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID: userID,
		Guest:  guest,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign session token: %w", err)
	}
	return token, userID, nil
}

// Verify parses and validates a bearer token.
func (s *Sessions) Verify(token string) (Session, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.clock))
	if err != nil {
		return Session{}, fmt.Errorf("parse session token: %w", err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return Session{}, fmt.Errorf("invalid session token")
	}
	return Session{UserID: claims.UserID, Guest: claims.Guest}, nil
}

// Middleware resolves the session from the Authorization header and stores
// it on the request context. Requests without a valid token get 401.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		session, err := s.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, session)))
	})
}

// sessionFrom returns the request session set by Middleware.
func sessionFrom(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionKey).(Session)
	return session, ok
}
