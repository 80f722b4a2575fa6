package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/timebok/timebok/internal/utils"
)

var ErrInvalidSession = errors.New("invalid session token")

type claims struct {
	Username string `json:"usr"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies HS256 session tokens carrying the caller identity.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	clock  utils.Clock
}

func NewSessionManager(secret string, ttl time.Duration, clock utils.Clock) *SessionManager {
	return &SessionManager{secret: []byte(secret), ttl: ttl, clock: clock}
}

func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Issue returns a signed token for caller and its expiry time.
func (m *SessionManager) Issue(caller Caller) (string, time.Time, error) {
	now := m.clock.Now()
	expiresAt := now.Add(m.ttl)
	c := claims{
		Username: caller.Username,
		Name:     caller.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(caller.PractitionerId),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse verifies raw and returns the caller it was issued for.
func (m *SessionManager) Parse(raw string) (Caller, error) {
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
		// block alg confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSession
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.clock.Now))
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return Caller{}, ErrInvalidSession
	}
	id, err := strconv.Atoi(c.Subject)
	if err != nil || id <= 0 {
		return Caller{}, fmt.Errorf("%w: bad subject %q", ErrInvalidSession, c.Subject)
	}
	return Caller{PractitionerId: id, Username: c.Username, Name: c.Name}, nil
}
