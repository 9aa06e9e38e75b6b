// Package session signs a user in after registration and validates the resulting
// session token on later requests.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/onesoftdev/idp/internal/identity"
)

// CookieName is the cookie carrying the session token.
const CookieName = "idp_session"

const defaultTTL = 12 * time.Hour

var (
	// ErrInvalidSession is returned for tokens that fail verification.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionExpired is returned for well-formed tokens past their expiry.
	ErrSessionExpired = errors.New("session expired")
	errNoSecret       = errors.New("session secret is not configured")
)

// Claims are the JWT claims of a session token.
type Claims struct {
	Username   string `json:"username"`
	Persistent bool   `json:"persistent"`
	jwt.RegisteredClaims
}

// Session is an issued sign-in. A non-persistent session lives only as long as the
// browser session on the client; the token still expires at ExpiresAt.
type Session struct {
	Token      string
	ExpiresAt  time.Time
	Persistent bool
}

// Manager issues and validates HS256 session tokens.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager builds a session manager.
func NewManager(secret, issuer string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Manager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// SignIn issues a session for ident.
func (m *Manager) SignIn(_ context.Context, ident identity.Identity, persistent bool) (Session, error) {
	if len(m.secret) == 0 {
		return Session{}, errNoSecret
	}
	now := m.now()
	expires := now.Add(m.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username:   ident.Username,
		Persistent: persistent,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: signed, ExpiresAt: expires, Persistent: persistent}, nil
}

// Validate parses a session token and returns its claims.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	if len(m.secret) == 0 {
		return nil, errNoSecret
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrInvalidSession
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
