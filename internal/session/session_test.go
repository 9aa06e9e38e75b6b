package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onesoftdev/idp/internal/identity"
)

func TestSignInAndValidate(t *testing.T) {
	m := NewManager("secret", "idp", time.Hour)
	ident := identity.Identity{ID: "user-1", Username: "a@b.co"}

	s, err := m.SignIn(context.Background(), ident, false)
	require.NoError(t, err)
	assert.False(t, s.Persistent)
	assert.NotEmpty(t, s.Token)

	claims, err := m.Validate(s.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@b.co", claims.Username)
	assert.False(t, claims.Persistent)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateRejectsForeignTokens(t *testing.T) {
	m := NewManager("secret", "idp", time.Hour)
	other := NewManager("other-secret", "idp", time.Hour)
	otherIssuer := NewManager("secret", "elsewhere", time.Hour)
	ident := identity.Identity{ID: "user-1", Username: "u"}

	for _, issuer := range []*Manager{other, otherIssuer} {
		s, err := issuer.SignIn(context.Background(), ident, false)
		require.NoError(t, err)
		_, err = m.Validate(s.Token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	}

	_, err := m.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidSession)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "idp"}})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Validate(raw)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateExpired(t *testing.T) {
	m := NewManager("secret", "idp", time.Minute)
	start := time.Now()
	m.now = func() time.Time { return start }

	s, err := m.SignIn(context.Background(), identity.Identity{ID: "user-1"}, false)
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = m.Validate(s.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSignInWithoutSecret(t *testing.T) {
	m := NewManager("", "idp", time.Hour)
	_, err := m.SignIn(context.Background(), identity.Identity{ID: "user-1"}, false)
	assert.Error(t, err)
}
