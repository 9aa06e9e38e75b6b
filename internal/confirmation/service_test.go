package confirmation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/onesoftdev/idp/internal/identity"
	"github.com/onesoftdev/idp/internal/logging"
)

type failingStore struct {
	identity.Identity
}

func (f failingStore) FindByID(context.Context, string) (identity.Identity, error) {
	return f.Identity, nil
}

func (failingStore) IssueToken(context.Context, string, identity.Purpose) (string, error) {
	return "", errors.New("redis down")
}

func (failingStore) VerifyToken(context.Context, string, identity.Purpose, string) (bool, error) {
	return false, errors.New("redis down")
}

func newManager(t *testing.T) *identity.Manager {
	t.Helper()
	return identity.NewManager(identity.NewMemoryStore(), identity.NewMemoryTokenStore(), identity.Options{HashCost: bcrypt.MinCost})
}

func TestIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	svc := NewService(m, logging.Discard())

	ident, err := m.Create(ctx, identity.Identity{Username: "0821234567", Phone: "0821234567"}, "Sixchr1!")
	require.NoError(t, err)

	purpose := PurposeFor(ident)
	require.Equal(t, identity.PurposePhoneConfirmation, purpose)

	token, err := svc.Issue(ctx, ident.ID, purpose)
	require.NoError(t, err)

	assert.False(t, svc.Verify(ctx, ident.ID, purpose, "000000x"))
	assert.False(t, svc.Verify(ctx, "", purpose, token))
	assert.True(t, svc.Verify(ctx, ident.ID, purpose, token))
	assert.False(t, svc.Verify(ctx, ident.ID, purpose, token), "consumed token must not verify twice")
}

func TestIssueUnknownIdentity(t *testing.T) {
	svc := NewService(newManager(t), logging.Discard())

	_, err := svc.Issue(context.Background(), "missing", identity.PurposeEmailConfirmation)
	assert.ErrorIs(t, err, ErrTokenIssuance)
}

func TestStoreFailuresAreNegativeResults(t *testing.T) {
	svc := NewService(failingStore{identity.Identity{ID: "id"}}, logging.Discard())
	ctx := context.Background()

	_, err := svc.Issue(ctx, "id", identity.PurposeEmailConfirmation)
	assert.ErrorIs(t, err, ErrTokenIssuance)
	assert.False(t, svc.Verify(ctx, "id", identity.PurposeEmailConfirmation, "token"))
}

func TestPurposeFor(t *testing.T) {
	assert.Equal(t, identity.PurposeEmailConfirmation, PurposeFor(identity.Identity{Email: "a@b.com"}))
	assert.Equal(t, identity.PurposePhoneConfirmation, PurposeFor(identity.Identity{Phone: "0821234567"}))
}
