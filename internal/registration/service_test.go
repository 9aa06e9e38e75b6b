package registration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/onesoftdev/idp/internal/confirmation"
	"github.com/onesoftdev/idp/internal/identity"
	"github.com/onesoftdev/idp/internal/logging"
	"github.com/onesoftdev/idp/internal/metrics"
	"github.com/onesoftdev/idp/internal/notification"
	"github.com/onesoftdev/idp/internal/session"
)

const goodPassword = "Sixchr1!"

type delivered struct {
	ident   identity.Identity
	purpose identity.Purpose
	token   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []delivered
}

func (n *recordingNotifier) Notify(_ context.Context, ident identity.Identity, purpose identity.Purpose, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, delivered{ident: ident, purpose: purpose, token: token})
}

func (n *recordingNotifier) last(t *testing.T) delivered {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no notification sent")
	return n.sent[len(n.sent)-1]
}

type fixture struct {
	svc      *Service
	manager  *identity.Manager
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil, session.NewManager("test-secret", "idp", time.Hour))
}

func newFixtureWith(t *testing.T, notifier Notifier, sessions SignInManager) *fixture {
	t.Helper()
	manager := identity.NewManager(identity.NewMemoryStore(), identity.NewMemoryTokenStore(), identity.Options{HashCost: bcrypt.MinCost})
	m := metrics.New(prometheus.NewRegistry())
	recorder := &recordingNotifier{}
	if notifier == nil {
		notifier = recorder
	}
	logger := logging.Discard()
	svc := NewService(manager, confirmation.NewService(manager, logger), notifier, sessions, logger, m)
	return &fixture{svc: svc, manager: manager, notifier: recorder, metrics: m}
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.manager.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestRegisterEmailRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, &Request{UsernameType: "EMAIL", Username: "a@b.com", Password: goodPassword})
	require.NoError(t, err)

	assert.Equal(t, "a@b.com", res.Identity.Email)
	assert.Empty(t, res.Identity.Phone)
	assert.False(t, res.Identity.EmailConfirmed)
	assert.Equal(t, "/api/users/"+res.Identity.ID, res.Location)
	require.NotNil(t, res.Session)
	assert.False(t, res.Session.Persistent)

	sent := f.notifier.last(t)
	assert.Equal(t, identity.PurposeEmailConfirmation, sent.purpose)
	assert.Equal(t, res.Identity.ID, sent.ident.ID)
	assert.NotEmpty(t, sent.token)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.UsersCreated.WithLabelValues("email")))
}

func TestRegisterPhoneRoundTrip(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Register(context.Background(), &Request{UsernameType: "PHONE", Username: "0821234567", Password: goodPassword})
	require.NoError(t, err)

	assert.Equal(t, "0821234567", res.Identity.Phone)
	assert.Empty(t, res.Identity.Email)
	assert.False(t, res.Identity.PhoneConfirmed)

	sent := f.notifier.last(t)
	assert.Equal(t, identity.PurposePhoneConfirmation, sent.purpose)
	assert.Len(t, sent.token, 6)
}

func TestRegisterRejectsUnknownUsernameType(t *testing.T) {
	f := newFixture(t)

	for _, usernameType := range []string{"username", "sms", "EMAILS", "e-mail", "0"} {
		_, err := f.svc.Register(context.Background(), &Request{UsernameType: usernameType, Username: "a@b.com", Password: goodPassword})
		assert.ErrorIs(t, err, ErrUnprocessableUsernameType, usernameType)
	}
	assert.Zero(t, f.count(t))
	assert.Empty(t, f.notifier.sent)
}

func TestRegisterRejectsMalformedChannel(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		usernameType string
		username     string
		message      string
	}{
		{"PHONE", "123", "Phone number input is invalid."},
		{"PHONE", "+27821234567", "Phone number input is invalid."},
		{"EMAIL", "not-an-email", "Email address input is invalid."},
		{"EMAIL", "a@b", "Email address input is invalid."},
	}
	for _, tc := range cases {
		_, err := f.svc.Register(context.Background(), &Request{UsernameType: tc.usernameType, Username: tc.username, Password: goodPassword})
		require.ErrorIs(t, err, ErrInvalidChannelFormat)
		var fieldErr *FieldError
		require.True(t, errors.As(err, &fieldErr))
		assert.Equal(t, "usernameType", fieldErr.Field)
		assert.Equal(t, tc.message, fieldErr.Message)
	}
	assert.Zero(t, f.count(t))
}

func TestRegisterInvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	cases := []Request{
		{Username: "a@b.com", Password: goodPassword},
		{UsernameType: "EMAIL", Password: goodPassword},
		{UsernameType: "EMAIL", Username: "a@b.com"},
		{UsernameType: "EMAIL", Username: "a@b.com", Password: "Ab1!"},
		{UsernameType: "EMAIL", Username: "a@b.com", Password: string(make([]byte, 101))},
	}
	for _, req := range cases {
		req := req
		_, err := f.svc.Register(context.Background(), &req)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	assert.Zero(t, f.count(t))
}

func TestRegisterConflictLeavesCountUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, &Request{UsernameType: "EMAIL", Username: "a@b.com", Password: goodPassword})
	require.NoError(t, err)
	require.Equal(t, 1, f.count(t))

	for _, username := range []string{"a@b.com", "A@B.COM"} {
		_, err = f.svc.Register(ctx, &Request{UsernameType: "EMAIL", Username: username, Password: goodPassword})
		require.ErrorIs(t, err, ErrUsernameConflict)
		assert.Contains(t, err.Error(), username)
	}
	assert.Equal(t, 1, f.count(t))
	assert.Len(t, f.notifier.sent, 1)
}

func TestRegisterSurfacesFirstPolicyError(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), &Request{UsernameType: "EMAIL", Username: "a@b.com", Password: "sixchr"})
	require.ErrorIs(t, err, ErrIdentityCreationRejected)
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "PasswordRequiresNonAlphanumeric", storeErr.Code)
	assert.Zero(t, f.count(t))
}

func TestRegisterAndChangePasswordRejectOverlongPasswords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := "Aa1!" + strings.Repeat("x", 80)

	_, err := f.svc.Register(ctx, &Request{UsernameType: "EMAIL", Username: "a@b.com", Password: long})
	require.ErrorIs(t, err, ErrIdentityCreationRejected)
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "PasswordTooLong", storeErr.Code)
	assert.Zero(t, f.count(t))

	res, err := f.svc.Register(ctx, &Request{UsernameType: "EMAIL", Username: "a@b.com", Password: goodPassword})
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, res.Identity.ID, goodPassword, long)
	require.ErrorIs(t, err, ErrPasswordChangeRejected)
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "PasswordTooLong", storeErr.Code)
}

type failingSMS struct{}

func (failingSMS) SendSMS(context.Context, string, string) error { return errors.New("gateway down") }

func TestRegisterSucceedsWhenDeliveryFails(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	dispatcher := notification.NewDispatcher(nil, failingSMS{}, "http://localhost", time.Second, logging.Discard(), m)
	f := newFixtureWith(t, dispatcher, session.NewManager("test-secret", "idp", time.Hour))

	res, err := f.svc.Register(context.Background(), &Request{UsernameType: "PHONE", Username: "0821234567", Password: goodPassword})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Identity.ID)
	assert.NotNil(t, res.Session)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationFailures.WithLabelValues("phone")))
}

func TestRegisterSucceedsWithoutSession(t *testing.T) {
	f := newFixtureWith(t, nil, session.NewManager("", "idp", time.Hour))

	res, err := f.svc.Register(context.Background(), &Request{UsernameType: "EMAIL", Username: "a@b.com", Password: goodPassword})
	require.NoError(t, err)
	assert.Nil(t, res.Session)
	assert.Equal(t, 1, f.count(t))
}

func TestConfirmEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, &Request{UsernameType: "EMAIL", Username: "a@b.com", Password: goodPassword})
	require.NoError(t, err)
	id := res.Identity.ID
	token := f.notifier.last(t).token

	_, err = f.svc.ConfirmEmail(ctx, id, "not-the-token")
	require.ErrorIs(t, err, ErrTokenInvalid)
	got, err := f.svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.EmailConfirmed)

	text, err := f.svc.ConfirmEmail(ctx, id, token)
	require.NoError(t, err)
	assert.Equal(t, EmailConfirmedText, text)
	got, err = f.svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.EmailConfirmed)

	text, err = f.svc.ConfirmEmail(ctx, id, token)
	require.NoError(t, err, "re-confirming is a no-op")
	assert.Equal(t, EmailConfirmedText, text)
	got, err = f.svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.EmailConfirmed)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ChannelsConfirmed.WithLabelValues("email")))
}

func TestConfirmPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, &Request{UsernameType: "PHONE", Username: "0821234567", Password: goodPassword})
	require.NoError(t, err)
	id := res.Identity.ID
	code := f.notifier.last(t).token

	_, err = f.svc.ConfirmPhone(ctx, id, "000000x")
	require.ErrorIs(t, err, ErrTokenInvalid)

	text, err := f.svc.ConfirmPhone(ctx, id, code)
	require.NoError(t, err)
	assert.Equal(t, PhoneConfirmedText, text)

	got, err := f.svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.PhoneConfirmed)
	assert.False(t, got.EmailConfirmed)

	_, err = f.svc.ConfirmPhone(ctx, id, code)
	require.NoError(t, err)
}

func TestConfirmEmailTokenDoesNotConfirmPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, &Request{UsernameType: "EMAIL", Username: "a@b.com", Password: goodPassword})
	require.NoError(t, err)
	token := f.notifier.last(t).token

	_, err = f.svc.ConfirmPhone(ctx, res.Identity.ID, token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestConfirmMissingInputAndUnknownUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ConfirmEmail(ctx, "", "tok")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.ConfirmPhone(ctx, "id", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.ConfirmEmail(ctx, "missing", "tok")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.ConfirmPhone(ctx, "missing", "123456")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupsAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, &Request{UsernameType: "EMAIL", Username: "a@b.com", Password: goodPassword})
	require.NoError(t, err)

	byName, err := f.svc.GetByUsername(ctx, "A@b.com")
	require.NoError(t, err)
	assert.Equal(t, res.Identity.ID, byName.ID)

	_, err = f.svc.GetByUsername(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.GetByUsername(ctx, "x@y.com")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.svc.Delete(ctx, res.Identity.ID))
	_, err = f.svc.GetByID(ctx, res.Identity.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, res.Identity.ID), ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, &Request{UsernameType: "EMAIL", Username: "a@b.com", Password: goodPassword})
	require.NoError(t, err)
	id := res.Identity.ID

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, "missing", goodPassword, "Newpass1!"), ErrNotFound)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, id, "", "Newpass1!"), ErrInvalidInput)

	err = f.svc.ChangePassword(ctx, id, "Wrong1!x", "Newpass1!")
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "PasswordMismatch", storeErr.Code)
	assert.ErrorIs(t, err, ErrPasswordChangeRejected)

	err = f.svc.ChangePassword(ctx, id, goodPassword, "weak")
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "PasswordTooShort", storeErr.Code)

	require.NoError(t, f.svc.ChangePassword(ctx, id, goodPassword, "Newpass1!"))
	require.NoError(t, f.svc.ChangePassword(ctx, id, "Newpass1!", goodPassword))
}
