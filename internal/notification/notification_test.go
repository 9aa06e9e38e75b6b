package notification

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
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/onesoftdev/idp/internal/identity"
	"github.com/onesoftdev/idp/internal/logging"
	"github.com/onesoftdev/idp/internal/metrics"
)

type sentMessage struct {
	to, subject, body string
	ctxErr            error
	deadline          bool
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (r *recordingTransport) SendEmail(ctx context.Context, to, subject, body string) error {
	return r.record(ctx, to, subject, body)
}

func (r *recordingTransport) SendSMS(ctx context.Context, destination, content string) error {
	return r.record(ctx, destination, "", content)
}

func (r *recordingTransport) record(ctx context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, hasDeadline := ctx.Deadline()
	r.sent = append(r.sent, sentMessage{to: to, subject: subject, body: body, ctxErr: ctx.Err(), deadline: hasDeadline})
	return r.err
}

func TestNotifyEmailSendsCallbackLink(t *testing.T) {
	email := &recordingTransport{}
	sms := &recordingTransport{}
	d := NewDispatcher(email, sms, "https://idp.example.com/", time.Second, logging.Discard(), nil)

	ident := identity.Identity{ID: "user-1", Email: "a@b.co"}
	d.Notify(context.Background(), ident, identity.PurposeEmailConfirmation, "tok+en/=")

	require.Len(t, email.sent, 1)
	assert.Empty(t, sms.sent)
	got := email.sent[0]
	assert.Equal(t, "a@b.co", got.to)
	assert.Equal(t, EmailSubject, got.subject)
	assert.Equal(t,
		"Please confirm your account by clicking on the following link: "+
			"https://idp.example.com/api/users/security/confirmemail/user-1?securityCode=tok%2Ben%2F%3D",
		got.body)
	assert.True(t, got.deadline)
}

func TestEmailBodyEscapesLink(t *testing.T) {
	body := EmailBody(`https://x.example/?a=1&b="2"`)
	assert.True(t, strings.HasSuffix(body, "https://x.example/?a=1&amp;b=&#34;2&#34;"))
}

func TestNotifyPhoneSendsTokenAsContent(t *testing.T) {
	email := &recordingTransport{}
	sms := &recordingTransport{}
	d := NewDispatcher(email, sms, "https://idp.example.com", time.Second, logging.Discard(), nil)

	ident := identity.Identity{ID: "user-2", Phone: "0821234567"}
	d.Notify(context.Background(), ident, identity.PurposePhoneConfirmation, "123456")

	require.Len(t, sms.sent, 1)
	assert.Empty(t, email.sent)
	assert.Equal(t, "0821234567", sms.sent[0].to)
	assert.Equal(t, "123456", sms.sent[0].body)
}

func TestNotifySwallowsTransportErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	sms := &recordingTransport{err: errors.New("gateway down")}
	d := NewDispatcher(nil, sms, "", time.Second, logging.Discard(), m)

	d.Notify(context.Background(), identity.Identity{ID: "u", Phone: "0821234567"}, identity.PurposePhoneConfirmation, "1")
	d.Notify(context.Background(), identity.Identity{ID: "u", Email: "a@b.co"}, identity.PurposeEmailConfirmation, "1")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationFailures.WithLabelValues("phone")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationFailures.WithLabelValues("email")))
}

func TestNotifyIgnoresRequestCancellation(t *testing.T) {
	sms := &recordingTransport{}
	d := NewDispatcher(nil, sms, "", time.Second, logging.Discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Notify(ctx, identity.Identity{ID: "u", Phone: "0821234567"}, identity.PurposePhoneConfirmation, "1")

	require.Len(t, sms.sent, 1)
	assert.NoError(t, sms.sent[0].ctxErr)
}

func TestNotifyMissingAddressIsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	email := &recordingTransport{}
	d := NewDispatcher(email, nil, "", time.Second, logging.Discard(), m)

	d.Notify(context.Background(), identity.Identity{ID: "u", Phone: "0821234567"}, identity.PurposeEmailConfirmation, "1")

	assert.Empty(t, email.sent)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationFailures.WithLabelValues("email")))
}

type fakeMessageCreator struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeMessageCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	return &twilioApi.ApiV2010Message{}, f.err
}

func TestTwilioSenderBuildsParams(t *testing.T) {
	api := &fakeMessageCreator{}
	sender := &TwilioSender{api: api, fromNumber: "+15005550006"}

	require.NoError(t, sender.SendSMS(context.Background(), "0821234567", "654321"))
	require.NotNil(t, api.params)
	assert.Equal(t, "+27821234567", *api.params.To)
	assert.Equal(t, "+15005550006", *api.params.From)
	assert.Equal(t, "654321", *api.params.Body)

	require.NoError(t, sender.SendSMS(context.Background(), "+27731234567", "1"))
	assert.Equal(t, "+27731234567", *api.params.To)

	api.err = errors.New("invalid number")
	assert.ErrorContains(t, sender.SendSMS(context.Background(), "0821234567", "1"), "invalid number")
}

func TestSMTPSenderRejectsBadRecipient(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "localhost", Address: "idp@example.com", FromName: "Onesoft Development IDP"})
	assert.Equal(t, defaultSMTPPort, sender.cfg.Port)

	_, err := sender.message("not an address", EmailSubject, "body")
	assert.Error(t, err)

	msg, err := sender.message("user@example.com", EmailSubject, "body")
	require.NoError(t, err)
	assert.NotNil(t, msg)
}

func TestLogTransportNilSafe(t *testing.T) {
	var transport *LogTransport
	assert.NoError(t, transport.SendEmail(context.Background(), "a@b.co", "s", "b"))
	assert.NoError(t, NewLogTransport(logging.Discard()).SendSMS(context.Background(), "0821234567", "1"))
}
