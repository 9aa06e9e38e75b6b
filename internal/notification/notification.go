// Package notification delivers confirmation tokens to the channel a user registered
// with. Delivery is best effort: failures are logged and counted, never returned.
package notification

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/onesoftdev/idp/internal/channel"
	"github.com/onesoftdev/idp/internal/identity"
	"github.com/onesoftdev/idp/internal/metrics"
)

const (
	// EmailSubject is the subject line of confirmation emails.
	EmailSubject = "Onesoft Development IDP Email Address Verification"

	defaultTimeout = 30 * time.Second
)

// EmailSender delivers a plain-text email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers a text message.
type SMSSender interface {
	SendSMS(ctx context.Context, destination, content string) error
}

// Dispatcher routes confirmation tokens to the email or SMS transport.
type Dispatcher struct {
	email   EmailSender
	sms     SMSSender
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher builds a dispatcher. baseURL is the public origin used for email
// callback links; each send is bounded by timeout.
func NewDispatcher(email EmailSender, sms SMSSender, baseURL string, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		email:   email,
		sms:     sms,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// ConfirmEmailURL builds the link that confirms an email address.
func ConfirmEmailURL(baseURL, userID, token string) string {
	return fmt.Sprintf("%s/api/users/security/confirmemail/%s?securityCode=%s",
		strings.TrimRight(baseURL, "/"), url.PathEscape(userID), url.QueryEscape(token))
}

// EmailBody renders the confirmation email for the given callback link.
func EmailBody(link string) string {
	return "Please confirm your account by clicking on the following link: " + html.EscapeString(link)
}

// Notify sends token to the identity's channel for purpose. It returns once the
// transport has answered or the send timeout elapses; the request context's
// cancellation does not abort the send.
func (d *Dispatcher) Notify(ctx context.Context, ident identity.Identity, purpose identity.Purpose, token string) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	switch purpose {
	case identity.PurposeEmailConfirmation:
		d.notifyEmail(sendCtx, ident, token)
	case identity.PurposePhoneConfirmation:
		d.notifyPhone(sendCtx, ident, token)
	default:
		d.fail("unknown", ident.ID, fmt.Errorf("unknown purpose %q", purpose))
	}
}

func (d *Dispatcher) notifyEmail(ctx context.Context, ident identity.Identity, token string) {
	kind := string(channel.KindEmail)
	if !ident.HasEmail() {
		d.fail(kind, ident.ID, fmt.Errorf("identity has no email address"))
		return
	}
	if d.email == nil {
		d.fail(kind, ident.ID, fmt.Errorf("no email transport configured"))
		return
	}
	body := EmailBody(ConfirmEmailURL(d.baseURL, ident.ID, token))
	if err := d.email.SendEmail(ctx, ident.Email, EmailSubject, body); err != nil {
		d.fail(kind, ident.ID, err)
		return
	}
	d.sent(kind, ident.ID)
}

func (d *Dispatcher) notifyPhone(ctx context.Context, ident identity.Identity, token string) {
	kind := string(channel.KindPhone)
	if !ident.HasPhone() {
		d.fail(kind, ident.ID, fmt.Errorf("identity has no phone number"))
		return
	}
	if d.sms == nil {
		d.fail(kind, ident.ID, fmt.Errorf("no sms transport configured"))
		return
	}
	if err := d.sms.SendSMS(ctx, ident.Phone, token); err != nil {
		d.fail(kind, ident.ID, err)
		return
	}
	d.sent(kind, ident.ID)
}

func (d *Dispatcher) fail(kind, userID string, err error) {
	d.metrics.IncNotificationFailures(kind)
	if d.logger == nil {
		return
	}
	d.logger.Error("confirmation notification failed",
		slog.String("channel", kind),
		slog.String("user_id", userID),
		slog.Any("error", err),
	)
}

func (d *Dispatcher) sent(kind, userID string) {
	if d.logger == nil {
		return
	}
	d.logger.Info("confirmation notification sent",
		slog.String("channel", kind),
		slog.String("user_id", userID),
	)
}
