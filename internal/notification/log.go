package notification

import (
	"context"
	"log/slog"
)

// LogTransport writes messages to the structured logger instead of delivering them.
// It stands in for both transports in local development.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport constructs a logging transport.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// SendEmail writes the email to the logger.
func (t *LogTransport) SendEmail(_ context.Context, to, subject, body string) error {
	if t == nil || t.logger == nil {
		return nil
	}
	t.logger.Info("notification", "kind", "email", "destination", to, "subject", subject, "body", body)
	return nil
}

// SendSMS writes the text message to the logger.
func (t *LogTransport) SendSMS(_ context.Context, destination, content string) error {
	if t == nil || t.logger == nil {
		return nil
	}
	t.logger.Info("notification", "kind", "sms", "destination", destination, "body", content)
	return nil
}
