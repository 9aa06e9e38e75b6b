package notification

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/onesoftdev/idp/internal/channel"
)

// MessageCreator is the part of the Twilio REST API used to send SMS.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends SMS through Twilio's Programmable Messaging API.
type TwilioSender struct {
	api        MessageCreator
	fromNumber string
}

// NewTwilioSender builds a Twilio transport from account credentials.
func NewTwilioSender(accountSID, authToken, fromNumber string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{api: client.Api, fromNumber: fromNumber}
}

// SendSMS implements SMSSender. Destinations are sent in E.164 form. The Twilio client does not take a context, so only
// an already expired ctx prevents the call.
func (t *TwilioSender) SendSMS(ctx context.Context, destination, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(channel.ToE164(destination))
	params.SetFrom(t.fromNumber)
	params.SetBody(content)

	if _, err := t.api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	return nil
}
