package smsgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrDeliveryRejected is returned by Sender when the gateway does not accept a message.
var ErrDeliveryRejected = errors.New("sms gateway rejected message")

// Message is a single SMS.
type Message struct {
	Content     string `json:"content"`
	Destination string `json:"destination"`
}

type sendRequest struct {
	Messages []Message `json:"messages"`
}

// Client posts messages to the gateway's send endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient returns a Client for the given message endpoint. A nil httpClient gets
// one with a default timeout.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{endpoint: endpoint, httpClient: httpClient}
}

// Send delivers msg using bearer for authorization. It reports true only when the
// gateway answers 200 OK.
func (c *Client) Send(ctx context.Context, msg Message, bearer string) (bool, error) {
	if bearer == "" {
		return false, fmt.Errorf("%w: empty token", ErrGatewayAuth)
	}

	raw, err := json.Marshal(sendRequest{Messages: []Message{msg}})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	return resp.StatusCode == http.StatusOK, nil
}

// Sender sends SMS through the gateway, authorizing each send with the cached token.
type Sender struct {
	tokens *TokenCache
	client *Client
}

// NewSender combines a token cache and a client.
func NewSender(tokens *TokenCache, client *Client) *Sender {
	return &Sender{tokens: tokens, client: client}
}

// SendSMS sends content to destination. No send is attempted without a token.
func (s *Sender) SendSMS(ctx context.Context, destination, content string) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return err
	}
	ok, err := s.client.Send(ctx, Message{Content: content, Destination: destination}, token)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if !ok {
		return ErrDeliveryRejected
	}
	return nil
}
