// Package smsgateway talks to an SMSPortal-style SMS gateway: a client-credential
// exchange yields a short-lived bearer token which authorizes message sends.
package smsgateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 64 << 10
)

// ErrGatewayAuth is returned when the gateway does not issue a usable credential.
var ErrGatewayAuth = errors.New("sms gateway authentication failed")

// Credential is a bearer token and the instant it stops being usable.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the credential must be refreshed before use at now.
func (c Credential) Expired(now time.Time) bool {
	return c.Token == "" || !now.Before(c.ExpiresAt)
}

type authResponse struct {
	Token            string          `json:"token"`
	Schema           string          `json:"schema"`
	ExpiresInMinutes json.RawMessage `json:"expiresInMinutes"`
}

// Authenticator performs the client-credential exchange.
type Authenticator struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time
}

// NewAuthenticator returns an Authenticator for the given auth endpoint. A nil
// httpClient gets one with a default timeout.
func NewAuthenticator(endpoint, clientID, clientSecret string, httpClient *http.Client) *Authenticator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Authenticator{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

// BasicCredentials builds the Basic authorization value: each part is
// percent-encoded on its own, then "id:secret" is base64 encoded.
func BasicCredentials(clientID, clientSecret string) string {
	joined := url.QueryEscape(clientID) + ":" + url.QueryEscape(clientSecret)
	return base64.StdEncoding.EncodeToString([]byte(joined))
}

// Authenticate exchanges the client credentials for a bearer token.
func (a *Authenticator) Authenticate(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrGatewayAuth, err)
	}
	req.Header.Set("Authorization", "Basic "+BasicCredentials(a.clientID, a.clientSecret))
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrGatewayAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: read body: %v", ErrGatewayAuth, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Credential{}, fmt.Errorf("%w: status=%d body=%s", ErrGatewayAuth, resp.StatusCode, string(body))
	}

	var parsed authResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Credential{}, fmt.Errorf("%w: decode body: %v", ErrGatewayAuth, err)
	}
	if parsed.Token == "" {
		return Credential{}, fmt.Errorf("%w: empty token", ErrGatewayAuth)
	}

	now := a.now()
	cred := Credential{Token: parsed.Token, ExpiresAt: now}
	if minutes, ok := parseMinutes(parsed.ExpiresInMinutes); ok {
		cred.ExpiresAt = now.Add(time.Duration(minutes * float64(time.Minute)))
	}
	return cred, nil
}

// maxExpiryMinutes is the largest lifetime a time.Duration can hold.
const maxExpiryMinutes = float64(math.MaxInt64 / int64(time.Minute))

// parseMinutes accepts a JSON number or a numeric string. Negative, non-finite and
// unrepresentable values are rejected.
func parseMinutes(raw json.RawMessage) (float64, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, false
	}
	minutes, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(minutes) || minutes < 0 || minutes > maxExpiryMinutes {
		return 0, false
	}
	return minutes, true
}
