package smsgateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onesoftdev/idp/internal/metrics"
)

const refreshKey = "credential"

// Exchanger obtains a fresh credential from the gateway.
type Exchanger interface {
	Authenticate(ctx context.Context) (Credential, error)
}

// TokenCache holds the current gateway credential and refreshes it once it has
// expired. Concurrent callers that find it expired share a single exchange.
type TokenCache struct {
	exchanger Exchanger
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu    sync.RWMutex
	cred  Credential
	group singleflight.Group
}

// NewTokenCache builds a cache over exchanger. Each exchange is bounded by timeout.
func NewTokenCache(exchanger Exchanger, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *TokenCache {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &TokenCache{
		exchanger: exchanger,
		timeout:   timeout,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Token returns a usable bearer token, refreshing the credential when it has expired.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if cred := c.snapshot(); !cred.Expired(c.now()) {
		return cred.Token, nil
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		// Another flight may have finished between the snapshot and here.
		if cred := c.snapshot(); !cred.Expired(c.now()) {
			return cred, nil
		}
		return c.refresh(ctx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(Credential).Token, nil
	}
}

// Prefetch acquires a credential ahead of the first send. Failures are logged only;
// the next send retries.
func (c *TokenCache) Prefetch(ctx context.Context) {
	if _, err := c.Token(ctx); err != nil && c.logger != nil {
		c.logger.Warn("prefetch sms gateway token", slog.Any("error", err))
	}
}

// Current returns the cached credential without refreshing it.
func (c *TokenCache) Current() Credential {
	return c.snapshot()
}

func (c *TokenCache) snapshot() Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

func (c *TokenCache) refresh(ctx context.Context) (Credential, error) {
	// The exchange outlives the caller that started it; other callers wait on it.
	exchangeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	cred, err := c.exchanger.Authenticate(exchangeCtx)
	if err == nil && cred.Token == "" {
		err = fmt.Errorf("%w: empty token", ErrGatewayAuth)
	}
	if err != nil {
		c.metrics.IncGatewayTokenRefreshes("failure")
		if c.logger != nil {
			c.logger.Error("refresh sms gateway token", slog.Any("error", err))
		}
		return Credential{}, err
	}

	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()

	c.metrics.IncGatewayTokenRefreshes("success")
	if c.logger != nil {
		c.logger.Info("sms gateway token refreshed", slog.Time("expires_at", cred.ExpiresAt))
	}
	return cred, nil
}
