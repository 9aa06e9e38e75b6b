package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onesoftdev/idp/internal/config"
	"github.com/onesoftdev/idp/internal/infra"
	"github.com/onesoftdev/idp/internal/logging"
)

func devConfig() config.Config {
	return config.Config{
		AppName:       "idp-test",
		AppEnv:        "test",
		Port:          "0",
		PublicBaseURL: "http://localhost",
		SessionSecret: "secret",
		SessionTTL:    time.Hour,
		EmailTokenTTL: time.Hour,
		PhoneTokenTTL: time.Minute,
		NotifyTimeout: time.Second,
		SMS:           config.SMSConfig{Provider: config.SMSProviderLog},
	}
}

func TestNewServesPing(t *testing.T) {
	srv, err := New(devConfig(), infra.Backends{}, logging.Discard())
	require.NoError(t, err)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/ping", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestNewRejectsMissingBackendsInProduction(t *testing.T) {
	cfg := devConfig()
	cfg.AppEnv = "production"
	_, err := New(cfg, infra.Backends{}, logging.Discard())
	assert.Error(t, err)
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler(logging.Discard())})
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(http.StatusTeapot, "short and stout") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db password leaked") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "short and stout", string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.NotContains(t, string(body), "password")
}
