package routes

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onesoftdev/idp/internal/config"
	"github.com/onesoftdev/idp/internal/confirmation"
	"github.com/onesoftdev/idp/internal/identity"
	"github.com/onesoftdev/idp/internal/metrics"
	"github.com/onesoftdev/idp/internal/middleware"
	"github.com/onesoftdev/idp/internal/notification"
	"github.com/onesoftdev/idp/internal/registration"
	"github.com/onesoftdev/idp/internal/session"
	"github.com/onesoftdev/idp/internal/smsgateway"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Registry receives the service metrics. A fresh registry with Go and process
	// collectors is used when nil.
	Registry *prometheus.Registry
	// EmailSender and SMSSender override the configured transports.
	EmailSender notification.EmailSender
	SMSSender   notification.SMSSender
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !config.IsDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := metrics.New(reg)

	// Health and metrics
	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, reg)

	// Services and handlers
	var store identity.Store
	if d.DB != nil {
		store = identity.NewPostgresStore(d.DB)
	} else {
		store = identity.NewMemoryStore()
	}
	var tokens identity.TokenStore
	if d.Cache != nil {
		tokens = identity.NewRedisTokenStore(d.Cache)
	} else {
		tokens = identity.NewMemoryTokenStore()
	}
	manager := identity.NewManager(store, tokens, identity.Options{
		EmailTokenTTL: d.Cfg.EmailTokenTTL,
		PhoneTokenTTL: d.Cfg.PhoneTokenTTL,
		Logger:        d.Logger,
	})

	emailSender, smsSender := d.EmailSender, d.SMSSender
	if emailSender == nil {
		emailSender = buildEmailSender(d)
	}
	if smsSender == nil {
		smsSender = buildSMSSender(d, m)
	}
	dispatcher := notification.NewDispatcher(emailSender, smsSender, d.Cfg.PublicBaseURL, d.Cfg.NotifyTimeout, d.Logger, m)

	secret, err := sessionSecret(d)
	if err != nil {
		return err
	}
	sessions := session.NewManager(secret, d.Cfg.AppName, d.Cfg.SessionTTL)

	regSvc := registration.NewService(manager, confirmation.NewService(manager, d.Logger), dispatcher, sessions, d.Logger, m)
	usersHandler := registration.NewHandler(regSvc, d.Cfg.SessionCookieSecure, d.Logger)

	// API routes
	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterUserRoutes(api, usersHandler, UserRouteMiddleware{
		Idempotency: idempotency,
		ConfirmRate: middleware.ConfirmRateLimit(d.Cache, "userId", d.Cfg.ConfirmRateLimit),
		Session:     middleware.SessionAuth(sessions),
	})

	return nil
}

func buildEmailSender(d Deps) notification.EmailSender {
	if d.Cfg.SMTP.Host == "" {
		return notification.NewLogTransport(d.Logger)
	}
	return notification.NewSMTPSender(notification.SMTPConfig{
		Host:     d.Cfg.SMTP.Host,
		Port:     d.Cfg.SMTP.Port,
		Address:  d.Cfg.SMTP.EmailAddress,
		Password: d.Cfg.SMTP.Password,
		FromName: d.Cfg.SMTP.FromName,
	})
}

func buildSMSSender(d Deps, m *metrics.Metrics) notification.SMSSender {
	switch d.Cfg.SMS.Provider {
	case config.SMSProviderSMSPortal:
		httpClient := &http.Client{Timeout: d.Cfg.SMS.GatewayTimeout}
		auth := smsgateway.NewAuthenticator(d.Cfg.SMS.AuthEndpoint, d.Cfg.SMS.ClientID, d.Cfg.SMS.ClientSecret, httpClient)
		cache := smsgateway.NewTokenCache(auth, d.Cfg.SMS.GatewayTimeout, d.Logger, m)
		if d.Cfg.SMS.PrefetchToken {
			cache.Prefetch(context.Background())
		}
		return smsgateway.NewSender(cache, smsgateway.NewClient(d.Cfg.SMS.MessageEndpoint, httpClient))
	case config.SMSProviderTwilio:
		return notification.NewTwilioSender(d.Cfg.Twilio.AccountSID, d.Cfg.Twilio.AuthToken, d.Cfg.Twilio.FromNumber)
	default:
		return notification.NewLogTransport(d.Logger)
	}
}

// sessionSecret returns the configured secret. Development runs without one get a
// random secret, so sessions do not survive a restart.
func sessionSecret(d Deps) (string, error) {
	if d.Cfg.SessionSecret != "" {
		return d.Cfg.SessionSecret, nil
	}
	if !config.IsDev(d.Cfg.AppEnv) {
		return "", fmt.Errorf("session secret is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	d.Logger.Warn("SESSION_SECRET not set, using a random development secret")
	return hex.EncodeToString(buf), nil
}
