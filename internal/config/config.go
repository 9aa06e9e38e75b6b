package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName          = "OnesoftIDP"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultPublicBaseURL    = "http://localhost:8080"
	defaultSessionTTL       = 12 * time.Hour
	defaultEmailTokenTTL    = 24 * time.Hour
	defaultPhoneTokenTTL    = 10 * time.Minute
	defaultNotifyTimeout    = 30 * time.Second
	defaultGatewayTimeout   = 15 * time.Second
	defaultConfirmRateLimit = 10
	defaultSMTPPort         = 587
	defaultSMTPFromName     = "Onesoft Development IDP"
	defaultSMSProvider      = SMSProviderLog
)

// SMS providers selectable with SMS_PROVIDER.
const (
	SMSProviderSMSPortal = "smsportal"
	SMSProviderTwilio    = "twilio"
	SMSProviderLog       = "log"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	AutoMigrate    bool

	PublicBaseURL       string
	SessionSecret       string
	SessionTTL          time.Duration
	SessionCookieSecure bool
	EmailTokenTTL       time.Duration
	PhoneTokenTTL       time.Duration
	ConfirmRateLimit    int
	NotifyTimeout       time.Duration

	SMTP   SMTPConfig
	SMS    SMSConfig
	Twilio TwilioConfig
}

// SMTPConfig configures the confirmation mailbox. An empty Host selects the log
// transport.
type SMTPConfig struct {
	Host         string
	Port         int
	EmailAddress string
	Password     string
	FromName     string
}

// SMSConfig configures the SMS gateway.
type SMSConfig struct {
	Provider        string
	ClientID        string
	ClientSecret    string
	AuthEndpoint    string
	MessageEndpoint string
	GatewayTimeout  time.Duration
	PrefetchToken   bool
}

// TwilioConfig configures the Twilio SMS provider.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:       getEnv("APP_NAME", defaultAppName),
		AppEnv:        getEnv("APP_ENV", defaultAppEnv),
		Port:          getEnv("PORT", defaultPort),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", defaultPublicBaseURL), "/"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		SMTP: SMTPConfig{
			Host:         os.Getenv("SMTP_HOST"),
			EmailAddress: os.Getenv("SMTP_EMAIL_ADDRESS"),
			Password:     os.Getenv("SMTP_PASSWORD"),
			FromName:     getEnv("SMTP_FROM_NAME", defaultSMTPFromName),
		},
		SMS: SMSConfig{
			Provider:        strings.ToLower(getEnv("SMS_PROVIDER", defaultSMSProvider)),
			ClientID:        os.Getenv("SMSPORTAL_CLIENT_ID"),
			ClientSecret:    os.Getenv("SMSPORTAL_CLIENT_SECRET"),
			AuthEndpoint:    os.Getenv("SMSPORTAL_AUTH_ENDPOINT"),
			MessageEndpoint: os.Getenv("SMSPORTAL_MESSAGE_ENDPOINT"),
		},
		Twilio: TwilioConfig{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			FromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		},
	}

	durations := []struct {
		name     string
		target   *time.Duration
		fallback time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod, defaultShutdownDelay},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL, defaultIdempotencyTTL},
		{"SESSION_TTL", &cfg.SessionTTL, defaultSessionTTL},
		{"EMAIL_TOKEN_TTL", &cfg.EmailTokenTTL, defaultEmailTokenTTL},
		{"PHONE_TOKEN_TTL", &cfg.PhoneTokenTTL, defaultPhoneTokenTTL},
		{"NOTIFY_TIMEOUT", &cfg.NotifyTimeout, defaultNotifyTimeout},
		{"SMS_GATEWAY_TIMEOUT", &cfg.SMS.GatewayTimeout, defaultGatewayTimeout},
	}
	for _, d := range durations {
		v, err := durationEnv(d.name, d.fallback)
		if err != nil {
			return Config{}, err
		}
		*d.target = v
	}

	var err error
	if cfg.SMTP.Port, err = intEnv("SMTP_PORT", defaultSMTPPort); err != nil {
		return Config{}, err
	}
	if cfg.ConfirmRateLimit, err = intEnv("CONFIRM_RATE_LIMIT_PER_MIN", defaultConfirmRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.SessionCookieSecure, err = boolEnv("SESSION_COOKIE_SECURE", !IsDev(cfg.AppEnv)); err != nil {
		return Config{}, err
	}
	if cfg.SMS.PrefetchToken, err = boolEnv("SMS_PREFETCH_TOKEN", false); err != nil {
		return Config{}, err
	}
	if cfg.AutoMigrate, err = boolEnv("AUTO_MIGRATE", false); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !IsDev(c.AppEnv) {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET must be set")
		}
	}

	switch c.SMS.Provider {
	case SMSProviderLog:
	case SMSProviderSMSPortal:
		if c.SMS.ClientID == "" || c.SMS.ClientSecret == "" || c.SMS.AuthEndpoint == "" || c.SMS.MessageEndpoint == "" {
			return fmt.Errorf("SMSPORTAL_CLIENT_ID, SMSPORTAL_CLIENT_SECRET, SMSPORTAL_AUTH_ENDPOINT and SMSPORTAL_MESSAGE_ENDPOINT must be set when SMS_PROVIDER=%s", c.SMS.Provider)
		}
	case SMSProviderTwilio:
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Twilio.FromNumber == "" {
			return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER must be set when SMS_PROVIDER=%s", c.SMS.Provider)
		}
	default:
		return fmt.Errorf("invalid SMS_PROVIDER %q", c.SMS.Provider)
	}

	if c.SMTP.Host != "" && c.SMTP.EmailAddress == "" {
		return fmt.Errorf("SMTP_EMAIL_ADDRESS must be set when SMTP_HOST is set")
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether env names a development environment, where Postgres and
// Redis are optional and in-memory stores are used instead.
func IsDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads NAME_SECONDS as whole seconds, else NAME as a Go duration.
func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	secondsVar := name + "_SECONDS"
	if v := os.Getenv(secondsVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsVar, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(name); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", name, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func boolEnv(name string, fallback bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}
