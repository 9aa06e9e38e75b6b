package infra

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Backends holds the optional shared connections. A nil field means the backend
// is not configured and in-memory stores are used.
type Backends struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Options selects the backends to open. An empty URL leaves that backend out.
type Options struct {
	DatabaseURL string
	RedisURL    string
	// AppName tags Postgres connections.
	AppName string
}

// Connect opens every backend whose URL is set.
func Connect(ctx context.Context, opts Options) (Backends, error) {
	var b Backends
	if opts.DatabaseURL != "" {
		db, err := NewPostgresPool(ctx, opts.DatabaseURL, opts.AppName)
		if err != nil {
			return Backends{}, err
		}
		b.DB = db
	}
	if opts.RedisURL != "" {
		cache, err := NewRedisClient(ctx, opts.RedisURL)
		if err != nil {
			b.Close(nil)
			return Backends{}, err
		}
		b.Cache = cache
	}
	return b, nil
}

// Close releases the open connections.
func (b Backends) Close(logger *slog.Logger) {
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil && logger != nil {
			logger.Warn("close redis", "error", err)
		}
	}
	if b.DB != nil {
		b.DB.Close()
	}
}
