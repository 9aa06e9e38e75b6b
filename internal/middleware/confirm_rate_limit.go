package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const confirmRateLimitPrefix = "rl:confirm:"

// ConfirmRateLimit limits confirmation attempts per user id, falling back to the
// client IP, using a Redis counter per minute. Without Redis, or when Redis errors,
// requests pass.
func ConfirmRateLimit(cache *redis.Client, param string, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		subject := strings.TrimSpace(c.Params(param))
		if subject == "" {
			subject = c.IP()
		}
		key := confirmRateLimitPrefix + subject
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err == nil && cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many confirmation attempts, try again later")
		}
		return c.Next()
	}
}
