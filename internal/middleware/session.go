package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/onesoftdev/idp/internal/session"
)

// SessionValidator validates session tokens.
type SessionValidator interface {
	Validate(token string) (*session.Claims, error)
}

// SessionAuth requires a valid session, read from the session cookie or a bearer
// token, and stores the user id in locals under "user_id".
func SessionAuth(sessions SessionValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Cookies(session.CookieName)
		if tokenStr == "" {
			authz := c.Get(fiber.HeaderAuthorization)
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				tokenStr = strings.TrimSpace(authz[len("Bearer "):])
			}
		}
		if tokenStr == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing session")
		}

		claims, err := sessions.Validate(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}

		c.Locals("user_id", claims.Subject)
		return c.Next()
	}
}
