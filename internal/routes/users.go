package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/onesoftdev/idp/internal/registration"
)

// UserRouteMiddleware are the optional guards in front of the user endpoints. Nil
// entries are skipped.
type UserRouteMiddleware struct {
	Idempotency fiber.Handler
	ConfirmRate fiber.Handler
	Session     fiber.Handler
}

// RegisterUserRoutes wires registration, lookup and confirmation endpoints under /users.
func RegisterUserRoutes(r fiber.Router, h *registration.Handler, mw UserRouteMiddleware) {
	users := r.Group("/users")

	users.Post("/", chain(h.Create, mw.Idempotency)...)
	if mw.Session != nil {
		users.Get("/me", mw.Session, h.Me)
	}
	users.Get("/username/:username", h.GetByUsername)

	security := users.Group("/security")
	security.Post("/changepassword/:id", h.ChangePassword)
	security.Get("/confirmemail/:userId", chain(h.ConfirmEmail, mw.ConfirmRate)...)
	security.Get("/confirmphonenumber/:userId", chain(h.ConfirmPhone, mw.ConfirmRate)...)
	security.Post("/confirmphonenumber/:userId", chain(h.ConfirmPhone, mw.ConfirmRate)...)

	users.Get("/:id", h.GetByID)
	users.Delete("/:id", h.Delete)
}

func chain(handler fiber.Handler, guards ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(guards)+1)
	for _, g := range guards {
		if g != nil {
			out = append(out, g)
		}
	}
	return append(out, handler)
}
