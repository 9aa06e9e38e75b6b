package registration

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/onesoftdev/idp/internal/identity"
	"github.com/onesoftdev/idp/internal/session"
)

// Handler exposes registration and confirmation endpoints.
type Handler struct {
	service      *Service
	secureCookie bool
	logger       *slog.Logger
}

// NewHandler builds the HTTP handler. secureCookie marks the session cookie Secure.
func NewHandler(service *Service, secureCookie bool, logger *slog.Logger) *Handler {
	return &Handler{service: service, secureCookie: secureCookie, logger: logger}
}

type userResponse struct {
	ID                   string    `json:"id"`
	UserName             string    `json:"userName"`
	Email                *string   `json:"email"`
	EmailConfirmed       bool      `json:"emailConfirmed"`
	PhoneNumber          *string   `json:"phoneNumber"`
	PhoneNumberConfirmed bool      `json:"phoneNumberConfirmed"`
	TwoFactorEnabled     bool      `json:"twoFactorEnabled"`
	CreatedAt            time.Time `json:"createdAt"`
}

func toResponse(ident identity.Identity) userResponse {
	return userResponse{
		ID:                   ident.ID,
		UserName:             ident.Username,
		Email:                optional(ident.Email),
		EmailConfirmed:       ident.EmailConfirmed,
		PhoneNumber:          optional(ident.Phone),
		PhoneNumberConfirmed: ident.PhoneConfirmed,
		TwoFactorEnabled:     ident.TwoFactorEnabled,
		CreatedAt:            ident.CreatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create registers a user and signs them in.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "request body is invalid")
	}
	res, err := h.service.Register(c.UserContext(), &req)
	if err != nil {
		return h.respondError(c, err)
	}
	if res.Session != nil {
		c.Cookie(h.sessionCookie(*res.Session))
	}
	c.Set(fiber.HeaderLocation, c.BaseURL()+res.Location)
	return c.Status(http.StatusCreated).JSON(toResponse(res.Identity))
}

// GetByID returns a user by id.
func (h *Handler) GetByID(c *fiber.Ctx) error {
	ident, err := h.service.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(ident))
}

// GetByUsername returns a user by username.
func (h *Handler) GetByUsername(c *fiber.Ctx) error {
	ident, err := h.service.GetByUsername(c.UserContext(), c.Params("username"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(ident))
}

// Delete removes a user.
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword replaces a user's password.
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "request body is invalid")
	}
	if err := h.service.ChangePassword(c.UserContext(), c.Params("id"), req.CurrentPassword, req.NewPassword); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// ConfirmEmail handles the link sent in the confirmation email.
func (h *Handler) ConfirmEmail(c *fiber.Ctx) error {
	text, err := h.service.ConfirmEmail(c.UserContext(), c.Params("userId"), c.Query("securityCode"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(http.StatusOK).SendString(text)
}

// ConfirmPhone checks the code sent by SMS.
func (h *Handler) ConfirmPhone(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		token = c.FormValue("token")
	}
	text, err := h.service.ConfirmPhone(c.UserContext(), c.Params("userId"), token)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(http.StatusOK).SendString(text)
}

// Me returns the identity of the signed-in user. It runs behind the session
// middleware, which stores the user id in locals.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return c.SendStatus(http.StatusUnauthorized)
	}
	ident, err := h.service.GetByID(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "user not found")
	}
	return c.Status(http.StatusOK).JSON(toResponse(ident))
}

func (h *Handler) sessionCookie(s session.Session) *fiber.Cookie {
	cookie := &fiber.Cookie{
		Name:     session.CookieName,
		Value:    s.Token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if s.Persistent {
		cookie.Expires = s.ExpiresAt
	}
	return cookie
}

func (h *Handler) respondError(c *fiber.Ctx, err error) error {
	var (
		fieldErr    *FieldError
		conflictErr *ConflictError
		storeErr    *StoreError
	)
	switch {
	case errors.As(err, &fieldErr):
		if errors.Is(fieldErr, ErrUnprocessableUsernameType) {
			return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"error": fieldErr.Message})
		}
		if fieldErr.Field == "" {
			return fiber.NewError(http.StatusBadRequest, fieldErr.Message)
		}
		return validationProblem(c, fieldErr.Field, fieldErr.Message)
	case errors.As(err, &conflictErr):
		return fiber.NewError(http.StatusConflict, conflictErr.Error())
	case errors.As(err, &storeErr):
		if errors.Is(storeErr, ErrPasswordChangeRejected) {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": storeErr.Code, "error": storeErr.Description})
		}
		return validationProblem(c, "", storeErr.Description)
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, "request is invalid")
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "user not found")
	case errors.Is(err, ErrTokenInvalid):
		return fiber.NewError(http.StatusBadRequest, "Invalid token.")
	default:
		if h.logger != nil {
			h.logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Any("error", err),
			)
		}
		return fiber.NewError(http.StatusInternalServerError, "internal server error")
	}
}

func validationProblem(c *fiber.Ctx, field, message string) error {
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{
		"errors": fiber.Map{field: []string{message}},
	})
}
