// Package registration provisions identities and confirms ownership of the email
// address or phone number each one registered with.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/onesoftdev/idp/internal/channel"
	"github.com/onesoftdev/idp/internal/confirmation"
	"github.com/onesoftdev/idp/internal/identity"
	"github.com/onesoftdev/idp/internal/metrics"
	"github.com/onesoftdev/idp/internal/session"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 100

	// EmailConfirmedText is returned after an email address is confirmed.
	EmailConfirmedText = "Thank you for confirming your email. This page may be closed and you can continue with the mobile application."
	// PhoneConfirmedText is returned after a phone number is confirmed.
	PhoneConfirmedText = "Thank you for confirming your mobile number. This page may be closed and you can continue with the mobile application."
)

// IdentityStore is the identity store as seen by registration.
type IdentityStore interface {
	FindByID(ctx context.Context, id string) (identity.Identity, error)
	FindByUsername(ctx context.Context, username string) (identity.Identity, error)
	Create(ctx context.Context, ident identity.Identity, password string) (identity.Identity, error)
	Delete(ctx context.Context, id string) error
	ChangePassword(ctx context.Context, id, current, next string) error
	ConfirmEmail(ctx context.Context, id, token string) error
	MarkPhoneConfirmed(ctx context.Context, id string) error
}

// Confirmations issues and verifies confirmation tokens.
type Confirmations interface {
	Issue(ctx context.Context, identityID string, purpose identity.Purpose) (string, error)
	Verify(ctx context.Context, identityID string, purpose identity.Purpose, token string) bool
}

// Notifier delivers a confirmation token. It never fails from the caller's view.
type Notifier interface {
	Notify(ctx context.Context, ident identity.Identity, purpose identity.Purpose, token string)
}

// SignInManager establishes a session for an identity.
type SignInManager interface {
	SignIn(ctx context.Context, ident identity.Identity, persistent bool) (session.Session, error)
}

// Request is a registration request.
type Request struct {
	UsernameType string `json:"usernameType"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

// Result is a completed registration. Session is nil when sign-in failed.
type Result struct {
	Identity identity.Identity
	Session  *session.Session
	Location string
}

// Service runs registration and channel confirmation.
type Service struct {
	store    IdentityStore
	tokens   Confirmations
	notifier Notifier
	sessions SignInManager
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService wires a registration service.
func NewService(store IdentityStore, tokens Confirmations, notifier Notifier, sessions SignInManager, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		sessions: sessions,
		logger:   logger,
		metrics:  m,
	}
}

// Location returns the path the identity can be fetched from.
func Location(id string) string {
	return "/api/users/" + id
}

// Register creates an identity for the requested channel, sends the confirmation
// token and signs the new user in. Delivery and sign-in failures do not fail the
// registration.
func (s *Service) Register(ctx context.Context, req *Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	ch, err := channel.Parse(req.UsernameType, req.Username)
	if err != nil {
		var formatErr *channel.FormatError
		switch {
		case errors.Is(err, channel.ErrUnknownKind):
			return Result{}, fieldError("usernameType", "UserNameType is invalid.", ErrUnprocessableUsernameType)
		case errors.As(err, &formatErr):
			return Result{}, fieldError(formatErr.Field, formatErr.Error(), ErrInvalidChannelFormat)
		default:
			return Result{}, err
		}
	}

	if _, err := s.store.FindByUsername(ctx, req.Username); err == nil {
		return Result{}, &ConflictError{Username: req.Username}
	} else if !errors.Is(err, identity.ErrNotFound) {
		return Result{}, fmt.Errorf("lookup username: %w", err)
	}

	ident := identity.Identity{Username: req.Username}
	switch ch.Kind() {
	case channel.KindEmail:
		ident.Email = ch.Address()
	case channel.KindPhone:
		ident.Phone = ch.Address()
	}

	created, err := s.store.Create(ctx, ident, req.Password)
	if err != nil {
		return Result{}, creationError(req.Username, err)
	}
	s.metrics.IncUsersCreated(string(ch.Kind()))
	s.logInfo("identity created",
		slog.String("user_id", created.ID),
		slog.String("channel", string(ch.Kind())),
	)

	purpose := confirmation.PurposeFor(created)
	if token, err := s.tokens.Issue(ctx, created.ID, purpose); err != nil {
		s.metrics.IncNotificationFailures(string(ch.Kind()))
		s.logError("issue confirmation token", created.ID, err)
	} else {
		s.notifier.Notify(ctx, created, purpose, token)
	}

	result := Result{Identity: created, Location: Location(created.ID)}
	sess, err := s.sessions.SignIn(ctx, created, false)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("sign in after registration",
				slog.String("user_id", created.ID),
				slog.Any("error", err),
			)
		}
		return result, nil
	}
	result.Session = &sess
	return result, nil
}

// GetByID returns the identity with the given id.
func (s *Service) GetByID(ctx context.Context, id string) (identity.Identity, error) {
	if id == "" {
		return identity.Identity{}, invalidInput("User Id is null.")
	}
	return s.find(ctx, id)
}

// GetByUsername returns the identity registered with username.
func (s *Service) GetByUsername(ctx context.Context, username string) (identity.Identity, error) {
	if username == "" {
		return identity.Identity{}, invalidInput("Username is null")
	}
	ident, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return identity.Identity{}, storeLookupError(err)
	}
	return ident, nil
}

// Delete removes the identity with the given id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return storeLookupError(err)
	}
	s.logInfo("identity deleted", slog.String("user_id", id))
	return nil
}

// ChangePassword replaces the password of identity id. Only presence of both
// passwords is checked here; the store enforces the password policy.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if current == "" || next == "" {
		return fieldError("currentPassword", "Supplied passwords are incorrect or blank", ErrInvalidInput)
	}

	err := s.store.ChangePassword(ctx, id, current, next)
	var policy identity.PolicyErrors
	switch {
	case err == nil:
		s.logInfo("password changed", slog.String("user_id", id))
		return nil
	case errors.As(err, &policy):
		first := policy.First()
		return &StoreError{Code: first.Code, Description: first.Description, Err: ErrPasswordChangeRejected}
	default:
		return storeLookupError(err)
	}
}

// ConfirmEmail confirms the email address of userID with the token sent to it.
// Confirming an already confirmed address succeeds without consuming the token.
func (s *Service) ConfirmEmail(ctx context.Context, userID, token string) (string, error) {
	if userID == "" || token == "" {
		return "", invalidInput("User Id or Security Code is null.")
	}
	ident, err := s.find(ctx, userID)
	if err != nil {
		return "", err
	}
	if ident.EmailConfirmed {
		return EmailConfirmedText, nil
	}

	if err := s.store.ConfirmEmail(ctx, userID, token); err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return "", ErrTokenInvalid
		}
		return "", storeLookupError(err)
	}
	s.confirmed(channel.KindEmail, userID)
	return EmailConfirmedText, nil
}

// ConfirmPhone confirms the phone number of userID with the code sent to it.
// Confirming an already confirmed number succeeds without consuming the code.
func (s *Service) ConfirmPhone(ctx context.Context, userID, token string) (string, error) {
	if userID == "" || token == "" {
		return "", invalidInput("User Id or Security Code is null.")
	}
	ident, err := s.find(ctx, userID)
	if err != nil {
		return "", err
	}
	if ident.PhoneConfirmed {
		return PhoneConfirmedText, nil
	}

	if !s.tokens.Verify(ctx, userID, identity.PurposePhoneConfirmation, token) {
		return "", ErrTokenInvalid
	}
	if err := s.store.MarkPhoneConfirmed(ctx, userID); err != nil {
		return "", storeLookupError(err)
	}
	s.confirmed(channel.KindPhone, userID)
	return PhoneConfirmedText, nil
}

func (s *Service) find(ctx context.Context, id string) (identity.Identity, error) {
	if id == "" {
		return identity.Identity{}, ErrNotFound
	}
	ident, err := s.store.FindByID(ctx, id)
	if err != nil {
		return identity.Identity{}, storeLookupError(err)
	}
	return ident, nil
}

func (s *Service) confirmed(kind channel.Kind, userID string) {
	s.metrics.IncChannelsConfirmed(string(kind))
	s.logInfo("channel confirmed",
		slog.String("user_id", userID),
		slog.String("channel", string(kind)),
	)
}

func (s *Service) logInfo(msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Info(msg, attrs...)
	}
}

func (s *Service) logError(msg, userID string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, slog.String("user_id", userID), slog.Any("error", err))
	}
}

func (r *Request) validate() error {
	if r == nil {
		return ErrInvalidInput
	}
	if r.UsernameType == "" {
		return fieldError("usernameType", "The UsernameType field is required.", ErrInvalidInput)
	}
	if r.Username == "" {
		return fieldError("username", "The Username field is required.", ErrInvalidInput)
	}
	if r.Password == "" {
		return fieldError("password", "The Password field is required.", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(r.Password); n < minPasswordLength || n > maxPasswordLength {
		return fieldError("password", fmt.Sprintf("The Password must be at least %d and at max %d characters long.",
			minPasswordLength, maxPasswordLength), ErrInvalidInput)
	}
	return nil
}

func invalidInput(message string) error {
	return fieldError("", message, ErrInvalidInput)
}

func creationError(username string, err error) error {
	var policy identity.PolicyErrors
	switch {
	case errors.Is(err, identity.ErrDuplicateUsername):
		return &ConflictError{Username: username}
	case errors.As(err, &policy):
		first := policy.First()
		return &StoreError{Code: first.Code, Description: first.Description, Err: ErrIdentityCreationRejected}
	default:
		return fmt.Errorf("create identity: %w", err)
	}
}

func storeLookupError(err error) error {
	if errors.Is(err, identity.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
