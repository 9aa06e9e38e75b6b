package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultEmailTokenTTL = 24 * time.Hour
	defaultPhoneTokenTTL = 10 * time.Minute
)

// ErrInvalidToken is returned by ConfirmEmail when the token does not verify.
var ErrInvalidToken = errors.New("invalid token")

// Options tunes token lifetimes and password hashing. Zero values select defaults.
type Options struct {
	EmailTokenTTL time.Duration
	PhoneTokenTTL time.Duration
	HashCost      int
	// Logger receives token cleanup failures. Nil disables them.
	Logger *slog.Logger
}

// Manager owns identity lifecycle: creation under the password policy, password
// changes, and the confirmation tokens that prove channel ownership.
type Manager struct {
	store  Store
	tokens TokenStore
	opts   Options
}

// NewManager creates a Manager over the given stores.
func NewManager(store Store, tokens TokenStore, opts Options) *Manager {
	if opts.EmailTokenTTL <= 0 {
		opts.EmailTokenTTL = defaultEmailTokenTTL
	}
	if opts.PhoneTokenTTL <= 0 {
		opts.PhoneTokenTTL = defaultPhoneTokenTTL
	}
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	return &Manager{store: store, tokens: tokens, opts: opts}
}

// Create validates the identity and password, hashes the password and stores the
// identity. Policy failures are returned as PolicyErrors; a taken username as
// ErrDuplicateUsername.
func (m *Manager) Create(ctx context.Context, ident Identity, password string) (Identity, error) {
	var errs PolicyErrors
	if ident.Username == "" {
		errs = append(errs, PolicyError{Code: "InvalidUserName", Description: "User name is invalid."})
	}
	if ident.HasEmail() == ident.HasPhone() {
		errs = append(errs, PolicyError{
			Code:        "InvalidContactChannel",
			Description: "Exactly one of email or phone number must be provided.",
		})
	}
	if err := CheckPassword(password); err != nil {
		var pe PolicyErrors
		if errors.As(err, &pe) {
			errs = append(errs, pe...)
		}
	}
	if len(errs) > 0 {
		return Identity{}, errs
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.opts.HashCost)
	if err != nil {
		return Identity{}, err
	}

	now := time.Now().UTC()
	ident.ID = uuid.New().String()
	ident.PasswordHash = hash
	ident.EmailConfirmed = false
	ident.PhoneConfirmed = false
	ident.CreatedAt = now
	ident.UpdatedAt = now

	if err := m.store.Create(ctx, ident); err != nil {
		return Identity{}, err
	}
	return ident, nil
}

// FindByID fetches an identity by id.
func (m *Manager) FindByID(ctx context.Context, id string) (Identity, error) {
	return m.store.FindByID(ctx, id)
}

// FindByUsername fetches an identity by username, ignoring case.
func (m *Manager) FindByUsername(ctx context.Context, username string) (Identity, error) {
	return m.store.FindByUsername(ctx, username)
}

// Delete removes an identity and any outstanding confirmation tokens.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	for _, p := range []Purpose{PurposeEmailConfirmation, PurposePhoneConfirmation} {
		if err := m.tokens.Delete(ctx, tokenKey(id, p)); err != nil && m.opts.Logger != nil {
			m.opts.Logger.Warn("drop confirmation token of deleted identity",
				slog.String("user_id", id),
				slog.String("purpose", string(p)),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// Count returns the number of stored identities.
func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

// ChangePassword replaces the password after checking the current one.
func (m *Manager) ChangePassword(ctx context.Context, id, current, next string) error {
	ident, err := m.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword(ident.PasswordHash, []byte(current)); err != nil {
		return PolicyErrors{errPasswordMismatch}
	}
	if err := CheckPassword(next); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), m.opts.HashCost)
	if err != nil {
		return err
	}
	return m.store.UpdatePasswordHash(ctx, id, hash)
}

// IssueToken mints a token for the identity and purpose, replacing any token still
// outstanding for the same pair.
func (m *Manager) IssueToken(ctx context.Context, id string, purpose Purpose) (string, error) {
	if !purpose.Valid() {
		return "", fmt.Errorf("unknown token purpose %q", purpose)
	}
	if _, err := m.store.FindByID(ctx, id); err != nil {
		return "", err
	}

	token, err := newToken(purpose)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	if err := m.tokens.Save(ctx, tokenKey(id, purpose), hashToken(token), m.ttl(purpose)); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// VerifyToken checks the token against the outstanding one and consumes it on a
// match. A missing, expired or different token yields false without an error.
// Concurrent calls with the same token succeed at most once.
func (m *Manager) VerifyToken(ctx context.Context, id string, purpose Purpose, token string) (bool, error) {
	if token == "" || !purpose.Valid() {
		return false, nil
	}
	return m.tokens.Consume(ctx, tokenKey(id, purpose), hashToken(token))
}

// ConfirmEmail verifies an email confirmation token and marks the email confirmed.
func (m *Manager) ConfirmEmail(ctx context.Context, id, token string) error {
	ok, err := m.VerifyToken(ctx, id, PurposeEmailConfirmation, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidToken
	}
	return m.store.SetEmailConfirmed(ctx, id)
}

// MarkPhoneConfirmed marks the phone number confirmed. Callers verify the token first.
func (m *Manager) MarkPhoneConfirmed(ctx context.Context, id string) error {
	return m.store.SetPhoneConfirmed(ctx, id)
}

func (m *Manager) ttl(purpose Purpose) time.Duration {
	if purpose == PurposePhoneConfirmation {
		return m.opts.PhoneTokenTTL
	}
	return m.opts.EmailTokenTTL
}
