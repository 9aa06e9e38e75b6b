// Package confirmation issues and verifies the single-use tokens that prove a user
// owns the email address or phone number they registered with.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onesoftdev/idp/internal/identity"
)

// ErrTokenIssuance is returned when a token cannot be issued, most often because the
// identity does not exist.
var ErrTokenIssuance = errors.New("token issuance failed")

// TokenStore is the part of the identity store that mints and checks tokens.
type TokenStore interface {
	FindByID(ctx context.Context, id string) (identity.Identity, error)
	IssueToken(ctx context.Context, id string, purpose identity.Purpose) (string, error)
	VerifyToken(ctx context.Context, id string, purpose identity.Purpose, token string) (bool, error)
}

// Service issues and verifies confirmation tokens.
type Service struct {
	store  TokenStore
	logger *slog.Logger
}

// NewService builds a confirmation service.
func NewService(store TokenStore, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// PurposeFor returns the confirmation purpose matching the channel an identity
// registered with.
func PurposeFor(ident identity.Identity) identity.Purpose {
	if ident.HasPhone() {
		return identity.PurposePhoneConfirmation
	}
	return identity.PurposeEmailConfirmation
}

// Issue mints a token for the identity and purpose.
func (s *Service) Issue(ctx context.Context, identityID string, purpose identity.Purpose) (string, error) {
	if _, err := s.store.FindByID(ctx, identityID); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenIssuance, err)
	}
	token, err := s.store.IssueToken(ctx, identityID, purpose)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenIssuance, err)
	}
	return token, nil
}

// Verify reports whether token is the outstanding token for the identity and purpose.
// Mismatches, expiry and unknown identities are ordinary negative results.
func (s *Service) Verify(ctx context.Context, identityID string, purpose identity.Purpose, token string) bool {
	if identityID == "" || token == "" {
		return false
	}
	ok, err := s.store.VerifyToken(ctx, identityID, purpose, token)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("verify confirmation token",
				slog.String("user_id", identityID),
				slog.String("purpose", string(purpose)),
				slog.Any("error", err),
			)
		}
		return false
	}
	return ok
}
