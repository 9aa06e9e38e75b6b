package identity

import (
	"strings"
	"time"
)

// Identity represents a provisioned account. Exactly one of Email or Phone is set,
// chosen by the channel the user registered with.
type Identity struct {
	ID               string
	Username         string
	Email            string
	Phone            string
	EmailConfirmed   bool
	PhoneConfirmed   bool
	TwoFactorEnabled bool
	PasswordHash     []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasEmail reports whether the identity registered with an email address.
func (i Identity) HasEmail() bool { return i.Email != "" }

// HasPhone reports whether the identity registered with a phone number.
func (i Identity) HasPhone() bool { return i.Phone != "" }

// Purpose scopes a confirmation token.
type Purpose string

const (
	PurposeEmailConfirmation Purpose = "email_confirmation"
	PurposePhoneConfirmation Purpose = "phone_confirmation"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeEmailConfirmation || p == PurposePhoneConfirmation
}

// NormalizeUsername returns the lookup key for a username. Lookups are
// case-insensitive.
func NormalizeUsername(username string) string {
	return strings.ToUpper(strings.TrimSpace(username))
}
