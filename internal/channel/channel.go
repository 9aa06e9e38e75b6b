// Package channel validates the contact channel a user registers with and models it as
// a tagged value, so callers branch on the kind once at parse time.
package channel

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the medium used as username.
type Kind string

const (
	KindEmail Kind = "email"
	KindPhone Kind = "phone"
)

// ErrUnknownKind is returned by Parse when the username type is neither email nor phone.
var ErrUnknownKind = errors.New("username type is invalid")

// FormatError reports an address that does not match the declared kind.
type FormatError struct {
	Field string
	Kind  Kind
}

func (e *FormatError) Error() string {
	switch e.Kind {
	case KindEmail:
		return "Email address input is invalid."
	case KindPhone:
		return "Phone number input is invalid."
	default:
		return fmt.Sprintf("%s input is invalid.", e.Kind)
	}
}

// Channel is either an email address or a phone number. The zero value is invalid.
type Channel struct {
	kind    Kind
	address string
}

// Email wraps an already validated email address.
func Email(address string) Channel { return Channel{kind: KindEmail, address: address} }

// Phone wraps an already validated phone number.
func Phone(number string) Channel { return Channel{kind: KindPhone, address: number} }

// Kind returns the channel kind.
func (c Channel) Kind() Kind { return c.kind }

// Address returns the email address or phone number.
func (c Channel) Address() string { return c.address }

// IsZero reports whether the channel was never set.
func (c Channel) IsZero() bool { return c.kind == "" }

func (c Channel) String() string { return string(c.kind) + ":" + c.address }

// ParseKind maps a username type from the wire ("email" or "phone", any case) to a Kind.
func ParseKind(usernameType string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(usernameType))) {
	case KindEmail:
		return KindEmail, nil
	case KindPhone:
		return KindPhone, nil
	default:
		return "", ErrUnknownKind
	}
}

// Parse validates username against the declared usernameType and returns the channel.
func Parse(usernameType, username string) (Channel, error) {
	kind, err := ParseKind(usernameType)
	if err != nil {
		return Channel{}, err
	}

	switch kind {
	case KindEmail:
		if !ValidEmail(username) {
			return Channel{}, &FormatError{Field: "usernameType", Kind: kind}
		}
		return Email(username), nil
	default:
		if !ValidPhone(username) {
			return Channel{}, &FormatError{Field: "usernameType", Kind: kind}
		}
		return Phone(username), nil
	}
}
