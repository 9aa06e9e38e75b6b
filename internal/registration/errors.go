package registration

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput              = errors.New("invalid input")
	ErrUnprocessableUsernameType = errors.New("username type is invalid")
	ErrInvalidChannelFormat      = errors.New("invalid channel format")
	ErrUsernameConflict          = errors.New("username already in use")
	ErrIdentityCreationRejected  = errors.New("identity creation rejected")
	ErrPasswordChangeRejected    = errors.New("password change rejected")
	ErrNotFound                  = errors.New("not found")
	ErrTokenInvalid              = errors.New("invalid token")
)

// FieldError ties a failure to the request field that caused it.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

func (e *FieldError) Error() string { return e.Message }

func (e *FieldError) Unwrap() error { return e.Err }

func fieldError(field, message string, err error) *FieldError {
	return &FieldError{Field: field, Message: message, Err: err}
}

// StoreError is the first error the identity store reported when it refused an
// operation.
type StoreError struct {
	Code        string
	Description string
	Err         error
}

func (e *StoreError) Error() string { return e.Description }

func (e *StoreError) Unwrap() error { return e.Err }

// ConflictError names the username that is already taken.
type ConflictError struct {
	Username string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Username: '%s' is already in use.", e.Username)
}

func (e *ConflictError) Unwrap() error { return ErrUsernameConflict }
