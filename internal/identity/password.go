package identity

import (
	"strings"
	"unicode"
)

const (
	minPasswordLength = 6
	// maxPasswordBytes is the most bcrypt will hash.
	maxPasswordBytes = 72
)

// PolicyError is a single store-side rejection, keyed by a stable code.
type PolicyError struct {
	Code        string
	Description string
}

func (e PolicyError) Error() string { return e.Description }

// PolicyErrors lists every rule a password or identity failed.
type PolicyErrors []PolicyError

func (e PolicyErrors) Error() string {
	msgs := make([]string, len(e))
	for i, pe := range e {
		msgs[i] = pe.Description
	}
	return strings.Join(msgs, " ")
}

// First returns the first reported error.
func (e PolicyErrors) First() PolicyError {
	if len(e) == 0 {
		return PolicyError{Code: "DefaultError", Description: "An unknown failure has occurred."}
	}
	return e[0]
}

var (
	errPasswordMismatch = PolicyError{Code: "PasswordMismatch", Description: "Incorrect password."}
)

// CheckPassword applies the password policy and returns nil when it passes.
func CheckPassword(password string) error {
	var errs PolicyErrors
	if len(password) < minPasswordLength {
		errs = append(errs, PolicyError{
			Code:        "PasswordTooShort",
			Description: "Passwords must be at least 6 characters.",
		})
	}
	if len(password) > maxPasswordBytes {
		errs = append(errs, PolicyError{
			Code:        "PasswordTooLong",
			Description: "Passwords must be at most 72 bytes long.",
		})
	}

	var digit, lower, upper, other bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case !unicode.IsLetter(r):
			other = true
		}
	}
	if !other {
		errs = append(errs, PolicyError{
			Code:        "PasswordRequiresNonAlphanumeric",
			Description: "Passwords must have at least one non alphanumeric character.",
		})
	}
	if !digit {
		errs = append(errs, PolicyError{
			Code:        "PasswordRequiresDigit",
			Description: "Passwords must have at least one digit ('0'-'9').",
		})
	}
	if !lower {
		errs = append(errs, PolicyError{
			Code:        "PasswordRequiresLower",
			Description: "Passwords must have at least one lowercase ('a'-'z').",
		})
	}
	if !upper {
		errs = append(errs, PolicyError{
			Code:        "PasswordRequiresUpper",
			Description: "Passwords must have at least one uppercase ('A'-'Z').",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
