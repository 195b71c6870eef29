package utils

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
)

const (
	maxEmailLength    = 320
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes
	maxPasswordBytes = 72
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes long")
	ErrPasswordWeak     = errors.New("password must contain uppercase, lowercase, and number")
)

// ValidateEmail reports whether email is a bare addr-spec with a dotted domain
func ValidateEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return false
	}

	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && len(domain)-dot > 2
}

// CheckPassword returns the first password policy violation, if any
func CheckPassword(password string) error {
	switch {
	case len(password) < minPasswordLength:
		return ErrPasswordTooShort
	case len(password) > maxPasswordBytes:
		return ErrPasswordTooLong
	}

	var hasUpper, hasLower, hasNumber bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		}
	}

	if !hasUpper || !hasLower || !hasNumber {
		return ErrPasswordWeak
	}
	return nil
}

// SanitizeEmail normalizes an email for storage and lookup
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
