// Package validate provides input validation for client-supplied payment fields.
package validate

import (
	"errors"
	"regexp"
	"strings"
)

// Email validation errors.
var (
	ErrEmptyEmail   = errors.New("email is empty")
	ErrEmailTooLong = errors.New("email exceeds length limits")
	ErrInvalidEmail = errors.New("invalid email format")
)

// emailPattern is a reasonable regex for basic email validation.
// It matches most common email formats; stricter validation happens at
// the SMTP level.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Email validates an email address format.
// Returns the normalized (lowercased, trimmed) email and an error if invalid.
func Email(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if email == "" {
		return "", ErrEmptyEmail
	}

	// RFC 5321 length constraints.
	if len(email) > 254 {
		return "", ErrEmailTooLong
	}

	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "", ErrInvalidEmail
	}

	localPart, domain := parts[0], parts[1]
	if len(localPart) > 64 {
		return "", ErrEmailTooLong
	}
	if len(domain) > 255 {
		return "", ErrEmailTooLong
	}
	if !strings.Contains(domain, ".") {
		return "", ErrInvalidEmail
	}

	return email, nil
}
