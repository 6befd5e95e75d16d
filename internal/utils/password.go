package utils

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted by ValidatePasswordStrength.
const MinPasswordLength = 8

var specialChars = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)

// ErrWeakPassword is returned by ValidatePasswordStrength.  The message
// lists what the password is missing.
var ErrWeakPassword = errors.New("weak password")

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// ValidatePasswordStrength requires at least MinPasswordLength characters
// with an upper-case letter, a lower-case letter, a digit and one of the
// special characters !@#$%^&*(),.?":{}|<>.
func ValidatePasswordStrength(plain string) error {
	var missing []string
	if len(plain) < MinPasswordLength {
		missing = append(missing, "at least 8 characters")
	}
	var upper, lower, digit bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper {
		missing = append(missing, "an upper-case letter")
	}
	if !lower {
		missing = append(missing, "a lower-case letter")
	}
	if !digit {
		missing = append(missing, "a digit")
	}
	if !specialChars.MatchString(plain) {
		missing = append(missing, "a special character")
	}
	if len(missing) == 0 {
		return nil
	}
	return &weakPasswordError{missing: missing}
}

type weakPasswordError struct{ missing []string }

func (e *weakPasswordError) Error() string {
	return "password needs " + strings.Join(e.missing, ", ")
}

func (e *weakPasswordError) Is(target error) bool { return target == ErrWeakPassword }
