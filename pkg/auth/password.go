package auth

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 6
	MaxPasswordLen = 72 // bcrypt ignores input past 72 bytes

	// MinStrength is the lowest Strength score accepted for new passwords.
	MinStrength = 3
	MaxStrength = 5
)

// ErrPasswordPolicy is returned when a password fails the length policy.
var ErrPasswordPolicy = fmt.Errorf("password must be between %d and %d characters", MinPasswordLen, MaxPasswordLen)

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword enforces the provider-side length policy. Strength
// scoring is a client-side soft gate and is not enforced here.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen || len(password) > MaxPasswordLen {
		return ErrPasswordPolicy
	}
	return nil
}

// Strength scores a password from 0 to 5: one point each for at least 7
// characters, at least 11 characters, an uppercase letter, a digit, and a
// character that is not an ASCII letter or digit.
func Strength(password string) int {
	if password == "" {
		return 0
	}

	score := 0
	n := utf8.RuneCountInString(password)
	if n >= 7 {
		score++
	}
	if n >= 11 {
		score++
	}

	var hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'z':
		default:
			hasSymbol = true
		}
	}
	if hasUpper {
		score++
	}
	if hasDigit {
		score++
	}
	if hasSymbol {
		score++
	}
	return score
}
