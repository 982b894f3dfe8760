package vault

import (
	"fmt"
)

// MinPasswordLength is the minimum master password length in bytes.
const MinPasswordLength = 8

// PasswordStrength represents the strength level of a password
type PasswordStrength int

const (
	PasswordWeak PasswordStrength = iota
	PasswordFair
	PasswordStrong
	PasswordVeryStrong
)

// String returns a human-readable representation of password strength
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "weak"
	case PasswordFair:
		return "fair"
	case PasswordStrong:
		return "strong"
	case PasswordVeryStrong:
		return "very strong"
	default:
		return "unknown"
	}
}

// PasswordValidationResult contains the result of password validation
type PasswordValidationResult struct {
	Valid    bool             // Whether password meets minimum requirements
	Strength PasswordStrength // Estimated strength
	Warnings []string         // Suggestions for improvement (not errors)
}

// ValidateMasterPassword checks the length rule and scores strength.
// Only the length is enforced; complexity produces warnings.
func ValidateMasterPassword(password string) *PasswordValidationResult {
	result := &PasswordValidationResult{Valid: true}

	if len(password) < MinPasswordLength {
		result.Valid = false
		result.Strength = PasswordWeak
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
		return result
	}

	// One point per length step and per character class
	score := 1
	if len(password) >= 12 {
		score++
	}
	if len(password) >= 16 {
		score++
	}

	var hasLower, hasUpper, hasDigit, hasOther bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasOther = true
		}
	}
	classes := 0
	for _, ok := range []bool{hasLower, hasUpper, hasDigit, hasOther} {
		if ok {
			classes++
		}
	}
	score += classes

	switch {
	case score <= 2:
		result.Strength = PasswordWeak
	case score <= 4:
		result.Strength = PasswordFair
	case score == 5:
		result.Strength = PasswordStrong
	default:
		result.Strength = PasswordVeryStrong
	}

	if classes < 2 {
		result.Warnings = append(result.Warnings,
			"Consider using a mix of uppercase, lowercase, numbers, and symbols")
	}
	if len(password) < 12 {
		result.Warnings = append(result.Warnings,
			"Longer passwords (12+ characters) are more secure")
	}
	if isSingleRune(password) {
		result.Warnings = append(result.Warnings,
			"Password repeats a single character")
	}

	return result
}

func isSingleRune(s string) bool {
	runes := []rune(s)
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
