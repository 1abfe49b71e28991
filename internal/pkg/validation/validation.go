package validation

import (
	"strings"
	"unicode"
)

// passwordSymbols is the accepted punctuation set for the password policy.
const passwordSymbols = `!@#$%^&*(),.?":{}|<>`

// IsValidPassword enforces the signup password policy:
// - at least 6 characters
// - contains at least one digit
// - contains at least one uppercase letter
// - contains at least one symbol from passwordSymbols
func IsValidPassword(password string) bool {
	if len(password) < 6 {
		return false
	}
	hasDigit, hasUpper, hasSymbol := false, false, false
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	return hasDigit && hasUpper && hasSymbol
}

// NormalizePhone strips every non-digit character (+, spaces, dashes,
// parentheses). Idempotent: normalizing an already-normalized value is a
// no-op.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidEmailLocalPart accepts the part before the fixed corporate domain:
// non-empty, no whitespace, no @.
func IsValidEmailLocalPart(local string) bool {
	if strings.TrimSpace(local) == "" {
		return false
	}
	return !strings.ContainsAny(local, "@ \t\n")
}

// IsValidFullName requires a non-empty name after trimming.
func IsValidFullName(name string) bool {
	return strings.TrimSpace(name) != ""
}
