package cryptox

import "strings"

const (
	MinPasswordLength = 8

	passwordSymbols = `!@#$%^&*(),.?":{}|<>`
)

// StrengthResult lists every rule the password failed, not just the first.
type StrengthResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidatePasswordStrength checks the password policy: minimum length, upper
// case, lower case, digit and one of the accepted symbols.
func ValidatePasswordStrength(password string) StrengthResult {
	var (
		hasUpper, hasLower, hasDigit, hasSymbol bool
		length                                  int
	)
	for _, r := range password {
		length++
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}

	var errs []string
	if length < MinPasswordLength {
		errs = append(errs, "Password must be at least 8 characters long")
	}
	if !hasUpper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		errs = append(errs, "Password must contain at least one number")
	}
	if !hasSymbol {
		errs = append(errs, "Password must contain at least one special character")
	}

	return StrengthResult{Valid: len(errs) == 0, Errors: errs}
}
