package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
		errors   int
	}{
		{"empty violates every rule", "", false, 5},
		{"short lowercase only", "abc", false, 4},
		{"minimal valid", "Abcdef1!", true, 0},
		{"no symbol", "Abcdefg1", false, 1},
		{"no digit", "Abcdefg!", false, 1},
		{"no upper", "abcdef1!", false, 1},
		{"no lower", "ABCDEF1!", false, 1},
		{"too short but mixed", "Ab1!", false, 1},
		{"symbol outside the set", "Abcdef1~", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidatePasswordStrength(tt.password)
			require.Equal(t, tt.valid, res.Valid)
			require.Len(t, res.Errors, tt.errors, "errors: %v", res.Errors)
		})
	}
}

func TestValidatePasswordStrength_ReportsEachRule(t *testing.T) {
	res := ValidatePasswordStrength("")
	require.Equal(t, []string{
		"Password must be at least 8 characters long",
		"Password must contain at least one uppercase letter",
		"Password must contain at least one lowercase letter",
		"Password must contain at least one number",
		"Password must contain at least one special character",
	}, res.Errors)

	// "abc" satisfies the lowercase rule, everything else is reported
	res = ValidatePasswordStrength("abc")
	require.NotContains(t, res.Errors, "Password must contain at least one lowercase letter")
}
