package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// LoginState is the persisted failure counter for one identity. It only
// ever grows between successful logins; a successful login zeroes it.
type LoginState struct {
	FailedLoginAttempts int
	LastFailedLogin     *time.Time
	LockedUntil         *time.Time // set once attempts reach the lockout threshold
}

// LockedAt reports whether the lock is still in force at t.
func (s LoginState) LockedAt(t time.Time) bool {
	return s.LockedUntil != nil && s.LockedUntil.After(t)
}

type Account struct {
	ID           string
	Email        string // unique within a realm, stored lower-cased
	Name         string
	PasswordHash string // argon2id PHC string, or a legacy bcrypt hash
	Role         Role
	LoginState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountSummary is the sanitized view returned to clients.
type AccountSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

func (a Account) Summary() AccountSummary {
	return AccountSummary{
		ID:    a.ID,
		Email: a.Email,
		Name:  a.Name,
		Role:  a.Role,
	}
}

// NormalizeEmail is the canonical identity key used for every lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
