package service

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrLockoutContention  = errors.New("lockout state kept changing underneath us")
	ErrAccountExists      = errors.New("account already exists")
)

// FieldIssue is one failed input rule.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for malformed input before any account state
// is read.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		msgs = append(msgs, i.Field+": "+i.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// RateLimitError means the request fingerprint is over its budget.
type RateLimitError struct {
	// Blocked is true during a block period, false for plain throttling
	Blocked    bool
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *RateLimitError) Error() string {
	if e.Blocked {
		return fmt.Sprintf("rate limited: blocked for %s", e.RetryAfter)
	}
	return fmt.Sprintf("rate limited: retry in %s", e.RetryAfter)
}

// LockoutError means the account is locked until Until.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	return "account locked until " + e.Until.UTC().Format(time.RFC3339)
}

// CredentialError is a failed password check. It deliberately looks the same
// for unknown emails and wrong passwords.
type CredentialError struct {
	RemainingAttempts int
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("invalid credentials (%d attempts remaining)", e.RemainingAttempts)
}

func (e *CredentialError) Unwrap() error { return ErrInvalidCredentials }

// InternalError wraps persistence and infrastructure failures. Callers fail
// closed and never reveal Err to clients.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *InternalError) Unwrap() error { return e.Err }

func internal(op string, err error) error {
	var ie *InternalError
	if errors.As(err, &ie) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}
