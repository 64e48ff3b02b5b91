package domain

import "time"

type AuditAction string

const (
	AuditLoginSuccess    AuditAction = "login_success"
	AuditLoginFailed     AuditAction = "login_failed"
	AuditAccountLocked   AuditAction = "account_locked"
	AuditLockedAttempt   AuditAction = "login_while_locked"
	AuditPasswordChanged AuditAction = "password_changed"
	AuditLogout          AuditAction = "logout"
)

// AuditEvent is an append-only record of a security relevant action.
type AuditEvent struct {
	ID         string            `json:"id"`
	Realm      Realm             `json:"realm"`
	Action     AuditAction       `json:"action"`
	ActorID    string            `json:"actorId,omitempty"`
	ActorEmail string            `json:"actorEmail,omitempty"`
	IPAddress  string            `json:"ipAddress,omitempty"`
	UserAgent  string            `json:"userAgent,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}
