package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/aussiebroadwan/authgate/internal/authgate/store"
	"github.com/aussiebroadwan/authgate/pkg/cryptox"
	"github.com/aussiebroadwan/authgate/pkg/ratelimit"
	"github.com/aussiebroadwan/authgate/pkg/slogx"
)

const (
	MaxEmailLength    = 255
	MaxPasswordLength = 128
)

// Auditor receives security events. Implementations must not fail the
// caller; audit.Recorder logs and swallows sink errors.
type Auditor interface {
	Record(ctx context.Context, e domain.AuditEvent)
}

type LoginRequest struct {
	Realm      domain.Realm
	Email      string
	Password   string
	RememberMe bool

	// Fingerprint keys the rate limiter, derived from the client IP alone
	Fingerprint string
	IP          string
	UserAgent   string
}

type LoginResult struct {
	Account domain.AccountSummary
	Tokens  domain.TokenPair
}

// LoginService runs the login protocol shared by every realm: rate limit,
// validate, lockout check, credential check, then either issue tokens and
// reset counters or record the failure.
type LoginService struct {
	Store   store.Store
	Limiter *ratelimit.Limiter
	Policy  ratelimit.Policy
	Lockout *LockoutTracker
	Tokens  *TokenService
	Audit   Auditor
	Retry   store.RetryPolicy
	Now     func() time.Time
}

func (s *LoginService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *LoginService) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	l := slogx.FromContext(ctx).With("realm", req.Realm)

	if d := s.Limiter.Check(req.Fingerprint, s.Policy); !d.Allowed {
		l.Warn("login rate limited", "blocked", d.Blocked, "reset_at", d.ResetAt)
		return LoginResult{}, &RateLimitError{
			Blocked:    d.Blocked,
			RetryAfter: d.RetryAfter(s.now()),
			ResetAt:    d.ResetAt,
		}
	}

	if err := ValidateLoginRequest(req.Email, req.Password); err != nil {
		return LoginResult{}, err
	}
	email := domain.NormalizeEmail(req.Email)
	l = l.With("email", email)

	status, err := s.Lockout.Check(ctx, req.Realm, email)
	if err != nil {
		return LoginResult{}, err
	}
	if status.Locked {
		l.Info("login attempt on locked account", "locked_until", status.LockoutUntil)
		s.audit(ctx, req, domain.AuditLockedAttempt, "", map[string]string{
			"lockedUntil": status.LockoutUntil.Format(time.RFC3339),
		})
		return LoginResult{}, &LockoutError{Until: *status.LockoutUntil}
	}

	acct, err := store.RetryValue(ctx, s.Retry, func(ctx context.Context) (domain.Account, error) {
		return s.Store.Accounts(req.Realm).GetByEmail(ctx, email)
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		spendDummyVerify(req.Password)
		return LoginResult{}, s.fail(ctx, req, email, status.Attempts, "")
	case err != nil:
		return LoginResult{}, internal("login load account", err)
	}

	if err := cryptox.VerifyPassword(req.Password, acct.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Error("stored password hash unusable", "account_id", acct.ID, "error", err)
		}
		return LoginResult{}, s.fail(ctx, req, email, status.Attempts, acct.ID)
	}

	tokens, err := s.Tokens.GenerateTokenPair(req.Realm, acct.ID, acct.Email, req.RememberMe)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.Lockout.Reset(ctx, req.Realm, email); err != nil {
		return LoginResult{}, err
	}
	s.Limiter.RecordSuccess(req.Fingerprint)

	if cryptox.NeedsRehash(acct.PasswordHash) {
		s.rehash(ctx, req.Realm, acct.ID, req.Password)
	}

	l.Info("login succeeded", "account_id", acct.ID, "persistent", req.RememberMe)
	s.audit(ctx, req, domain.AuditLoginSuccess, acct.ID, nil)

	return LoginResult{Account: acct.Summary(), Tokens: tokens}, nil
}

// fail records the failed attempt and builds the client facing error.
// attemptsBefore is the count seen by the lockout check, so the fifth
// failure in a row reports zero attempts left.
func (s *LoginService) fail(ctx context.Context, req LoginRequest, email string, attemptsBefore int, accountID string) error {
	st, err := s.Lockout.RecordFailure(ctx, req.Realm, email)
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("login failed", "realm", req.Realm, "email", email, "attempts", st.Attempts)
	s.audit(ctx, req, domain.AuditLoginFailed, accountID, nil)
	if st.Locked {
		s.audit(ctx, req, domain.AuditAccountLocked, accountID, map[string]string{
			"lockedUntil": st.LockoutUntil.Format(time.RFC3339),
		})
	}

	return &CredentialError{RemainingAttempts: max(0, s.Lockout.Threshold-attemptsBefore-1)}
}

func (s *LoginService) rehash(ctx context.Context, realm domain.Realm, id, password string) {
	l := slogx.FromContext(ctx)

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		l.Warn("password rehash failed", "account_id", id, "error", err)
		return
	}
	err = store.Retry(ctx, s.Retry, func(ctx context.Context) error {
		return s.Store.Accounts(realm).UpdatePasswordHash(ctx, id, hash)
	})
	if err != nil {
		l.Warn("password rehash not persisted", "account_id", id, "error", err)
		return
	}
	l.Info("password hash upgraded", "account_id", id)
}

// audit only covers the operator realm; account holders are too numerous
// and their activity is not privileged.
func (s *LoginService) audit(ctx context.Context, req LoginRequest, action domain.AuditAction, actorID string, details map[string]string) {
	if s.Audit == nil || req.Realm != domain.RealmOperator {
		return
	}
	s.Audit.Record(ctx, domain.AuditEvent{
		Realm:      req.Realm,
		Action:     action,
		ActorID:    actorID,
		ActorEmail: domain.NormalizeEmail(req.Email),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
		Details:    details,
	})
}

// ValidateLoginRequest checks the shape of the credentials only. Every
// violation is reported, not just the first.
func ValidateLoginRequest(email, password string) error {
	var issues []FieldIssue

	email = strings.TrimSpace(email)
	switch {
	case email == "":
		issues = append(issues, FieldIssue{Field: "email", Message: "Email is required"})
	case len(email) > MaxEmailLength:
		issues = append(issues, FieldIssue{Field: "email", Message: "Email must be at most 255 characters"})
	case !validEmail(email):
		issues = append(issues, FieldIssue{Field: "email", Message: "Invalid email address"})
	}

	switch n := utf8.RuneCountInString(password); {
	case n == 0:
		issues = append(issues, FieldIssue{Field: "password", Message: "Password is required"})
	case n > MaxPasswordLength:
		issues = append(issues, FieldIssue{Field: "password", Message: "Password must be at most 128 characters"})
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// validEmail accepts a bare addr-spec only, not "Name <addr>".
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(addr.Address, ".")
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// spendDummyVerify runs one full password verification against a throwaway
// hash so unknown emails take as long as wrong passwords.
func spendDummyVerify(password string) {
	dummyOnce.Do(func() {
		secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return
		}
		dummyHash, _ = cryptox.HashPassword(secret)
	})
	if dummyHash != "" {
		_ = cryptox.VerifyPassword(password, dummyHash)
	}
}
