package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/aussiebroadwan/authgate/internal/authgate/store"
	"github.com/aussiebroadwan/authgate/pkg/cryptox"
	"github.com/aussiebroadwan/authgate/pkg/idx"
	"github.com/aussiebroadwan/authgate/pkg/slogx"
)

type AccountService struct {
	Store store.Store
	Audit Auditor
	Retry store.RetryPolicy
	Now   func() time.Time
}

type CreateAccountRequest struct {
	Realm    domain.Realm
	Email    string
	Name     string
	Password string
	Role     domain.Role // empty takes the realm default
}

type ChangePasswordRequest struct {
	Realm           domain.Realm
	AccountID       string
	CurrentPassword string
	NewPassword     string
	IP              string
	UserAgent       string
}

func (s *AccountService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// GetAccount returns the account behind a verified token subject.
func (s *AccountService) GetAccount(ctx context.Context, realm domain.Realm, id string) (domain.Account, error) {
	acct, err := store.RetryValue(ctx, s.Retry, func(ctx context.Context) (domain.Account, error) {
		return s.Store.Accounts(realm).GetByID(ctx, id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.Account{}, ErrInvalidToken
	}
	if err != nil {
		return domain.Account{}, internal("get account", err)
	}
	return acct, nil
}

// CreateAccount validates and stores a new identity with a fresh argon2id hash.
func (s *AccountService) CreateAccount(ctx context.Context, req CreateAccountRequest) (domain.Account, error) {
	var issues []FieldIssue
	if err := ValidateLoginRequest(req.Email, req.Password); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			issues = append(issues, ve.Issues...)
		}
	}
	for _, msg := range cryptox.ValidatePasswordStrength(req.Password).Errors {
		issues = append(issues, FieldIssue{Field: "password", Message: msg})
	}
	if len(issues) > 0 {
		return domain.Account{}, &ValidationError{Issues: dedupeIssues(issues)}
	}

	hash, err := cryptox.HashPassword(req.Password)
	if err != nil {
		return domain.Account{}, internal("hash password", err)
	}

	role := req.Role
	if role == "" {
		role = req.Realm.DefaultRole()
	}

	now := s.now()
	acct := domain.Account{
		ID:           idx.NewAt(now).String(),
		Email:        domain.NormalizeEmail(req.Email),
		Name:         req.Name,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = store.Retry(ctx, s.Retry, func(ctx context.Context) error {
		return s.Store.Accounts(req.Realm).Create(ctx, acct)
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return domain.Account{}, ErrAccountExists
	}
	if err != nil {
		return domain.Account{}, internal("create account", err)
	}
	return acct, nil
}

// ChangePassword requires the current password, enforces the strength rules
// on the new one and stores a fresh hash.
func (s *AccountService) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	l := slogx.FromContext(ctx)

	acct, err := s.GetAccount(ctx, req.Realm, req.AccountID)
	if err != nil {
		return err
	}

	if err := cryptox.VerifyPassword(req.CurrentPassword, acct.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	var issues []FieldIssue
	if utf8.RuneCountInString(req.NewPassword) > MaxPasswordLength {
		issues = append(issues, FieldIssue{Field: "newPassword", Message: "Password must be at most 128 characters"})
	}
	for _, msg := range cryptox.ValidatePasswordStrength(req.NewPassword).Errors {
		issues = append(issues, FieldIssue{Field: "newPassword", Message: msg})
	}
	if req.NewPassword == req.CurrentPassword {
		issues = append(issues, FieldIssue{Field: "newPassword", Message: "New password must differ from the current password"})
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}

	hash, err := cryptox.HashPassword(req.NewPassword)
	if err != nil {
		return internal("hash password", err)
	}
	err = store.Retry(ctx, s.Retry, func(ctx context.Context) error {
		return s.Store.Accounts(req.Realm).UpdatePasswordHash(ctx, acct.ID, hash)
	})
	if err != nil {
		return internal("update password", err)
	}

	l.Info("password changed", "realm", req.Realm, "account_id", acct.ID)
	if s.Audit != nil {
		s.Audit.Record(ctx, domain.AuditEvent{
			Realm:      req.Realm,
			Action:     domain.AuditPasswordChanged,
			ActorID:    acct.ID,
			ActorEmail: acct.Email,
			IPAddress:  req.IP,
			UserAgent:  req.UserAgent,
		})
	}
	return nil
}

// RecordLogout audits an operator signing out. Sessions are stateless, so
// there is nothing to revoke server side.
func (s *AccountService) RecordLogout(ctx context.Context, realm domain.Realm, accountID, email, ip, userAgent string) {
	slogx.FromContext(ctx).Info("logout", "realm", realm, "account_id", accountID)
	if s.Audit == nil || realm != domain.RealmOperator {
		return
	}
	s.Audit.Record(ctx, domain.AuditEvent{
		Realm:      realm,
		Action:     domain.AuditLogout,
		ActorID:    accountID,
		ActorEmail: email,
		IPAddress:  ip,
		UserAgent:  userAgent,
	})
}

// EnsureBootstrapOperator creates the first operator when the operator realm
// is empty. It is a no-op once any operator exists or when email is unset.
func (s *AccountService) EnsureBootstrapOperator(ctx context.Context, email, password string) (bool, error) {
	if email == "" {
		return false, nil
	}

	empty, err := store.RetryValue(ctx, s.Retry, func(ctx context.Context) (bool, error) {
		return s.Store.Accounts(domain.RealmOperator).IsEmpty(ctx)
	})
	if err != nil {
		return false, internal("bootstrap check", err)
	}
	if !empty {
		return false, nil
	}

	_, err = s.CreateAccount(ctx, CreateAccountRequest{
		Realm:    domain.RealmOperator,
		Email:    email,
		Name:     "Bootstrap Operator",
		Password: password,
		Role:     domain.RoleSuperAdmin,
	})
	if errors.Is(err, ErrAccountExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	slogx.FromContext(ctx).Info("bootstrap operator created", "email", domain.NormalizeEmail(email))
	return true, nil
}

func dedupeIssues(in []FieldIssue) []FieldIssue {
	seen := make(map[FieldIssue]struct{}, len(in))
	out := in[:0]
	for _, i := range in {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}
