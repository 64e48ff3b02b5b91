package service_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/aussiebroadwan/authgate/internal/authgate/service"
	"github.com/stretchr/testify/require"
)

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct := f.createAccount(t, domain.RealmOperator, "New.Op@Example.com")
	require.Equal(t, "new.op@example.com", acct.Email)
	require.Equal(t, domain.RoleAdmin, acct.Role)
	require.NotEmpty(t, acct.ID)

	_, err := f.accounts.CreateAccount(ctx, service.CreateAccountRequest{
		Realm:    domain.RealmOperator,
		Email:    "new.op@example.com",
		Password: goodPassword,
	})
	require.ErrorIs(t, err, service.ErrAccountExists)

	_, err = f.accounts.CreateAccount(ctx, service.CreateAccountRequest{
		Realm:    domain.RealmAccount,
		Email:    "weak@example.com",
		Password: "abc",
	})
	var ve *service.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Issues, 4)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.createAccount(t, domain.RealmOperator, "changer@example.com")

	base := service.ChangePasswordRequest{
		Realm:           domain.RealmOperator,
		AccountID:       acct.ID,
		CurrentPassword: goodPassword,
		NewPassword:     "Brand-New-Pass9?",
		IP:              "198.51.100.4",
	}

	t.Run("wrong current password", func(t *testing.T) {
		req := base
		req.CurrentPassword = "nope"
		require.ErrorIs(t, f.accounts.ChangePassword(ctx, req), service.ErrInvalidCredentials)
	})

	t.Run("weak new password", func(t *testing.T) {
		req := base
		req.NewPassword = "short"
		err := f.accounts.ChangePassword(ctx, req)
		var ve *service.ValidationError
		require.ErrorAs(t, err, &ve)
		for _, i := range ve.Issues {
			require.Equal(t, "newPassword", i.Field)
		}
	})

	t.Run("same as current", func(t *testing.T) {
		req := base
		req.NewPassword = goodPassword
		var ve *service.ValidationError
		require.ErrorAs(t, f.accounts.ChangePassword(ctx, req), &ve)
	})

	t.Run("unknown account", func(t *testing.T) {
		req := base
		req.AccountID = "01HQDOESNOTEXIST"
		require.ErrorIs(t, f.accounts.ChangePassword(ctx, req), service.ErrInvalidToken)
	})

	t.Run("success", func(t *testing.T) {
		require.NoError(t, f.accounts.ChangePassword(ctx, base))

		_, err := f.login.Login(ctx, f.loginReq(domain.RealmOperator, "changer@example.com", "Brand-New-Pass9?"))
		require.NoError(t, err)
		require.Contains(t, f.audit.Actions(), domain.AuditPasswordChanged)
	})
}

func TestEnsureBootstrapOperator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.accounts.EnsureBootstrapOperator(ctx, "", "")
	require.NoError(t, err)
	require.False(t, created)

	created, err = f.accounts.EnsureBootstrapOperator(ctx, "root@example.com", goodPassword)
	require.NoError(t, err)
	require.True(t, created)

	op, err := f.store.Accounts(domain.RealmOperator).GetByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.RoleSuperAdmin, op.Role)

	created, err = f.accounts.EnsureBootstrapOperator(ctx, "other@example.com", goodPassword)
	require.NoError(t, err)
	require.False(t, created, "only runs against an empty operator table")
}

func TestRecordLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.accounts.RecordLogout(ctx, domain.RealmAccount, "01A", "a@example.com", "203.0.113.7", "ua")
	require.Empty(t, f.audit.Actions())

	f.accounts.RecordLogout(ctx, domain.RealmOperator, "01B", "op@example.com", "203.0.113.7", "ua")
	require.Equal(t, []domain.AuditAction{domain.AuditLogout}, f.audit.Actions())
}
