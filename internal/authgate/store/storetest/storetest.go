// Package storetest holds behaviour tests shared by every store driver.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/aussiebroadwan/authgate/internal/authgate/store"
	"github.com/aussiebroadwan/authgate/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Run exercises a freshly migrated, empty store. newStore is called once per
// subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("accounts create and lookup", func(t *testing.T) { testCreateAndLookup(t, newStore(t)) })
	t.Run("realms are disjoint", func(t *testing.T) { testRealmsDisjoint(t, newStore(t)) })
	t.Run("compare and swap login state", func(t *testing.T) { testCompareAndSwap(t, newStore(t)) })
	t.Run("reset login state", func(t *testing.T) { testReset(t, newStore(t)) })
	t.Run("update password hash", func(t *testing.T) { testUpdatePasswordHash(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("audit log", func(t *testing.T) { testAuditLog(t, newStore(t)) })
}

// NewAccount builds a valid account row for tests.
func NewAccount(email string) domain.Account {
	return domain.Account{
		ID:           idx.New().String(),
		Email:        email,
		Name:         "Test Account",
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		Role:         domain.RoleUser,
	}
}

func testCreateAndLookup(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Accounts(domain.RealmAccount)

	empty, err := repo.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	a := NewAccount("Alice@Example.com")
	require.NoError(t, repo.Create(ctx, a))

	got, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
	require.Equal(t, "alice@example.com", got.Email)
	require.Equal(t, domain.RoleUser, got.Role)
	require.Zero(t, got.FailedLoginAttempts)
	require.Nil(t, got.LastFailedLogin)
	require.Nil(t, got.LockedUntil)
	require.False(t, got.CreatedAt.IsZero())

	byID, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, got.Email, byID.Email)

	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	dup := NewAccount("alice@example.com")
	require.ErrorIs(t, repo.Create(ctx, dup), store.ErrAlreadyExists)

	empty, err = repo.IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)
}

func testRealmsDisjoint(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Accounts(domain.RealmAccount).Create(ctx, NewAccount("shared@example.com")))

	_, err := s.Accounts(domain.RealmOperator).GetByEmail(ctx, "shared@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	op := NewAccount("shared@example.com")
	op.Role = domain.RoleAdmin
	require.NoError(t, s.Accounts(domain.RealmOperator).Create(ctx, op))

	got, err := s.Accounts(domain.RealmOperator).GetByEmail(ctx, "shared@example.com")
	require.NoError(t, err)
	require.Equal(t, op.ID, got.ID)
	require.Equal(t, domain.RoleAdmin, got.Role)
}

func testCompareAndSwap(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Accounts(domain.RealmAccount)
	require.NoError(t, repo.Create(ctx, NewAccount("bob@example.com")))

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until := now.Add(30 * time.Minute)

	ok, err := repo.CompareAndSwapLoginState(ctx, "bob@example.com", 0, domain.LoginState{
		FailedLoginAttempts: 1,
		LastFailedLogin:     &now,
	})
	require.NoError(t, err)
	require.True(t, ok)

	// Stale expectation loses.
	ok, err = repo.CompareAndSwapLoginState(ctx, "bob@example.com", 0, domain.LoginState{FailedLoginAttempts: 1})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.CompareAndSwapLoginState(ctx, "bob@example.com", 1, domain.LoginState{
		FailedLoginAttempts: 2,
		LastFailedLogin:     &now,
		LockedUntil:         &until,
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, 2, got.FailedLoginAttempts)
	require.NotNil(t, got.LastFailedLogin)
	require.True(t, now.Equal(*got.LastFailedLogin))
	require.NotNil(t, got.LockedUntil)
	require.True(t, until.Equal(*got.LockedUntil))

	_, err = repo.CompareAndSwapLoginState(ctx, "ghost@example.com", 0, domain.LoginState{FailedLoginAttempts: 1})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testReset(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Accounts(domain.RealmOperator)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until := now.Add(30 * time.Minute)
	a := NewAccount("carol@example.com")
	a.LoginState = domain.LoginState{FailedLoginAttempts: 5, LastFailedLogin: &now, LockedUntil: &until}
	require.NoError(t, repo.Create(ctx, a))

	require.NoError(t, repo.ResetLoginState(ctx, "carol@example.com"))

	got, err := repo.GetByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	require.Zero(t, got.FailedLoginAttempts)
	require.Nil(t, got.LastFailedLogin)
	require.Nil(t, got.LockedUntil)

	require.ErrorIs(t, repo.ResetLoginState(ctx, "ghost@example.com"), store.ErrNotFound)
}

func testUpdatePasswordHash(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Accounts(domain.RealmAccount)
	a := NewAccount("dave@example.com")
	require.NoError(t, repo.Create(ctx, a))

	require.NoError(t, repo.UpdatePasswordHash(ctx, a.ID, "new-hash"))

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.PasswordHash)

	require.ErrorIs(t, repo.UpdatePasswordHash(ctx, "missing", "x"), store.ErrNotFound)
}

func testTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Accounts(domain.RealmAccount).Create(ctx, NewAccount("erin@example.com"))
	})
	require.NoError(t, err)

	_, err = s.Accounts(domain.RealmAccount).GetByEmail(ctx, "erin@example.com")
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts(domain.RealmAccount).Create(ctx, NewAccount("frank@example.com")); err != nil {
			return err
		}
		return tx.Accounts(domain.RealmAccount).Create(ctx, NewAccount("erin@example.com"))
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	_, err = s.Accounts(domain.RealmAccount).GetByEmail(ctx, "frank@example.com")
	require.ErrorIs(t, err, store.ErrNotFound, "rolled back insert must not be visible")
}

func testAuditLog(t *testing.T, s store.Store) {
	ctx := context.Background()
	log := s.Audit()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, action := range []domain.AuditAction{domain.AuditLoginFailed, domain.AuditAccountLocked, domain.AuditLoginSuccess} {
		require.NoError(t, log.Append(ctx, domain.AuditEvent{
			ID:         idx.NewAt(base.Add(time.Duration(i) * time.Hour)).String(),
			Realm:      domain.RealmOperator,
			Action:     action,
			ActorEmail: "ops@example.com",
			IPAddress:  "203.0.113.9",
			Details:    map[string]string{"attempt": "x"},
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	recent, err := log.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, domain.AuditLoginSuccess, recent[0].Action)
	require.Equal(t, domain.AuditAccountLocked, recent[1].Action)
	require.Equal(t, "x", recent[0].Details["attempt"])
	require.Equal(t, domain.RealmOperator, recent[0].Realm)

	removed, err := log.DeleteOlderThan(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	recent, err = log.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}
