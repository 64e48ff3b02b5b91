package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/stretchr/testify/require"
)

func TestLockout_UnknownEmailLooksClean(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.lockout.Check(ctx, domain.RealmAccount, "ghost@example.com")
	require.NoError(t, err)
	require.False(t, st.Locked)
	require.Zero(t, st.Attempts)
	require.Nil(t, st.LockoutUntil)

	st, err = f.lockout.RecordFailure(ctx, domain.RealmAccount, "ghost@example.com")
	require.NoError(t, err)
	require.Zero(t, st.Attempts)

	require.NoError(t, f.lockout.Reset(ctx, domain.RealmAccount, "ghost@example.com"))
}

func TestLockout_BelowThresholdCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAccount(t, domain.RealmAccount, "alice@example.com")

	for n := 1; n < 5; n++ {
		st, err := f.lockout.RecordFailure(ctx, domain.RealmAccount, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, n, st.Attempts)
		require.False(t, st.Locked)
	}

	st, err := f.lockout.Check(ctx, domain.RealmAccount, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, 4, st.Attempts)
	require.False(t, st.Locked)
}

func TestLockout_ThresholdLocksForDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAccount(t, domain.RealmAccount, "bob@example.com")

	for range 4 {
		_, err := f.lockout.RecordFailure(ctx, domain.RealmAccount, "bob@example.com")
		require.NoError(t, err)
	}

	failedAt := f.clock.Now()
	st, err := f.lockout.RecordFailure(ctx, domain.RealmAccount, "bob@example.com")
	require.NoError(t, err)
	require.True(t, st.Locked)
	require.Equal(t, 5, st.Attempts)
	require.NotNil(t, st.LockoutUntil)
	require.True(t, failedAt.Add(30*time.Minute).Equal(*st.LockoutUntil))

	st, err = f.lockout.Check(ctx, domain.RealmAccount, "bob@example.com")
	require.NoError(t, err)
	require.True(t, st.Locked)

	f.clock.Advance(30 * time.Minute)
	st, err = f.lockout.Check(ctx, domain.RealmAccount, "bob@example.com")
	require.NoError(t, err)
	require.False(t, st.Locked, "lock ends exactly at lockoutUntil")
	require.Equal(t, 5, st.Attempts, "expiry does not reset the counter")
}

func TestLockout_RelocksImmediatelyAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAccount(t, domain.RealmOperator, "ops@example.com")

	for range 5 {
		_, err := f.lockout.RecordFailure(ctx, domain.RealmOperator, "ops@example.com")
		require.NoError(t, err)
	}
	f.clock.Advance(31 * time.Minute)

	st, err := f.lockout.RecordFailure(ctx, domain.RealmOperator, "ops@example.com")
	require.NoError(t, err)
	require.True(t, st.Locked)
	require.Equal(t, 6, st.Attempts)
	require.True(t, f.clock.Now().Add(30*time.Minute).Equal(*st.LockoutUntil))
}

func TestLockout_ResetClearsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAccount(t, domain.RealmAccount, "carol@example.com")

	for range 5 {
		_, err := f.lockout.RecordFailure(ctx, domain.RealmAccount, "carol@example.com")
		require.NoError(t, err)
	}
	require.NoError(t, f.lockout.Reset(ctx, domain.RealmAccount, "carol@example.com"))

	acct, err := f.store.Accounts(domain.RealmAccount).GetByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	require.Zero(t, acct.FailedLoginAttempts)
	require.Nil(t, acct.LastFailedLogin)
	require.Nil(t, acct.LockedUntil)
}

func TestLockout_RealmsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAccount(t, domain.RealmAccount, "dual@example.com")
	f.createAccount(t, domain.RealmOperator, "dual@example.com")

	for range 5 {
		_, err := f.lockout.RecordFailure(ctx, domain.RealmOperator, "dual@example.com")
		require.NoError(t, err)
	}

	st, err := f.lockout.Check(ctx, domain.RealmAccount, "dual@example.com")
	require.NoError(t, err)
	require.False(t, st.Locked)
	require.Zero(t, st.Attempts)
}

func TestLockout_ConcurrentFailuresAreNotLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAccount(t, domain.RealmAccount, "race@example.com")

	// Stay below the CAS retry cap so every writer eventually wins.
	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.lockout.RecordFailure(ctx, domain.RealmAccount, "race@example.com")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	st, err := f.lockout.Check(ctx, domain.RealmAccount, "race@example.com")
	require.NoError(t, err)
	require.Equal(t, writers, st.Attempts)
}
