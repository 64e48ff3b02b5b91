package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/aussiebroadwan/authgate/internal/authgate/store"
	"github.com/aussiebroadwan/authgate/pkg/slogx"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute

	// maxCASAttempts caps the compare-and-swap loop in RecordFailure.
	maxCASAttempts = 8
)

// LockoutStatus is the observable lockout state of one identity.
type LockoutStatus struct {
	Locked       bool
	LockoutUntil *time.Time
	Attempts     int
}

// LockoutTracker keeps the persisted failure counters per realm and email.
// An unknown email behaves exactly like a clean account.
//
// The lock does not decay: once it expires the counter stays at or above the
// threshold, so the next failure locks again immediately. Only a successful
// login resets it.
type LockoutTracker struct {
	Store     store.Store
	Threshold int
	Duration  time.Duration
	Retry     store.RetryPolicy
	Now       func() time.Time
}

func NewLockoutTracker(s store.Store, threshold int, duration time.Duration) *LockoutTracker {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return &LockoutTracker{
		Store:     s,
		Threshold: threshold,
		Duration:  duration,
		Retry:     store.DefaultRetry,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (t *LockoutTracker) now() time.Time {
	if t.Now == nil {
		return time.Now().UTC()
	}
	return t.Now().UTC()
}

// Check reports whether email is currently locked in realm.
func (t *LockoutTracker) Check(ctx context.Context, realm domain.Realm, email string) (LockoutStatus, error) {
	acct, err := t.load(ctx, realm, email)
	if errors.Is(err, store.ErrNotFound) {
		return LockoutStatus{}, nil
	}
	if err != nil {
		return LockoutStatus{}, internal("lockout check", err)
	}
	return t.status(acct.LoginState), nil
}

// RecordFailure counts one failed attempt and locks the identity once the
// threshold is reached. Concurrent failures are serialised by a
// compare-and-swap on the stored counter so no increment is lost.
func (t *LockoutTracker) RecordFailure(ctx context.Context, realm domain.Realm, email string) (LockoutStatus, error) {
	l := slogx.FromContext(ctx)

	for range maxCASAttempts {
		acct, err := t.load(ctx, realm, email)
		if errors.Is(err, store.ErrNotFound) {
			return LockoutStatus{}, nil
		}
		if err != nil {
			return LockoutStatus{}, internal("lockout record failure", err)
		}

		now := t.now()
		next := domain.LoginState{
			FailedLoginAttempts: acct.FailedLoginAttempts + 1,
			LastFailedLogin:     &now,
			LockedUntil:         acct.LockedUntil,
		}
		if next.FailedLoginAttempts >= t.Threshold {
			until := now.Add(t.Duration)
			next.LockedUntil = &until
		}

		swapped, err := store.RetryValue(ctx, t.Retry, func(ctx context.Context) (bool, error) {
			return t.Store.Accounts(realm).CompareAndSwapLoginState(ctx, email, acct.FailedLoginAttempts, next)
		})
		if errors.Is(err, store.ErrNotFound) {
			return LockoutStatus{}, nil
		}
		if err != nil {
			return LockoutStatus{}, internal("lockout record failure", err)
		}
		if swapped {
			st := t.status(next)
			if st.Locked && !acct.LockedAt(now) {
				l.Warn("account locked",
					"realm", realm,
					"email", email,
					"attempts", next.FailedLoginAttempts,
					"locked_until", next.LockedUntil,
				)
			}
			return st, nil
		}
	}

	return LockoutStatus{}, internal("lockout record failure", ErrLockoutContention)
}

// Reset zeroes the counter and clears the lock. Unknown emails are a no-op.
func (t *LockoutTracker) Reset(ctx context.Context, realm domain.Realm, email string) error {
	err := store.Retry(ctx, t.Retry, func(ctx context.Context) error {
		return t.Store.Accounts(realm).ResetLoginState(ctx, email)
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return internal("lockout reset", err)
	}
	return nil
}

func (t *LockoutTracker) load(ctx context.Context, realm domain.Realm, email string) (domain.Account, error) {
	return store.RetryValue(ctx, t.Retry, func(ctx context.Context) (domain.Account, error) {
		return t.Store.Accounts(realm).GetByEmail(ctx, email)
	})
}

func (t *LockoutTracker) status(s domain.LoginState) LockoutStatus {
	st := LockoutStatus{Attempts: s.FailedLoginAttempts}
	if s.LockedAt(t.now()) {
		st.Locked = true
		until := *s.LockedUntil
		st.LockoutUntil = &until
	}
	return st
}
