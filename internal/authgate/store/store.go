package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrConflict      = errors.New("store: conflicting update")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Accounts are partitioned by realm so an operator and an
// account holder with the same email never see each other's rows.
type Store interface {
	Accounts(realm domain.Realm) Accounts
	Audit() AuditLog

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the underlying connection pool.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// GetByEmail looks up by the normalized email.
	GetByEmail(ctx context.Context, email string) (domain.Account, error)

	GetByID(ctx context.Context, id string) (domain.Account, error)

	// Create inserts a new account (id is provided by app via ULID). Returns
	// ErrAlreadyExists when the email is taken within the realm.
	Create(ctx context.Context, a domain.Account) error

	// CompareAndSwapLoginState writes next only if the stored attempt count
	// still equals expectedAttempts. Returns false when another writer got
	// there first, and ErrNotFound when the email is unknown.
	CompareAndSwapLoginState(ctx context.Context, email string, expectedAttempts int, next domain.LoginState) (bool, error)

	// ResetLoginState zeroes the attempt counter and clears both timestamps.
	ResetLoginState(ctx context.Context, email string) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, id string, hash string) error

	// IsEmpty returns true if the realm has no accounts.
	IsEmpty(ctx context.Context) (bool, error)
}

type AuditLog interface {
	Append(ctx context.Context, e domain.AuditEvent) error

	// ListRecent returns the newest events first.
	ListRecent(ctx context.Context, limit int) ([]domain.AuditEvent, error)

	// DeleteOlderThan is housekeeping; it returns the number of rows removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
