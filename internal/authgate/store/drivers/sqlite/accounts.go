package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
)

const accountColumns = `id, email, name, password_hash, role,
	failed_login_attempts, last_failed_login, locked_until, created_at, updated_at`

type accountsRepo struct {
	db    dbtx
	table string
	now   func() time.Time
}

func (r *accountsRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM `+r.table+` WHERE email = ?`,
		domain.NormalizeEmail(email))
	return scanAccount(row)
}

func (r *accountsRepo) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM `+r.table+` WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *accountsRepo) Create(ctx context.Context, a domain.Account) error {
	now := r.now()
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO `+r.table+` (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		domain.NormalizeEmail(a.Email),
		a.Name,
		a.PasswordHash,
		string(a.Role),
		a.FailedLoginAttempts,
		mapOptionalTime(a.LastFailedLogin),
		mapOptionalTime(a.LockedUntil),
		createdAt.UTC(),
		now,
	)
	return mapUniqueViolation(err)
}

func (r *accountsRepo) CompareAndSwapLoginState(
	ctx context.Context,
	email string,
	expectedAttempts int,
	next domain.LoginState,
) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE `+r.table+`
		    SET failed_login_attempts = ?, last_failed_login = ?, locked_until = ?, updated_at = ?
		  WHERE email = ? AND failed_login_attempts = ?`,
		next.FailedLoginAttempts,
		mapOptionalTime(next.LastFailedLogin),
		mapOptionalTime(next.LockedUntil),
		r.now(),
		domain.NormalizeEmail(email),
		expectedAttempts,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	// Nothing matched: either the row is gone or someone else moved the counter.
	var exists int
	err = r.db.QueryRowContext(ctx,
		`SELECT 1 FROM `+r.table+` WHERE email = ?`, domain.NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, mapNotFound(err)
	}
	return false, nil
}

func (r *accountsRepo) ResetLoginState(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE `+r.table+`
		    SET failed_login_attempts = 0, last_failed_login = NULL, locked_until = NULL, updated_at = ?
		  WHERE email = ?`,
		r.now(), domain.NormalizeEmail(email))
	return requireOneRow(res, err)
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE `+r.table+` SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, r.now(), id)
	return requireOneRow(res, err)
}

func (r *accountsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+r.table).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func scanAccount(row *sql.Row) (domain.Account, error) {
	var (
		a          domain.Account
		role       string
		lastFailed sql.NullTime
		lockedTill sql.NullTime
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Name,
		&a.PasswordHash,
		&role,
		&a.FailedLoginAttempts,
		&lastFailed,
		&lockedTill,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}

	a.Role = domain.Role(role)
	a.LastFailedLogin = mapNullTimePtr(lastFailed)
	a.LockedUntil = mapNullTimePtr(lockedTill)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func requireOneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
