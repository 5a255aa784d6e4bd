package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/auth/domain"
)

type usersRepo struct {
	q dbtx
}

const userColumns = `id, username, password_hash, enabled, account_non_expired,
	account_non_locked, credentials_non_expired, last_known_ip, last_login_at,
	authorities, created_at, updated_at`

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, enabled,
			account_non_expired, account_non_locked, credentials_non_expired,
			last_known_ip, last_login_at, authorities, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Enabled,
		u.AccountNonExpired, u.AccountNonLocked, u.CredentialsNonExpired,
		mapStringNull(u.LastKnownIP), mapOptionalTime(u.LastLoginAt),
		joinList(u.Authorities), now, now)
	return mapConstraint(err)
}

func (r *usersRepo) RecordLogin(ctx context.Context, userID, origin string, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET last_known_ip = ?, last_login_at = ?, updated_at = ?
		 WHERE id = ?`,
		origin, at, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *usersRepo) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	return err
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u           domain.User
		lastKnownIP sql.NullString
		lastLoginAt sql.NullTime
		authorities string
	)

	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Enabled,
		&u.AccountNonExpired, &u.AccountNonLocked, &u.CredentialsNonExpired,
		&lastKnownIP, &lastLoginAt, &authorities, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.LastKnownIP = mapNullString(lastKnownIP)
	u.LastLoginAt = mapNullTimePtr(lastLoginAt)
	u.Authorities = splitList(authorities)
	return u, nil
}
