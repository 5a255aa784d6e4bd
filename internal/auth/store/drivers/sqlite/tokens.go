package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/auth/domain"
	"github.com/gatehouse-id/gatehouse/pkg/idx"
)

// tokensRepo persists issued token pairs across two tables, mirroring how
// the registry is queried: access tokens by (client_id, username), refresh
// tokens by their own value. Revoking one side never touches the other, so
// "access token gone, refresh token still present" is representable.
type tokensRepo struct {
	q dbtx
}

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.IssuedToken) error {
	now := time.Now().UTC()

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO access_tokens (id, token, refresh_token, client_id, username, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccessToken, mapStringNull(t.RefreshToken),
		t.ClientID, t.Username, t.ExpiresAt, now)
	if err != nil {
		return mapConstraint(err)
	}

	if !t.HasRefreshToken() {
		return nil
	}

	refreshExpiry := t.RefreshExpiresAt
	if refreshExpiry.IsZero() {
		refreshExpiry = t.ExpiresAt
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, token, client_id, username, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		idx.New().String(), t.RefreshToken, t.ClientID, t.Username, refreshExpiry, now)
	return mapConstraint(err)
}

func (r *tokensRepo) FindByClientAndUsername(ctx context.Context, clientID, username string) ([]domain.IssuedToken, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, token, refresh_token, client_id, username, expires_at, created_at
		 FROM access_tokens
		 WHERE client_id = ? AND username = ?
		 ORDER BY created_at`,
		clientID, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.IssuedToken{}
	for rows.Next() {
		var (
			t       domain.IssuedToken
			refresh sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.AccessToken, &refresh, &t.ClientID,
			&t.Username, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.RefreshToken = mapNullString(refresh)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *tokensRepo) GetByRefreshToken(ctx context.Context, refreshToken string) (domain.IssuedToken, error) {
	var t domain.IssuedToken
	err := r.q.QueryRowContext(ctx,
		`SELECT id, token, client_id, username, expires_at, created_at
		 FROM refresh_tokens WHERE token = ?`,
		refreshToken).Scan(&t.ID, &t.RefreshToken, &t.ClientID, &t.Username,
		&t.RefreshExpiresAt, &t.CreatedAt)
	if err != nil {
		return domain.IssuedToken{}, mapNotFound(err)
	}
	return t, nil
}

// RevokeAccessToken deletes the access-token row. Deleting an absent token
// affects zero rows, which is exactly the idempotent no-op the registry
// contract asks for.
func (r *tokensRepo) RevokeAccessToken(ctx context.Context, accessToken string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM access_tokens WHERE token = ?`, accessToken)
	return err
}

// RevokeRefreshToken deletes the refresh-token row; same idempotency as
// RevokeAccessToken.
func (r *tokensRepo) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE token = ?`, refreshToken)
	return err
}

func (r *tokensRepo) DeleteExpiredTokens(ctx context.Context) error {
	now := time.Now().UTC()
	if _, err := r.q.ExecContext(ctx,
		`DELETE FROM access_tokens WHERE expires_at < ?`, now); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`, now)
	return err
}
