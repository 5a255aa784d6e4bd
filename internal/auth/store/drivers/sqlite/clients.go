package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/auth/domain"
	"github.com/gatehouse-id/gatehouse/internal/auth/store"
)

type clientsRepo struct {
	q dbtx
}

const clientColumns = `id, client_id, secret_hash, resource_ids, scopes,
	grant_types, redirect_uris, authorities, access_token_validity,
	refresh_token_validity, additional_information, public_key,
	created_at, created_by, last_modified_at, last_modified_by, version`

func (r *clientsRepo) GetClientByClientID(ctx context.Context, clientID string) (domain.Client, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE client_id = ?`, clientID)
	return scanClient(row)
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		c, err := scanClientRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO clients (id, client_id, secret_hash, resource_ids, scopes,
			grant_types, redirect_uris, authorities, access_token_validity,
			refresh_token_validity, additional_information, public_key,
			created_at, created_by, last_modified_at, last_modified_by, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		c.ID, c.ClientID, c.SecretHash, c.ResourceIDStr, c.ScopeStr,
		c.GrantTypeStr, c.RedirectURIStr, c.AuthorityStr,
		c.AccessTokenValidity(), c.RefreshTokenValiditySeconds,
		c.AdditionalInformationStr, c.PublicKey,
		now, c.CreatedBy, now, c.LastModifiedBy)
	return mapConstraint(err)
}

// UpdateClient writes the registration back guarded by the version the
// caller read. A row that moved on underneath surfaces as
// ErrVersionConflict; the stored version increments on success.
func (r *clientsRepo) UpdateClient(ctx context.Context, c domain.Client) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE clients SET secret_hash = ?, resource_ids = ?, scopes = ?,
			grant_types = ?, redirect_uris = ?, authorities = ?,
			access_token_validity = ?, refresh_token_validity = ?,
			additional_information = ?, public_key = ?,
			last_modified_at = ?, last_modified_by = ?, version = version + 1
		 WHERE client_id = ? AND version = ?`,
		c.SecretHash, c.ResourceIDStr, c.ScopeStr,
		c.GrantTypeStr, c.RedirectURIStr, c.AuthorityStr,
		c.AccessTokenValidity(), c.RefreshTokenValiditySeconds,
		c.AdditionalInformationStr, c.PublicKey,
		time.Now().UTC(), c.LastModifiedBy,
		c.ClientID, c.Version)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a stale version from a missing row.
		var exists int64
		err := r.q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM clients WHERE client_id = ?`, c.ClientID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return store.ErrVersionConflict
		}
		return store.ErrNotFound
	}
	return nil
}

func (r *clientsRepo) DeleteClient(ctx context.Context, clientID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM clients WHERE client_id = ?`, clientID)
	return err
}

func (r *clientsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row *sql.Row) (domain.Client, error) {
	c, err := scanClientFrom(row)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	return c, nil
}

func scanClientRows(rows *sql.Rows) (domain.Client, error) {
	return scanClientFrom(rows)
}

func scanClientFrom(s rowScanner) (domain.Client, error) {
	var c domain.Client
	err := s.Scan(
		&c.ID, &c.ClientID, &c.SecretHash, &c.ResourceIDStr, &c.ScopeStr,
		&c.GrantTypeStr, &c.RedirectURIStr, &c.AuthorityStr,
		&c.AccessTokenValiditySeconds, &c.RefreshTokenValiditySeconds,
		&c.AdditionalInformationStr, &c.PublicKey,
		&c.CreatedAt, &c.CreatedBy, &c.LastModifiedAt, &c.LastModifiedBy,
		&c.Version,
	)
	return c, err
}
