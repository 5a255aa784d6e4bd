package sqlite

import (
	"context"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/auth/domain"
)

type loginAuditRepo struct {
	q dbtx
}

func (r *loginAuditRepo) RecordLogin(ctx context.Context, rec domain.LoginRecord) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO login_audit (id, username, origin, at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Username, rec.Origin, rec.At)
	return err
}

func (r *loginAuditRepo) ListByUsername(ctx context.Context, username string, limit int) ([]domain.LoginRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT id, username, origin, at FROM login_audit
		 WHERE username = ? ORDER BY at DESC LIMIT ?`,
		username, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.LoginRecord{}
	for rows.Next() {
		var rec domain.LoginRecord
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.Origin, &rec.At); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *loginAuditRepo) DeleteBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM login_audit WHERE at < ?`, cutoff)
	return err
}
