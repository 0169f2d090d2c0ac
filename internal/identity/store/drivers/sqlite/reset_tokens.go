package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/veldtlabs/warden/internal/identity/domain"
	"github.com/veldtlabs/warden/internal/identity/store"
)

type resetTokensRepo struct {
	q dbtx
}

func (r *resetTokensRepo) CreateResetToken(ctx context.Context, t domain.PasswordResetToken) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at)
		 VALUES (?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt,
	)
	if err != nil && isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *resetTokensRepo) GetResetTokenByHash(ctx context.Context, hash string) (domain.PasswordResetToken, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, used_at
		 FROM password_reset_tokens WHERE token_hash = ?`, hash)

	var t domain.PasswordResetToken
	var usedAt sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &usedAt)
	if err != nil {
		return domain.PasswordResetToken{}, mapNotFound(err)
	}
	t.UsedAt = mapNullTimePtr(usedAt)
	return t, nil
}

func (r *resetTokensRepo) MarkUsed(ctx context.Context, tokenID string, at time.Time) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used_at = ?
		 WHERE id = ? AND used_at IS NULL`,
		at, tokenID,
	))
}

func (r *resetTokensRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at < ?`, now,
	)
	return err
}
