package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/veldtlabs/warden/internal/identity/domain"
	"github.com/veldtlabs/warden/internal/identity/store"
)

type backupCodesRepo struct {
	q dbtx
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, code domain.BackupCode) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO backup_codes (id, user_id, code_hash) VALUES (?, ?, ?)`,
		code.ID, code.UserID, code.CodeHash,
	)
	if err != nil && isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *backupCodesRepo) GetBackupCode(ctx context.Context, userID, codeHash string) (domain.BackupCode, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, user_id, code_hash, used_at, created_at
		 FROM backup_codes WHERE user_id = ? AND code_hash = ?`,
		userID, codeHash)

	var c domain.BackupCode
	var usedAt sql.NullTime
	if err := row.Scan(&c.ID, &c.UserID, &c.CodeHash, &usedAt, &c.CreatedAt); err != nil {
		return domain.BackupCode{}, mapNotFound(err)
	}
	c.UsedAt = mapNullTimePtr(usedAt)
	return c, nil
}

func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, userID, codeHash string, at time.Time) error {
	// used_at IS NULL is the spend guard: at most one caller flips it.
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE backup_codes SET used_at = ?
		 WHERE user_id = ? AND code_hash = ? AND used_at IS NULL`,
		at, userID, codeHash,
	))
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ?`, userID,
	)
	return err
}

func (r *backupCodesRepo) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ? AND used_at IS NULL`,
		userID)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
