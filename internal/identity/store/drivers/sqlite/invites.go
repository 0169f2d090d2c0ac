package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/veldtlabs/warden/internal/identity/domain"
	"github.com/veldtlabs/warden/internal/identity/store"
)

type invitesRepo struct {
	q dbtx
}

const inviteColumns = `id, token_hash, email, role, invited_by, message, status, created_at, expires_at, used_at, used_by`

func (r *invitesRepo) CreateInvite(ctx context.Context, inv domain.Invite) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO invites (id, token_hash, email, role, invited_by, message, status, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.TokenHash, inv.Email, string(inv.Role), inv.InvitedBy,
		inv.Message, string(inv.Status), inv.ExpiresAt,
	)
	if err != nil && isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *invitesRepo) GetInviteByID(ctx context.Context, id string) (domain.Invite, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM invites WHERE id = ?`, id)
	return scanInvite(row)
}

func (r *invitesRepo) GetInviteByTokenHash(ctx context.Context, hash string) (domain.Invite, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM invites WHERE token_hash = ?`, hash)
	return scanInvite(row)
}

func (r *invitesRepo) MarkAccepted(ctx context.Context, inviteID, usedByUserID string, at time.Time) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE invites SET status = ?, used_at = ?, used_by = ?
		 WHERE id = ? AND status = ?`,
		string(domain.InviteAccepted), at, usedByUserID,
		inviteID, string(domain.InvitePending),
	))
}

func (r *invitesRepo) MarkRevoked(ctx context.Context, inviteID string) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE invites SET status = ? WHERE id = ? AND status = ?`,
		string(domain.InviteRevoked), inviteID, string(domain.InvitePending),
	))
}

func (r *invitesRepo) MarkExpired(ctx context.Context, inviteID string) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE invites SET status = ? WHERE id = ? AND status = ?`,
		string(domain.InviteExpired), inviteID, string(domain.InvitePending),
	))
}

func (r *invitesRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE invites SET status = ? WHERE status = ? AND expires_at < ?`,
		string(domain.InviteExpired), string(domain.InvitePending), now,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanInvite(row *sql.Row) (domain.Invite, error) {
	var inv domain.Invite
	var role, status string
	var usedAt sql.NullTime
	var usedBy sql.NullString
	err := row.Scan(
		&inv.ID, &inv.TokenHash, &inv.Email, &role, &inv.InvitedBy,
		&inv.Message, &status, &inv.CreatedAt, &inv.ExpiresAt, &usedAt, &usedBy,
	)
	if err != nil {
		return domain.Invite{}, mapNotFound(err)
	}
	inv.Role = domain.Role(role)
	inv.Status = domain.InviteStatus(status)
	inv.UsedAt = mapNullTimePtr(usedAt)
	inv.UsedBy = mapNullString(usedBy)
	return inv, nil
}
