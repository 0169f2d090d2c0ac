package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/veldtlabs/warden/internal/identity/domain"
)

type enrollmentsRepo struct {
	q dbtx
}

func (r *enrollmentsRepo) GetEnrollment(ctx context.Context, userID string) (domain.Enrollment, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT user_id, secret_sealed, state, enabled_at, totp_last_step, created_at, updated_at
		 FROM mfa_enrollments WHERE user_id = ?`, userID)

	var e domain.Enrollment
	var state string
	var enabledAt sql.NullTime
	err := row.Scan(
		&e.UserID, &e.SecretSealed, &state, &enabledAt,
		&e.TOTPLastStep, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return domain.Enrollment{}, mapNotFound(err)
	}
	e.State = domain.EnrollmentState(state)
	e.EnabledAt = mapNullTimePtr(enabledAt)
	return e, nil
}

func (r *enrollmentsRepo) UpsertPending(ctx context.Context, userID string, secretSealed []byte) error {
	// A fresh setup replaces a prior pending secret and resets the replay
	// cursor. The state guard refuses to touch an ENABLED row, so a setup
	// write racing a concurrent confirmation can never downgrade it; the
	// zero-row result surfaces as ErrNotFound for the caller to classify.
	return requireRow(r.q.ExecContext(ctx,
		`INSERT INTO mfa_enrollments (user_id, secret_sealed, state, totp_last_step)
		 VALUES (?, ?, ?, 0)
		 ON CONFLICT (user_id) DO UPDATE SET
		   secret_sealed = excluded.secret_sealed,
		   state = excluded.state,
		   enabled_at = NULL,
		   totp_last_step = 0,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE mfa_enrollments.state <> ?`,
		userID, secretSealed, string(domain.EnrollmentPending),
		string(domain.EnrollmentEnabled),
	))
}

func (r *enrollmentsRepo) Enable(ctx context.Context, userID string, at time.Time) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE mfa_enrollments SET state = ?, enabled_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ? AND state = ?`,
		string(domain.EnrollmentEnabled), at,
		userID, string(domain.EnrollmentPending),
	))
}

func (r *enrollmentsRepo) ConsumeTOTPStep(ctx context.Context, userID string, step int64) error {
	// Monotonic cursor: a step can only move forward, so the same code
	// (or any code from an earlier step) never verifies twice.
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE mfa_enrollments SET totp_last_step = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ? AND totp_last_step < ?`,
		step, userID, step,
	))
}

func (r *enrollmentsRepo) DeleteEnrollment(ctx context.Context, userID string) error {
	return requireRow(r.q.ExecContext(ctx,
		`DELETE FROM mfa_enrollments WHERE user_id = ?`, userID,
	))
}
