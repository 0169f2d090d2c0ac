package store

import (
	"context"
	"errors"
	"time"

	"github.com/veldtlabs/warden/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns
// tidy and testable.
type Store interface {
	Users() Users
	Invites() Invites
	Enrollments() Enrollments
	BackupCodes() BackupCodes
	ResetTokens() ResetTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. This is the
	// way every multi-step mutation that must be atomic runs (invite
	// accept + user creation, reset consume + password replacement).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks up a user by email. The caller is expected to
	// pass the lowercased form; lookups are exact.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash replaces the password_hash and bumps updated_at.
	// The replacement is a single UPDATE: there is no window where the row
	// holds neither hash.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// SetMFAEnabled flips the denormalized mfa_enabled flag. Always called
	// inside the transaction that moves the enrollment state.
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error
}

type Invites interface {
	// CreateInvite writes a new PENDING invite.
	CreateInvite(ctx context.Context, inv domain.Invite) error

	// GetInviteByID returns an invite regardless of status.
	GetInviteByID(ctx context.Context, id string) (domain.Invite, error)

	// GetInviteByTokenHash returns an invite by token fingerprint
	// regardless of status; the service layer decides between expired,
	// used and spendable.
	GetInviteByTokenHash(ctx context.Context, hash string) (domain.Invite, error)

	// MarkAccepted transitions PENDING -> ACCEPTED and records the spender.
	// The UPDATE is guarded on status = PENDING; ErrNotFound means another
	// caller won the race or the invite was revoked/expired meanwhile.
	MarkAccepted(ctx context.Context, inviteID, usedByUserID string, at time.Time) error

	// MarkRevoked transitions PENDING -> REVOKED with the same guard.
	MarkRevoked(ctx context.Context, inviteID string) error

	// MarkExpired transitions PENDING -> EXPIRED with the same guard.
	MarkExpired(ctx context.Context, inviteID string) error

	// SweepExpired transitions every PENDING invite past its expiry to
	// EXPIRED and reports how many rows moved. Advisory bookkeeping only:
	// accept re-checks expiry regardless.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type Enrollments interface {
	// GetEnrollment returns the enrollment row for a user. ErrNotFound
	// means the DISABLED state.
	GetEnrollment(ctx context.Context, userID string) (domain.Enrollment, error)

	// UpsertPending creates or replaces the enrollment with a fresh sealed
	// secret in PENDING_VERIFICATION, resetting the replay cursor. Guarded
	// against the ENABLED state; ErrNotFound when the row is enabled.
	UpsertPending(ctx context.Context, userID string, secretSealed []byte) error

	// Enable transitions PENDING_VERIFICATION -> ENABLED. Guarded on the
	// pending state; ErrNotFound when the enrollment is absent or already
	// enabled.
	Enable(ctx context.Context, userID string, at time.Time) error

	// ConsumeTOTPStep advances the replay cursor to step. Guarded on
	// totp_last_step < step; ErrNotFound means the step was already spent.
	ConsumeTOTPStep(ctx context.Context, userID string, step int64) error

	// DeleteEnrollment clears the enrollment entirely (the DISABLED state).
	DeleteEnrollment(ctx context.Context, userID string) error
}

type BackupCodes interface {
	// CreateBackupCode stores a backup code hash for a user.
	CreateBackupCode(ctx context.Context, code domain.BackupCode) error

	// GetBackupCode returns the code row for a user+hash pair, used or not.
	GetBackupCode(ctx context.Context, userID, codeHash string) (domain.BackupCode, error)

	// ConsumeBackupCode marks exactly one unused code used. Guarded on
	// used_at IS NULL; ErrNotFound means no spendable code matched (wrong
	// code or already consumed).
	ConsumeBackupCode(ctx context.Context, userID, codeHash string, at time.Time) error

	// DeleteAllBackupCodes removes every code for a user (disable, or
	// replacement on re-enable).
	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountUnusedBackupCodes returns how many codes remain spendable.
	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)
}

type ResetTokens interface {
	// CreateResetToken stores a new password reset token record.
	CreateResetToken(ctx context.Context, t domain.PasswordResetToken) error

	// GetResetTokenByHash returns a token by fingerprint regardless of
	// state; the service layer distinguishes expired from used.
	GetResetTokenByHash(ctx context.Context, hash string) (domain.PasswordResetToken, error)

	// MarkUsed sets used_at. Guarded on used_at IS NULL; ErrNotFound means
	// a concurrent consume already spent the token.
	MarkUsed(ctx context.Context, tokenID string, at time.Time) error

	// DeleteExpired removes tokens past their expiry (housekeeping; unlike
	// invites, reset tokens are not audit records).
	DeleteExpired(ctx context.Context, now time.Time) error
}
