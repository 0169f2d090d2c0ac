package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/veldtlabs/warden/internal/identity/domain"
	"github.com/veldtlabs/warden/internal/identity/notify"
	"github.com/veldtlabs/warden/internal/identity/ratelimit"
	"github.com/veldtlabs/warden/internal/identity/store"
	"github.com/veldtlabs/warden/pkg/cryptox"
	"github.com/veldtlabs/warden/pkg/idx"
	"github.com/veldtlabs/warden/pkg/slogx"
)

const (
	backupCodeCount = 10                   // codes minted per enable
	backupCodeBytes = cryptox.TokenSize128 // 128-bit entropy per code

	totpPeriod = 30 // seconds per TOTP step
	totpDigits = 6
	totpSkew   = 1 // accepted steps either side of now
)

var (
	ErrInvalidCode       = errors.New("invalid verification code")
	ErrCodeAlreadyUsed   = errors.New("backup code has already been used")
	ErrTooManyAttempts   = errors.New("too_many_attempts")
	ErrNotEnrolled       = errors.New("MFA not enrolled for this user")
	ErrMFAAlreadyEnabled = errors.New("MFA already enabled for this user")
)

// MFAService owns the TOTP enrollment state machine and challenge
// verification. The legal transitions are
// DISABLED -> PENDING_VERIFICATION -> ENABLED -> DISABLED; DISABLED is
// modeled as the absence of an enrollment row.
type MFAService struct {
	Store    store.Store
	Limiter  ratelimit.AttemptLimiter
	Notifier notify.Notifier
	Issuer   string // issuer label shown in authenticator apps
}

// BeginSetup mints a fresh TOTP secret and parks the enrollment in
// PENDING_VERIFICATION. A prior pending secret is replaced; an already
// enabled enrollment is not touched.
func (s *MFAService) BeginSetup(ctx context.Context, userID string) (domain.EnrollmentSetup, error) {
	log := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.EnrollmentSetup{}, err
	}

	enrollment, err := s.Store.Enrollments().GetEnrollment(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.EnrollmentSetup{}, err
	}
	if err == nil && enrollment.State == domain.EnrollmentEnabled {
		return domain.EnrollmentSetup{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.EnrollmentSetup{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	sealed, err := cryptox.SealSecret([]byte(key.Secret()))
	if err != nil {
		return domain.EnrollmentSetup{}, fmt.Errorf("failed to seal TOTP secret: %w", err)
	}
	if err := s.Store.Enrollments().UpsertPending(ctx, userID, sealed); err != nil {
		// The upsert is guarded on state; a miss means a concurrent
		// confirmation enabled the enrollment after the check above.
		if errors.Is(err, store.ErrNotFound) {
			return domain.EnrollmentSetup{}, ErrMFAAlreadyEnabled
		}
		return domain.EnrollmentSetup{}, err
	}

	log.Info("mfa setup started", slog.String("user_id", userID))

	return domain.EnrollmentSetup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// ConfirmSetup verifies a code against the pending secret and, on success,
// enables the enrollment and mints ten single-use backup codes. The
// plaintext codes are returned exactly once; only fingerprints are kept.
// On a wrong code nothing changes and the secret stays pending for retry.
func (s *MFAService) ConfirmSetup(ctx context.Context, userID, code string) ([]string, error) {
	log := slogx.FromContext(ctx)

	enrollment, err := s.Store.Enrollments().GetEnrollment(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, err
	}
	if enrollment.State == domain.EnrollmentEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	secret, err := cryptox.OpenSecret(enrollment.SecretSealed)
	if err != nil {
		return nil, fmt.Errorf("failed to open TOTP secret: %w", err)
	}

	now := time.Now().UTC()
	step, ok := matchTOTPStep(string(secret), code, now)
	if !ok {
		return nil, ErrInvalidCode
	}

	backupCodes := make([]string, backupCodeCount)
	for i := range backupCodeCount {
		c, err := cryptox.GenerateToken(backupCodeBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		backupCodes[i] = c
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Enrollments().Enable(ctx, userID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotEnrolled
			}
			return err
		}
		// Burn the confirming step so the same code cannot elevate the
		// login that follows.
		if err := tx.Enrollments().ConsumeTOTPStep(ctx, userID, step); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.Users().SetMFAEnabled(ctx, userID, true); err != nil {
			return err
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return err
		}
		for _, c := range backupCodes {
			bc := domain.BackupCode{
				ID:        idx.New().String(),
				UserID:    userID,
				CodeHash:  cryptox.FingerprintToken(c),
				CreatedAt: now,
			}
			if err := tx.BackupCodes().CreateBackupCode(ctx, bc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("mfa enabled", slog.String("user_id", userID))

	if s.Notifier != nil {
		user, uerr := s.Store.Users().GetUserByID(ctx, userID)
		if uerr == nil {
			if nerr := s.Notifier.SendMFAEnabled(ctx, user.Email); nerr != nil {
				log.Warn("failed to send mfa enabled notification", slog.Any("error", nerr))
			}
		}
	}

	return backupCodes, nil
}

// Challenge verifies a second factor during login elevation. Six-digit
// input takes the TOTP path with anti-replay on the time step; anything
// else is treated as a backup code and spent atomically. Failed attempts
// count against the 5-per-5-minutes budget; success resets it.
func (s *MFAService) Challenge(ctx context.Context, userID, code string) error {
	if s.Limiter != nil {
		if err := s.Limiter.Check(ctx, userID); err != nil {
			if errors.Is(err, ratelimit.ErrLimited) {
				return ErrTooManyAttempts
			}
			return err
		}
	}

	enrollment, err := s.Store.Enrollments().GetEnrollment(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotEnrolled
		}
		return err
	}
	if enrollment.State != domain.EnrollmentEnabled {
		return ErrNotEnrolled
	}

	if isTOTPFormat(code) {
		return s.challengeTOTP(ctx, userID, enrollment, code)
	}
	return s.challengeBackupCode(ctx, userID, code)
}

func (s *MFAService) challengeTOTP(ctx context.Context, userID string, enrollment domain.Enrollment, code string) error {
	secret, err := cryptox.OpenSecret(enrollment.SecretSealed)
	if err != nil {
		return fmt.Errorf("failed to open TOTP secret: %w", err)
	}

	step, ok := matchTOTPStep(string(secret), code, time.Now().UTC())
	if !ok {
		s.recordFailure(ctx, userID)
		return ErrInvalidCode
	}

	// The cursor only moves forward, so a code from an already consumed
	// step fails here even though it matched above.
	if err := s.Store.Enrollments().ConsumeTOTPStep(ctx, userID, step); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordFailure(ctx, userID)
			return ErrInvalidCode
		}
		return err
	}

	s.resetLimiter(ctx, userID)
	return nil
}

func (s *MFAService) challengeBackupCode(ctx context.Context, userID, code string) error {
	now := time.Now().UTC()
	hash := cryptox.FingerprintToken(code)

	// The guarded UPDATE spends at most one unused code.
	err := s.Store.BackupCodes().ConsumeBackupCode(ctx, userID, hash, now)
	if err == nil {
		s.resetLimiter(ctx, userID)
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	s.recordFailure(ctx, userID)

	// Distinguish a spent code from a wrong one.
	if _, getErr := s.Store.BackupCodes().GetBackupCode(ctx, userID, hash); getErr == nil {
		return ErrCodeAlreadyUsed
	} else if !errors.Is(getErr, store.ErrNotFound) {
		return getErr
	}
	return ErrInvalidCode
}

// Disable clears the enrollment and every backup code after a fresh
// password re-verification. An active session alone is not enough to
// downgrade account security.
func (s *MFAService) Disable(ctx context.Context, userID, currentPassword string) error {
	log := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if err := cryptox.VerifyPassword(currentPassword, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	if _, err := s.Store.Enrollments().GetEnrollment(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotEnrolled
		}
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return err
		}
		if err := tx.Enrollments().DeleteEnrollment(ctx, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return tx.Users().SetMFAEnabled(ctx, userID, false)
	})
	if err != nil {
		return err
	}

	log.Info("mfa disabled", slog.String("user_id", userID))

	if s.Notifier != nil {
		if nerr := s.Notifier.SendMFADisabled(ctx, user.Email); nerr != nil {
			log.Warn("failed to send mfa disabled notification", slog.Any("error", nerr))
		}
	}
	return nil
}

// BackupCodesRemaining reports how many backup codes are still spendable.
func (s *MFAService) BackupCodesRemaining(ctx context.Context, userID string) (int, error) {
	return s.Store.BackupCodes().CountUnusedBackupCodes(ctx, userID)
}

func (s *MFAService) recordFailure(ctx context.Context, userID string) {
	if s.Limiter == nil {
		return
	}
	if err := s.Limiter.RecordFailure(ctx, userID); err != nil && !errors.Is(err, ratelimit.ErrLimited) {
		slogx.FromContext(ctx).Warn("failed to record mfa attempt", slog.Any("error", err))
	}
}

func (s *MFAService) resetLimiter(ctx context.Context, userID string) {
	if s.Limiter == nil {
		return
	}
	if err := s.Limiter.Reset(ctx, userID); err != nil {
		slogx.FromContext(ctx).Warn("failed to reset mfa attempt counter", slog.Any("error", err))
	}
}

// isTOTPFormat reports whether the code has the shape of a six-digit TOTP
// code. Backup codes are base64url strings and never look like this.
func isTOTPFormat(code string) bool {
	if len(code) != totpDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// matchTOTPStep checks the code against the current step and one step
// either side, returning the matched step. Candidates are compared in
// constant time.
func matchTOTPStep(secret, code string, at time.Time) (int64, bool) {
	current := at.Unix() / totpPeriod

	matched := int64(0)
	found := false
	for delta := int64(-totpSkew); delta <= totpSkew; delta++ {
		step := current + delta
		expected, err := totp.GenerateCode(secret, time.Unix(step*totpPeriod, 0).UTC())
		if err != nil {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 && !found {
			matched = step
			found = true
		}
	}
	return matched, found
}
