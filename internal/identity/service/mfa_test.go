package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/veldtlabs/warden/internal/identity/domain"
	"github.com/veldtlabs/warden/internal/identity/store"
)

// totpCodeAt generates the code an authenticator app would show at the
// given time.
func totpCodeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	code, err := totp.GenerateCode(secret, at)
	require.NoError(t, err)
	return code
}

// wrongTOTPCode returns a six-digit code guaranteed not to verify against
// the secret anywhere near the current window.
func wrongTOTPCode(t *testing.T, secret string) string {
	t.Helper()

	valid := make(map[string]bool)
	now := time.Now()
	for delta := -2; delta <= 2; delta++ {
		valid[totpCodeAt(t, secret, now.Add(time.Duration(delta)*totpPeriod*time.Second))] = true
	}
	for i := 0; ; i++ {
		candidate := fmt.Sprintf("%06d", i)
		if !valid[candidate] {
			return candidate
		}
	}
}

// enableMFA walks a user through setup and confirmation, returning the
// shared secret and the backup codes.
func enableMFA(t *testing.T, env *testEnv, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := env.MFA.BeginSetup(ctx, userID)
	require.NoError(t, err)

	codes, err := env.MFA.ConfirmSetup(ctx, userID, totpCodeAt(t, setup.Secret, time.Now()))
	require.NoError(t, err)
	return setup.Secret, codes
}

func TestMFA_BeginSetup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)

	setup, err := env.MFA.BeginSetup(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
	require.Contains(t, setup.ProvisioningURI, "alice%40example.com")

	// Enrollment is pending; the flag is not flipped yet.
	enrollment, err := env.Store.Enrollments().GetEnrollment(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EnrollmentPending, enrollment.State)

	got, err := env.Store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, got.MFAEnabled)

	// The secret at rest is sealed, never the raw base32.
	require.False(t, strings.Contains(string(enrollment.SecretSealed), setup.Secret))
}

func TestMFA_BeginSetupReplacesPendingSecret(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)

	first, err := env.MFA.BeginSetup(ctx, user.ID)
	require.NoError(t, err)
	second, err := env.MFA.BeginSetup(ctx, user.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	// Only the latest secret confirms.
	_, err = env.MFA.ConfirmSetup(ctx, user.ID, totpCodeAt(t, first.Secret, time.Now()))
	require.ErrorIs(t, err, ErrInvalidCode)

	_, err = env.MFA.ConfirmSetup(ctx, user.ID, totpCodeAt(t, second.Secret, time.Now()))
	require.NoError(t, err)
}

func TestMFA_BeginSetupWhenEnabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)
	enableMFA(t, env, user.ID)

	_, err := env.MFA.BeginSetup(ctx, user.ID)
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
}

func TestMFA_StaleSetupWriteCannotDowngradeEnabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)
	secret, _ := enableMFA(t, env, user.ID)

	// A setup write prepared before the confirmation lands afterwards,
	// as when a second browser tab finishes first. The state guard must
	// reject it rather than flip ENABLED back to pending.
	err := env.Store.Enrollments().UpsertPending(ctx, user.ID, []byte("stale-sealed-secret"))
	require.ErrorIs(t, err, store.ErrNotFound)

	enrollment, err := env.Store.Enrollments().GetEnrollment(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EnrollmentEnabled, enrollment.State)

	got, err := env.Store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, got.MFAEnabled)

	// The enrollment still challenges with the original secret.
	code := totpCodeAt(t, secret, time.Now().Add(totpPeriod*time.Second))
	require.NoError(t, env.MFA.Challenge(ctx, user.ID, code))
}

func TestMFA_ConfirmSetup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)

	_, codes := enableMFA(t, env, user.ID)
	require.Len(t, codes, 10)

	enrollment, err := env.Store.Enrollments().GetEnrollment(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EnrollmentEnabled, enrollment.State)
	require.NotNil(t, enrollment.EnabledAt)

	got, err := env.Store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, got.MFAEnabled)

	remaining, err := env.MFA.BackupCodesRemaining(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 10, remaining)

	require.Equal(t, []string{"alice@example.com"}, env.Notifier.MFAEnabled)
}

func TestMFA_ConfirmSetupWrongCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)

	setup, err := env.MFA.BeginSetup(ctx, user.ID)
	require.NoError(t, err)

	_, err = env.MFA.ConfirmSetup(ctx, user.ID, wrongTOTPCode(t, setup.Secret))
	require.ErrorIs(t, err, ErrInvalidCode)

	// The secret stays pending so the user may retry.
	enrollment, err := env.Store.Enrollments().GetEnrollment(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EnrollmentPending, enrollment.State)

	_, err = env.MFA.ConfirmSetup(ctx, user.ID, totpCodeAt(t, setup.Secret, time.Now()))
	require.NoError(t, err)
}

func TestMFA_ConfirmSetupWithoutEnrollment(t *testing.T) {
	env := newTestEnv(t)

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)

	_, err := env.MFA.ConfirmSetup(context.Background(), user.ID, "123456")
	require.ErrorIs(t, err, ErrNotEnrolled)
}

func TestMFA_ChallengeTOTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)
	secret, _ := enableMFA(t, env, user.ID)

	// The confirming code burned the current step; the next step's code
	// sits inside the skew window and verifies.
	code := totpCodeAt(t, secret, time.Now().Add(totpPeriod*time.Second))
	require.NoError(t, env.MFA.Challenge(ctx, user.ID, code))
}

func TestMFA_ChallengeTOTPReplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)
	secret, _ := enableMFA(t, env, user.ID)

	code := totpCodeAt(t, secret, time.Now().Add(totpPeriod*time.Second))
	require.NoError(t, env.MFA.Challenge(ctx, user.ID, code))

	// A valid code must not verify twice.
	require.ErrorIs(t, env.MFA.Challenge(ctx, user.ID, code), ErrInvalidCode)
}

func TestMFA_ChallengeWrongCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)
	secret, _ := enableMFA(t, env, user.ID)

	require.ErrorIs(t, env.MFA.Challenge(ctx, user.ID, wrongTOTPCode(t, secret)), ErrInvalidCode)
}

func TestMFA_ChallengeWithoutEnrollment(t *testing.T) {
	env := newTestEnv(t)

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)

	require.ErrorIs(t, env.MFA.Challenge(context.Background(), user.ID, "123456"), ErrNotEnrolled)
}

func TestMFA_ChallengeBackupCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)
	_, codes := enableMFA(t, env, user.ID)

	require.NoError(t, env.MFA.Challenge(ctx, user.ID, codes[0]))

	remaining, err := env.MFA.BackupCodesRemaining(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 9, remaining)

	// Spending one code never touches its siblings.
	require.NoError(t, env.MFA.Challenge(ctx, user.ID, codes[1]))
}

func TestMFA_ChallengeBackupCodeDoubleSpend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)
	_, codes := enableMFA(t, env, user.ID)

	require.NoError(t, env.MFA.Challenge(ctx, user.ID, codes[0]))
	require.ErrorIs(t, env.MFA.Challenge(ctx, user.ID, codes[0]), ErrCodeAlreadyUsed)
}

func TestMFA_ChallengeUnknownBackupCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)
	enableMFA(t, env, user.ID)

	require.ErrorIs(t, env.MFA.Challenge(ctx, user.ID, "not-a-real-backup-code"), ErrInvalidCode)
}

func TestMFA_ChallengeRateLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)
	secret, codes := enableMFA(t, env, user.ID)

	wrong := wrongTOTPCode(t, secret)
	for range 5 {
		require.ErrorIs(t, env.MFA.Challenge(ctx, user.ID, wrong), ErrInvalidCode)
	}

	// The budget is spent; even a valid factor is locked out now.
	require.ErrorIs(t, env.MFA.Challenge(ctx, user.ID, codes[0]), ErrTooManyAttempts)
}

func TestMFA_ChallengeSuccessResetsLimiter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)
	secret, codes := enableMFA(t, env, user.ID)

	wrong := wrongTOTPCode(t, secret)
	for range 4 {
		require.ErrorIs(t, env.MFA.Challenge(ctx, user.ID, wrong), ErrInvalidCode)
	}

	require.NoError(t, env.MFA.Challenge(ctx, user.ID, codes[0]))

	// The counter started over; more headroom than one attempt remains.
	require.ErrorIs(t, env.MFA.Challenge(ctx, user.ID, wrong), ErrInvalidCode)
	require.NoError(t, env.MFA.Challenge(ctx, user.ID, codes[1]))
}

func TestMFA_Disable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)
	enableMFA(t, env, user.ID)

	// A fresh password is required, not merely an active session.
	require.ErrorIs(t, env.MFA.Disable(ctx, user.ID, "Wr0ng!Password99"), ErrInvalidCredentials)

	require.NoError(t, env.MFA.Disable(ctx, user.ID, testPassword))

	_, err := env.Store.Enrollments().GetEnrollment(ctx, user.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := env.Store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, got.MFAEnabled)

	remaining, err := env.MFA.BackupCodesRemaining(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, remaining)

	require.Equal(t, []string{"alice@example.com"}, env.Notifier.MFADisabled)
}

func TestMFA_DisableWithoutEnrollment(t *testing.T) {
	env := newTestEnv(t)

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)

	err := env.MFA.Disable(context.Background(), user.ID, testPassword)
	require.ErrorIs(t, err, ErrNotEnrolled)
}

func TestMFA_ReenableMintsFreshBackupCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "alice@example.com", domain.RoleUser)
	_, oldCodes := enableMFA(t, env, user.ID)

	require.NoError(t, env.MFA.Disable(ctx, user.ID, testPassword))
	_, newCodes := enableMFA(t, env, user.ID)

	require.NoError(t, env.MFA.Challenge(ctx, user.ID, newCodes[0]))
	require.ErrorIs(t, env.MFA.Challenge(ctx, user.ID, oldCodes[0]), ErrInvalidCode)
}
