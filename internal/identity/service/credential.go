package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/veldtlabs/warden/internal/identity/domain"
	"github.com/veldtlabs/warden/internal/identity/notify"
	"github.com/veldtlabs/warden/internal/identity/store"
	"github.com/veldtlabs/warden/pkg/cryptox"
	"github.com/veldtlabs/warden/pkg/slogx"
)

const minPasswordLength = 12

var (
	ErrWeakCredential     = errors.New("password does not meet the strength policy")
	ErrInvalidCredentials = errors.New("invalid_credentials")
)

// CredentialService owns password hashing, verification and atomic
// replacement. It is deliberately coarse about failure: an unknown email
// and a wrong password are indistinguishable to callers.
type CredentialService struct {
	Store    store.Store
	Notifier notify.Notifier
}

// dummyHash is verified against when the email lookup misses, so the
// login path costs one argon2id computation whether or not the principal
// exists.
var (
	dummyHashOnce sync.Once
	dummyHash     string
)

func getDummyHash() string {
	dummyHashOnce.Do(func() {
		h, err := cryptox.HashPassword("warden-dummy-credential")
		if err == nil {
			dummyHash = h
		}
	})
	return dummyHash
}

// ValidatePasswordPolicy enforces the minimum-strength policy: at least
// 12 characters containing upper, lower, digit and symbol classes.
func ValidatePasswordPolicy(password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakCredential
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return ErrWeakCredential
	}
	return nil
}

// SetPassword validates the policy, hashes the plaintext and replaces the
// stored hash in a single UPDATE.
func (s *CredentialService) SetPassword(ctx context.Context, userID, plaintext string) error {
	if err := ValidatePasswordPolicy(plaintext); err != nil {
		return err
	}

	hash, err := cryptox.HashPassword(plaintext)
	if err != nil {
		return err
	}

	return s.Store.Users().UpdatePasswordHash(ctx, userID, hash)
}

// VerifyPassword authenticates an email + password pair and returns the
// principal. Both "no such email" and "wrong password" surface as
// ErrInvalidCredentials, with a dummy hash comparison on the miss path so
// the two cost the same.
func (s *CredentialService) VerifyPassword(ctx context.Context, email, plaintext string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = cryptox.VerifyPassword(plaintext, getDummyHash())
			return domain.User{}, ErrInvalidCredentials
		}
		log.Error("failed to fetch user by email", slog.Any("error", err))
		return domain.User{}, err
	}

	if err := cryptox.VerifyPassword(plaintext, user.PasswordHash); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// VerifyPasswordByID re-checks the password of a known principal. Used by
// flows that demand a fresh credential (MFA disable) rather than merely
// an active session.
func (s *CredentialService) VerifyPasswordByID(ctx context.Context, userID, plaintext string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = cryptox.VerifyPassword(plaintext, getDummyHash())
			return ErrInvalidCredentials
		}
		return err
	}
	if err := cryptox.VerifyPassword(plaintext, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// ChangePassword re-verifies the current password before replacing it.
// The replacement itself is one UPDATE, so there is no window where the
// account holds neither hash.
func (s *CredentialService) ChangePassword(ctx context.Context, userID, currentPlaintext, newPlaintext string) error {
	log := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	if err := cryptox.VerifyPassword(currentPlaintext, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	if err := s.SetPassword(ctx, userID, newPlaintext); err != nil {
		return err
	}

	log.Info("password changed", slog.String("user_id", userID))

	if s.Notifier != nil {
		if err := s.Notifier.SendPasswordChanged(ctx, user.Email); err != nil {
			log.Warn("failed to send password changed notification", slog.Any("error", err))
		}
	}
	return nil
}
