package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/veldtlabs/warden/internal/identity/domain"
	"github.com/veldtlabs/warden/internal/identity/notify"
	"github.com/veldtlabs/warden/internal/identity/store"
	"github.com/veldtlabs/warden/pkg/cryptox"
	"github.com/veldtlabs/warden/pkg/idx"
	"github.com/veldtlabs/warden/pkg/slogx"
)

// DefaultResetTTL is how long a password reset token stays spendable.
const DefaultResetTTL = 1 * time.Hour

var (
	ErrTokenNotFound    = errors.New("reset token not found")
	ErrTokenExpired     = errors.New("reset token has expired")
	ErrTokenAlreadyUsed = errors.New("reset token has already been used")
)

// PasswordResetService owns the reset token ledger. Tokens are single-use
// and time-boxed; a principal may hold several outstanding tokens, each
// valid or invalid on its own state alone.
type PasswordResetService struct {
	Store    store.Store
	Notifier notify.Notifier
	TTL      time.Duration
}

func (s *PasswordResetService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultResetTTL
}

// Request mints a reset token for the email's principal. It succeeds from
// the caller's point of view whether or not the email exists; a miss is
// logged and swallowed so the endpoint cannot be used for enumeration.
func (s *PasswordResetService) Request(ctx context.Context, email string) error {
	log := slogx.FromContext(ctx)

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info("password reset requested for unknown email")
			return nil
		}
		log.Error("failed to fetch user for reset", slog.Any("error", err))
		return err
	}

	token, fingerprint, err := cryptox.MintToken(cryptox.TokenSize256)
	if err != nil {
		log.Error("failed to mint reset token", slog.Any("error", err))
		return err
	}

	now := time.Now().UTC()
	record := domain.PasswordResetToken{
		ID:        idx.New().String(),
		UserID:    user.ID,
		TokenHash: fingerprint,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl()),
	}
	if err := s.Store.ResetTokens().CreateResetToken(ctx, record); err != nil {
		log.Error("failed to create reset token", slog.Any("error", err))
		return err
	}

	log.Info("password reset token issued",
		slog.String("user_id", user.ID),
		slog.Time("expires_at", record.ExpiresAt),
	)

	if s.Notifier != nil {
		if err := s.Notifier.SendPasswordReset(ctx, user.Email, token); err != nil {
			log.Warn("failed to send password reset notification", slog.Any("error", err))
		}
	}
	return nil
}

// Consume spends a reset token and replaces the principal's password. The
// mark-used flip and the hash replacement commit together or not at all;
// MarkUsed is guarded on used_at IS NULL, so concurrent consumes of the
// same token produce at most one winner.
func (s *PasswordResetService) Consume(ctx context.Context, token, newPassword string) error {
	log := slogx.FromContext(ctx)

	record, err := s.Store.ResetTokens().GetResetTokenByHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenNotFound
		}
		log.Error("failed to fetch reset token", slog.Any("error", err))
		return err
	}

	now := time.Now().UTC()
	if !record.Spendable(now) {
		if record.UsedAt != nil {
			return ErrTokenAlreadyUsed
		}
		return ErrTokenExpired
	}

	if err := ValidatePasswordPolicy(newPassword); err != nil {
		return err
	}
	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.ResetTokens().MarkUsed(ctx, record.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenAlreadyUsed
			}
			return err
		}
		return tx.Users().UpdatePasswordHash(ctx, record.UserID, hash)
	})
	if err != nil {
		return err
	}

	log.Info("password reset consumed", slog.String("user_id", record.UserID))

	if s.Notifier != nil {
		user, uerr := s.Store.Users().GetUserByID(ctx, record.UserID)
		if uerr == nil {
			if nerr := s.Notifier.SendPasswordChanged(ctx, user.Email); nerr != nil {
				log.Warn("failed to send password changed notification", slog.Any("error", nerr))
			}
		}
	}
	return nil
}
