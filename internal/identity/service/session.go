package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/veldtlabs/warden/internal/identity/domain"
	"github.com/veldtlabs/warden/pkg/idx"
	"github.com/veldtlabs/warden/pkg/slogx"
)

var (
	ErrUnauthenticated = errors.New("login required")
	ErrMFARequired     = errors.New("mfa_required")
)

// SessionService is the login state machine. A password-verified login is
// AUTHENTICATED; a principal with MFA enabled additionally passes through
// MFA_PENDING until a challenge succeeds. Sessions are values, not
// persisted records.
type SessionService struct {
	Credentials *CredentialService
	MFA         *MFAService
}

// Login authenticates an email + password pair. Any failure is the coarse
// ErrInvalidCredentials; nothing reveals which factor was wrong or whether
// the email exists. Principals without MFA come back fully verified.
func (s *SessionService) Login(ctx context.Context, email, password string) (domain.Session, error) {
	log := slogx.FromContext(ctx)

	user, err := s.Credentials.VerifyPassword(ctx, email, password)
	if err != nil {
		return domain.Session{}, err
	}

	session := domain.Session{
		ID:            idx.New().String(),
		UserID:        user.ID,
		Authenticated: true,
		MFAVerified:   !user.MFAEnabled,
		IssuedAt:      time.Now().UTC(),
	}

	log.Info("login succeeded",
		slog.String("user_id", user.ID),
		slog.Bool("mfa_pending", session.ElevationPending()),
	)
	return session, nil
}

// Elevate settles the second factor of a pending session. Only legal from
// MFA_PENDING; a failed challenge leaves the session pending rather than
// logging it out, but protected operations stay blocked until it succeeds.
func (s *SessionService) Elevate(ctx context.Context, session domain.Session, code string) (domain.Session, error) {
	if !session.ElevationPending() {
		return session, ErrInvalidTransition
	}

	if err := s.MFA.Challenge(ctx, session.UserID, code); err != nil {
		return session, err
	}

	session.MFAVerified = true

	slogx.FromContext(ctx).Info("session elevated", slog.String("user_id", session.UserID))
	return session, nil
}

// RequireFullyVerified is the single gate in front of every protected
// action, MFA disable and password change included.
func (s *SessionService) RequireFullyVerified(session domain.Session) error {
	if !session.Authenticated {
		return ErrUnauthenticated
	}
	if !session.MFAVerified {
		return ErrMFARequired
	}
	return nil
}
