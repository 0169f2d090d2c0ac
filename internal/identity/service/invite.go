package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/veldtlabs/warden/internal/identity/domain"
	"github.com/veldtlabs/warden/internal/identity/notify"
	"github.com/veldtlabs/warden/internal/identity/store"
	"github.com/veldtlabs/warden/pkg/cryptox"
	"github.com/veldtlabs/warden/pkg/idx"
	"github.com/veldtlabs/warden/pkg/slogx"
)

// DefaultInviteTTL is how long an issued invite stays spendable.
const DefaultInviteTTL = 72 * time.Hour

var (
	ErrInvalidInviteRequest = errors.New("invalid invite request")
	ErrInvalidRole          = errors.New("invalid role")
	ErrInviteForbidden      = errors.New("caller may not manage invites")
	ErrInviteNotFound       = errors.New("invite not found")
	ErrInviteExpired        = errors.New("invite has expired")
	ErrInviteAlreadyUsed    = errors.New("invite has already been used")
	ErrInvalidTransition    = errors.New("record is in a terminal state")
	ErrEmailTaken           = errors.New("email already registered")
)

// InviteService owns the invite ledger: issuance, acceptance, revocation
// and expiry bookkeeping. Invites are single-use and time-boxed; terminal
// rows are kept as audit records.
type InviteService struct {
	Store    store.Store
	Notifier notify.Notifier
	TTL      time.Duration
}

func (s *InviteService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultInviteTTL
}

// Issue creates a PENDING invite for an email with a pre-assigned role and
// returns the invite plus the plaintext token. Several PENDING invites may
// coexist for the same email; each token is independently valid until its
// own terminal transition.
func (s *InviteService) Issue(ctx context.Context, inviterID, email string, role domain.Role, message string) (domain.Invite, string, error) {
	log := slogx.FromContext(ctx)

	// 1. The inviter must exist and hold an invite-capable role.
	inviter, err := s.Store.Users().GetUserByID(ctx, inviterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Invite{}, "", ErrInviteForbidden
		}
		log.Error("failed to fetch inviter", slog.Any("error", err))
		return domain.Invite{}, "", err
	}
	if !inviter.Role.CanInvite() {
		log.Warn("invite attempt by non-admin",
			slog.String("inviter_id", inviterID),
			slog.String("role", string(inviter.Role)),
		)
		return domain.Invite{}, "", ErrInviteForbidden
	}

	// 2. Validate the target role and address.
	if !role.Valid() {
		return domain.Invite{}, "", ErrInvalidRole
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.Invite{}, "", ErrInvalidInviteRequest
	}

	// 3. Mint the token and persist only its fingerprint.
	token, fingerprint, err := cryptox.MintToken(cryptox.TokenSize256)
	if err != nil {
		log.Error("failed to mint invite token", slog.Any("error", err))
		return domain.Invite{}, "", err
	}

	now := time.Now().UTC()
	invite := domain.Invite{
		ID:        idx.New().String(),
		TokenHash: fingerprint,
		Email:     email,
		Role:      role,
		InvitedBy: inviterID,
		Message:   message,
		Status:    domain.InvitePending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl()),
	}
	if err := s.Store.Invites().CreateInvite(ctx, invite); err != nil {
		log.Error("failed to create invite", slog.Any("error", err))
		return domain.Invite{}, "", err
	}

	log.Info("invite issued",
		slog.String("invite_id", invite.ID),
		slog.String("email", email),
		slog.String("role", string(role)),
		slog.Time("expires_at", invite.ExpiresAt),
	)

	// 4. Delivery is best effort; the invite stands either way.
	if s.Notifier != nil {
		if err := s.Notifier.SendInvite(ctx, email, token, inviter.DisplayName, message); err != nil {
			log.Warn("failed to send invite notification", slog.Any("error", err))
		}
	}

	return invite, token, nil
}

// Accept spends an invite token and registers the principal it was issued
// for. The PENDING -> ACCEPTED flip and the user creation commit together
// or not at all, so two racing accepts on one token produce exactly one
// principal and the loser sees ErrInviteAlreadyUsed.
func (s *InviteService) Accept(ctx context.Context, token, displayName, password string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	// 1. Look up by fingerprint, never by plaintext.
	invite, err := s.Store.Invites().GetInviteByTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInviteNotFound
		}
		log.Error("failed to fetch invite", slog.Any("error", err))
		return domain.User{}, err
	}

	// 2. Classify the invite state. Expiry is re-checked here regardless
	// of whether the sweep has run; the sweep is advisory only.
	now := time.Now().UTC()
	switch {
	case invite.Status == domain.InviteExpired:
		return domain.User{}, ErrInviteExpired
	case invite.Status.Terminal():
		return domain.User{}, ErrInviteAlreadyUsed
	case now.After(invite.ExpiresAt):
		if err := s.Store.Invites().MarkExpired(ctx, invite.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Warn("failed to mark invite expired", slog.Any("error", err))
		}
		return domain.User{}, ErrInviteExpired
	}

	// 3. Validate and hash the password before opening the transaction.
	if err := ValidatePasswordPolicy(password); err != nil {
		return domain.User{}, err
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           idx.New().String(),
		Email:        invite.Email,
		DisplayName:  strings.TrimSpace(displayName),
		Role:         invite.Role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 4. Spend the token and create the principal atomically. MarkAccepted
	// is guarded on status = PENDING, so it decides the race.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Invites().MarkAccepted(ctx, invite.ID, user.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInviteAlreadyUsed
			}
			return err
		}
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrEmailTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}

	log.Info("invite accepted",
		slog.String("invite_id", invite.ID),
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// Revoke transitions a PENDING invite to REVOKED. Any other starting
// state fails ErrInvalidTransition; accepted invites stay accepted.
func (s *InviteService) Revoke(ctx context.Context, actorID, inviteID string) error {
	log := slogx.FromContext(ctx)

	actor, err := s.Store.Users().GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInviteForbidden
		}
		return err
	}
	if !actor.Role.CanInvite() {
		return ErrInviteForbidden
	}

	if err := s.Store.Invites().MarkRevoked(ctx, inviteID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		// The guard missed: either no such invite, or it is terminal.
		if _, getErr := s.Store.Invites().GetInviteByID(ctx, inviteID); getErr != nil {
			if errors.Is(getErr, store.ErrNotFound) {
				return ErrInviteNotFound
			}
			return getErr
		}
		return ErrInvalidTransition
	}

	log.Info("invite revoked",
		slog.String("invite_id", inviteID),
		slog.String("actor_id", actorID),
	)
	return nil
}

// SweepExpired moves PENDING invites past their expiry to EXPIRED. Purely
// bookkeeping; Accept re-checks expiry on its own.
func (s *InviteService) SweepExpired(ctx context.Context) (int64, error) {
	return s.Store.Invites().SweepExpired(ctx, time.Now().UTC())
}
