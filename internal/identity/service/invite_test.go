package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veldtlabs/warden/internal/identity/domain"
)

func TestInvite_IssueRequiresAdminRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := seedUser(t, env.Store, "user@example.com", domain.RoleUser)

	_, _, err := env.Invites.Issue(ctx, user.ID, "new@example.com", domain.RoleUser, "")
	require.ErrorIs(t, err, ErrInviteForbidden)

	_, _, err = env.Invites.Issue(ctx, "no-such-user", "new@example.com", domain.RoleUser, "")
	require.ErrorIs(t, err, ErrInviteForbidden)
}

func TestInvite_IssueValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := seedUser(t, env.Store, "admin@example.com", domain.RoleAdmin)

	_, _, err := env.Invites.Issue(ctx, admin.ID, "new@example.com", domain.Role("SUPERVISOR"), "")
	require.ErrorIs(t, err, ErrInvalidRole)

	_, _, err = env.Invites.Issue(ctx, admin.ID, "not-an-email", domain.RoleUser, "")
	require.ErrorIs(t, err, ErrInvalidInviteRequest)
}

func TestInvite_IssueAndAccept(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := seedUser(t, env.Store, "admin@example.com", domain.RoleAdmin)

	invite, token, err := env.Invites.Issue(ctx, admin.ID, "Alice@Example.com", domain.RoleUser, "welcome aboard")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, "alice@example.com", invite.Email)
	require.Equal(t, domain.InvitePending, invite.Status)

	// The plaintext token went out through the notifier, not the store,
	// along with the inviter's name and the personal message.
	require.Len(t, env.Notifier.Invites, 1)
	require.Equal(t, token, env.Notifier.Invites[0].Token)
	require.Equal(t, "Test User", env.Notifier.Invites[0].Inviter)
	require.Equal(t, "welcome aboard", env.Notifier.Invites[0].Message)

	user, err := env.Invites.Accept(ctx, token, "Alice", testPassword)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)
	require.Equal(t, domain.RoleUser, user.Role)

	stored, err := env.Store.Invites().GetInviteByID(ctx, invite.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InviteAccepted, stored.Status)
	require.Equal(t, user.ID, stored.UsedBy)

	// The account is immediately usable.
	session, err := env.Sessions.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)
	require.True(t, session.FullyVerified())
}

func TestInvite_AcceptSpentToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := seedUser(t, env.Store, "admin@example.com", domain.RoleAdmin)
	_, token, err := env.Invites.Issue(ctx, admin.ID, "alice@example.com", domain.RoleUser, "")
	require.NoError(t, err)

	_, err = env.Invites.Accept(ctx, token, "Alice", testPassword)
	require.NoError(t, err)

	_, err = env.Invites.Accept(ctx, token, "Mallory", testPassword)
	require.ErrorIs(t, err, ErrInviteAlreadyUsed)
}

func TestInvite_AcceptUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Invites.Accept(context.Background(), "no-such-token", "Alice", testPassword)
	require.ErrorIs(t, err, ErrInviteNotFound)
}

func TestInvite_AcceptWeakPasswordLeavesInvitePending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := seedUser(t, env.Store, "admin@example.com", domain.RoleAdmin)
	invite, token, err := env.Invites.Issue(ctx, admin.ID, "alice@example.com", domain.RoleUser, "")
	require.NoError(t, err)

	_, err = env.Invites.Accept(ctx, token, "Alice", "password1")
	require.ErrorIs(t, err, ErrWeakCredential)

	stored, err := env.Store.Invites().GetInviteByID(ctx, invite.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InvitePending, stored.Status)

	// Retrying with a strong password still works.
	_, err = env.Invites.Accept(ctx, token, "Alice", testPassword)
	require.NoError(t, err)
}

func TestInvite_AcceptExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := seedUser(t, env.Store, "admin@example.com", domain.RoleAdmin)

	env.Invites.TTL = time.Nanosecond
	invite, token, err := env.Invites.Issue(ctx, admin.ID, "alice@example.com", domain.RoleUser, "")
	require.NoError(t, err)

	_, err = env.Invites.Accept(ctx, token, "Alice", testPassword)
	require.ErrorIs(t, err, ErrInviteExpired)

	// Accept marked it EXPIRED opportunistically.
	stored, err := env.Store.Invites().GetInviteByID(ctx, invite.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InviteExpired, stored.Status)

	// A second attempt classifies the terminal state the same way.
	_, err = env.Invites.Accept(ctx, token, "Alice", testPassword)
	require.ErrorIs(t, err, ErrInviteExpired)
}

func TestInvite_AcceptEmailAlreadyRegistered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := seedUser(t, env.Store, "admin@example.com", domain.RoleAdmin)
	invite, token, err := env.Invites.Issue(ctx, admin.ID, "alice@example.com", domain.RoleUser, "")
	require.NoError(t, err)

	// The address registers through some other path before the accept.
	seedUser(t, env.Store, "alice@example.com", domain.RoleUser)

	_, err = env.Invites.Accept(ctx, token, "Alice", testPassword)
	require.ErrorIs(t, err, ErrEmailTaken)

	// The whole transaction rolled back; the invite is still spendable.
	stored, err := env.Store.Invites().GetInviteByID(ctx, invite.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InvitePending, stored.Status)
}

func TestInvite_Revoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := seedUser(t, env.Store, "admin@example.com", domain.RoleAdmin)
	user := seedUser(t, env.Store, "user@example.com", domain.RoleUser)

	invite, _, err := env.Invites.Issue(ctx, admin.ID, "alice@example.com", domain.RoleUser, "")
	require.NoError(t, err)

	require.ErrorIs(t, env.Invites.Revoke(ctx, user.ID, invite.ID), ErrInviteForbidden)

	require.NoError(t, env.Invites.Revoke(ctx, admin.ID, invite.ID))

	stored, err := env.Store.Invites().GetInviteByID(ctx, invite.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InviteRevoked, stored.Status)

	// Terminal states cannot be revoked again.
	require.ErrorIs(t, env.Invites.Revoke(ctx, admin.ID, invite.ID), ErrInvalidTransition)
	require.ErrorIs(t, env.Invites.Revoke(ctx, admin.ID, "no-such-invite"), ErrInviteNotFound)
}

func TestInvite_RevokedTokenCannotBeAccepted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := seedUser(t, env.Store, "admin@example.com", domain.RoleAdmin)
	invite, token, err := env.Invites.Issue(ctx, admin.ID, "alice@example.com", domain.RoleUser, "")
	require.NoError(t, err)
	require.NoError(t, env.Invites.Revoke(ctx, admin.ID, invite.ID))

	_, err = env.Invites.Accept(ctx, token, "Alice", testPassword)
	require.ErrorIs(t, err, ErrInviteAlreadyUsed)
}

func TestInvite_DuplicatePendingInvitesAllowed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := seedUser(t, env.Store, "admin@example.com", domain.RoleAdmin)

	_, token1, err := env.Invites.Issue(ctx, admin.ID, "alice@example.com", domain.RoleUser, "")
	require.NoError(t, err)
	_, token2, err := env.Invites.Issue(ctx, admin.ID, "alice@example.com", domain.RoleUser, "")
	require.NoError(t, err)
	require.NotEqual(t, token1, token2)

	// The first token spends; the second dies on the unique email, not on
	// its own ledger state.
	_, err = env.Invites.Accept(ctx, token1, "Alice", testPassword)
	require.NoError(t, err)
	_, err = env.Invites.Accept(ctx, token2, "Alice", testPassword)
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestInvite_SweepExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := seedUser(t, env.Store, "admin@example.com", domain.RoleAdmin)

	env.Invites.TTL = time.Nanosecond
	expired, _, err := env.Invites.Issue(ctx, admin.ID, "old@example.com", domain.RoleUser, "")
	require.NoError(t, err)

	env.Invites.TTL = time.Hour
	fresh, _, err := env.Invites.Issue(ctx, admin.ID, "new@example.com", domain.RoleUser, "")
	require.NoError(t, err)

	moved, err := env.Invites.SweepExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, moved)

	gotExpired, err := env.Store.Invites().GetInviteByID(ctx, expired.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InviteExpired, gotExpired.Status)

	gotFresh, err := env.Store.Invites().GetInviteByID(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InvitePending, gotFresh.Status)
}
