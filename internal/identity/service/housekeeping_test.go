package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veldtlabs/warden/internal/identity/domain"
)

func TestHousekeeping_SweepsExpiredRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := seedUser(t, env.Store, "admin@example.com", domain.RoleAdmin)
	seedUser(t, env.Store, "alice@example.com", domain.RoleUser)

	env.Invites.TTL = time.Nanosecond
	invite, _, err := env.Invites.Issue(ctx, admin.ID, "old@example.com", domain.RoleUser, "")
	require.NoError(t, err)

	env.Resets.TTL = time.Nanosecond
	require.NoError(t, env.Resets.Request(ctx, "alice@example.com"))
	expiredToken := env.Notifier.Resets[0].Token

	hk := NewHousekeepingService(env.Store, slog.Default(), time.Hour)
	hk.Start()
	hk.Stop()

	// The startup sweep already ran by the time Stop returns.
	got, err := env.Store.Invites().GetInviteByID(ctx, invite.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InviteExpired, got.Status)

	err = env.Resets.Consume(ctx, expiredToken, "N3w!Passphrase")
	require.ErrorIs(t, err, ErrTokenNotFound)
}
