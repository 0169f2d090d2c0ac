package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_LocksAfterBudget(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(3, time.Minute)

	require.NoError(t, l.Check(ctx, "user-1"))

	require.NoError(t, l.RecordFailure(ctx, "user-1"))
	require.NoError(t, l.RecordFailure(ctx, "user-1"))
	require.ErrorIs(t, l.RecordFailure(ctx, "user-1"), ErrLimited)

	require.ErrorIs(t, l.Check(ctx, "user-1"), ErrLimited)

	// Other keys are unaffected.
	require.NoError(t, l.Check(ctx, "user-2"))
}

func TestMemoryLimiter_ResetClearsBudget(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(2, time.Minute)

	require.NoError(t, l.RecordFailure(ctx, "user-1"))
	require.ErrorIs(t, l.RecordFailure(ctx, "user-1"), ErrLimited)

	require.NoError(t, l.Reset(ctx, "user-1"))
	require.NoError(t, l.Check(ctx, "user-1"))
}

func TestMemoryLimiter_WindowExpiry(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(2, time.Minute)

	current := time.Now()
	l.now = func() time.Time { return current }

	require.NoError(t, l.RecordFailure(ctx, "user-1"))
	require.ErrorIs(t, l.RecordFailure(ctx, "user-1"), ErrLimited)
	require.ErrorIs(t, l.Check(ctx, "user-1"), ErrLimited)

	current = current.Add(61 * time.Second)
	require.NoError(t, l.Check(ctx, "user-1"))
	require.NoError(t, l.RecordFailure(ctx, "user-1"))
}
