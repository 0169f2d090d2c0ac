// Package ratelimit bounds failed MFA challenge attempts per principal.
// Only failures count against the window; a successful challenge resets it.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrLimited reports that the key has exhausted its attempt budget for the
// current window.
var ErrLimited = errors.New("ratelimit: too many attempts")

const (
	// DefaultMaxAttempts failed challenges are allowed per window.
	DefaultMaxAttempts = 5
	// DefaultWindow is the rolling lockout window.
	DefaultWindow = 5 * time.Minute
)

// AttemptLimiter tracks failed attempts per key. The in-memory
// implementation protects a single instance; the redis implementation
// shares the counter across instances.
type AttemptLimiter interface {
	// Check returns ErrLimited when the key is currently locked out.
	Check(ctx context.Context, key string) error

	// RecordFailure counts one failed attempt. Returns ErrLimited when
	// this failure exhausts the budget.
	RecordFailure(ctx context.Context, key string) error

	// Reset clears the key's counter (called on success).
	Reset(ctx context.Context, key string) error
}
