package domain

import "time"

// PasswordResetToken is a single-use, time-boxed credential authorizing a
// password replacement. Multiple outstanding tokens per user are allowed;
// each is valid or invalid on its own state alone.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Spendable reports whether the token can still be consumed at time now.
func (t PasswordResetToken) Spendable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
