// Package notify is the outbound notification boundary. Deliveries are
// best effort: services call it after their own state has committed and
// never fail the operation on a delivery error.
package notify

import "context"

// Notifier delivers account lifecycle notifications. Token parameters
// carry the plaintext secret; implementations must not persist it.
type Notifier interface {
	// SendInvite delivers an invitation. inviterName is the display name
	// of the issuing principal; message is the inviter's optional personal
	// note and may be empty.
	SendInvite(ctx context.Context, email, token, inviterName, message string) error
	SendPasswordReset(ctx context.Context, email, token string) error
	SendPasswordChanged(ctx context.Context, email string) error
	SendMFAEnabled(ctx context.Context, email string) error
	SendMFADisabled(ctx context.Context, email string) error
}
