package notify

import (
	"context"

	"github.com/veldtlabs/warden/pkg/slogx"
)

// LogNotifier writes notification events to the structured log instead of
// delivering them. Used in development and as the default until a mail
// provider is wired in. Secrets are never logged.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) SendInvite(ctx context.Context, email, token, inviterName, message string) error {
	slogx.FromContext(ctx).Info("notify: invite issued",
		"email", email,
		"inviter", inviterName,
		"has_message", message != "",
	)
	return nil
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	slogx.FromContext(ctx).Info("notify: password reset requested", "email", email)
	return nil
}

func (n *LogNotifier) SendPasswordChanged(ctx context.Context, email string) error {
	slogx.FromContext(ctx).Info("notify: password changed", "email", email)
	return nil
}

func (n *LogNotifier) SendMFAEnabled(ctx context.Context, email string) error {
	slogx.FromContext(ctx).Info("notify: mfa enabled", "email", email)
	return nil
}

func (n *LogNotifier) SendMFADisabled(ctx context.Context, email string) error {
	slogx.FromContext(ctx).Info("notify: mfa disabled", "email", email)
	return nil
}
