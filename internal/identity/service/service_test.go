package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veldtlabs/warden/internal/identity/domain"
	"github.com/veldtlabs/warden/internal/identity/ratelimit"
	"github.com/veldtlabs/warden/internal/identity/store"
	"github.com/veldtlabs/warden/internal/identity/store/drivers/sqlite"
	"github.com/veldtlabs/warden/pkg/cryptox"
	"github.com/veldtlabs/warden/pkg/idx"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "warden-service-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

// sentMail is one recorded notifier call. Inviter and Message are only
// set on invite deliveries.
type sentMail struct {
	Email   string
	Token   string
	Inviter string
	Message string
}

// fakeNotifier records deliveries so tests can assert on them.
type fakeNotifier struct {
	mu sync.Mutex

	Invites         []sentMail
	Resets          []sentMail
	PasswordChanged []string
	MFAEnabled      []string
	MFADisabled     []string
}

func (n *fakeNotifier) SendInvite(ctx context.Context, email, token, inviterName, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Invites = append(n.Invites, sentMail{Email: email, Token: token, Inviter: inviterName, Message: message})
	return nil
}

func (n *fakeNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Resets = append(n.Resets, sentMail{Email: email, Token: token})
	return nil
}

func (n *fakeNotifier) SendPasswordChanged(ctx context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.PasswordChanged = append(n.PasswordChanged, email)
	return nil
}

func (n *fakeNotifier) SendMFAEnabled(ctx context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.MFAEnabled = append(n.MFAEnabled, email)
	return nil
}

func (n *fakeNotifier) SendMFADisabled(ctx context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.MFADisabled = append(n.MFADisabled, email)
	return nil
}

// testEnv bundles one store with every service wired against it.
type testEnv struct {
	Store       store.Store
	Notifier    *fakeNotifier
	Limiter     *ratelimit.MemoryLimiter
	Credentials *CredentialService
	Invites     *InviteService
	MFA         *MFAService
	Sessions    *SessionService
	Resets      *PasswordResetService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := newTestStore(t)
	notifier := &fakeNotifier{}
	limiter := ratelimit.NewMemoryLimiter(ratelimit.DefaultMaxAttempts, ratelimit.DefaultWindow)

	creds := &CredentialService{Store: st, Notifier: notifier}
	mfa := &MFAService{Store: st, Limiter: limiter, Notifier: notifier, Issuer: "Warden Test"}

	return &testEnv{
		Store:       st,
		Notifier:    notifier,
		Limiter:     limiter,
		Credentials: creds,
		Invites:     &InviteService{Store: st, Notifier: notifier},
		MFA:         mfa,
		Sessions:    &SessionService{Credentials: creds, MFA: mfa},
		Resets:      &PasswordResetService{Store: st, Notifier: notifier},
	}
}

const testPassword = "Tr0ub4dor!2026"

// seedUser registers a principal directly in the store with a real
// password hash.
func seedUser(t *testing.T, st store.Store, email string, role domain.Role) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		DisplayName:  "Test User",
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), u))
	return u
}
