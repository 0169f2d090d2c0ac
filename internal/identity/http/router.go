package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/veldtlabs/warden/internal/identity/service"
	"github.com/veldtlabs/warden/internal/identity/store"
	"github.com/veldtlabs/warden/pkg/httpx"
	"github.com/veldtlabs/warden/pkg/sessiontoken"
	"github.com/veldtlabs/warden/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	codec        *sessiontoken.Codec
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store             store.Store
	CredentialService *service.CredentialService
	InviteService     *service.InviteService
	MFAService        *service.MFAService
	SessionService    *service.SessionService
	ResetService      *service.PasswordResetService
}

func NewRouter(
	codec *sessiontoken.Codec,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		codec:        codec,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Default middleware chain applied to every route.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSessions()
	r.registerInvites()
	r.registerMFA()
	r.registerPasswords()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSessions() {
	loginHandler := &LoginHandler{
		SessionService: r.SessionService,
		Codec:          r.codec,
	}

	// Credential guessing gets the strict budget, keyed by source IP.
	r.Mux.Handle("POST /v1/sessions/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	elevateHandler := &ElevateHandler{
		SessionService: r.SessionService,
		Codec:          r.codec,
	}

	// Elevation is authenticated but deliberately NOT gated on full
	// verification: its whole point is settling the second factor.
	r.Mux.Handle("POST /v1/sessions/elevate",
		httpx.Chain(elevateHandler,
			httpx.AuthnMiddleware(r.codec),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerInvites() {
	issueHandler := &InviteIssueHandler{InviteService: r.InviteService}
	revokeHandler := &InviteRevokeHandler{InviteService: r.InviteService}
	acceptHandler := &InviteAcceptHandler{InviteService: r.InviteService}

	secured := []httpx.Middleware{
		httpx.AuthnMiddleware(r.codec),
		requireFullyVerified(r.SessionService),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	}

	r.Mux.Handle("POST /v1/invites", httpx.Chain(issueHandler, secured...))
	r.Mux.Handle("DELETE /v1/invites/{id}", httpx.Chain(revokeHandler, secured...))

	// Public signup endpoint; the invite token is the credential.
	r.Mux.Handle("POST /v1/invites/accept",
		httpx.Chain(acceptHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerMFA() {
	setupHandler := &MFASetupHandler{MFAService: r.MFAService}
	confirmHandler := &MFAConfirmHandler{MFAService: r.MFAService}
	disableHandler := &MFADisableHandler{MFAService: r.MFAService}
	backupHandler := &MFABackupCodesHandler{MFAService: r.MFAService}

	secured := []httpx.Middleware{
		httpx.AuthnMiddleware(r.codec),
		requireFullyVerified(r.SessionService),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	}

	r.Mux.Handle("POST /v1/mfa/setup", httpx.Chain(setupHandler, secured...))
	r.Mux.Handle("POST /v1/mfa/confirm", httpx.Chain(confirmHandler, secured...))
	r.Mux.Handle("DELETE /v1/mfa", httpx.Chain(disableHandler, secured...))
	r.Mux.Handle("GET /v1/mfa/backup-codes", httpx.Chain(backupHandler, secured...))
}

func (r *Router) registerPasswords() {
	changeHandler := &PasswordChangeHandler{CredentialService: r.CredentialService}

	r.Mux.Handle("POST /v1/password/change",
		httpx.Chain(changeHandler,
			httpx.AuthnMiddleware(r.codec),
			requireFullyVerified(r.SessionService),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	requestHandler := &ResetRequestHandler{ResetService: r.ResetService}
	consumeHandler := &ResetConsumeHandler{ResetService: r.ResetService}

	r.Mux.Handle("POST /v1/password/reset",
		httpx.Chain(requestHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/password/reset/confirm",
		httpx.Chain(consumeHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
