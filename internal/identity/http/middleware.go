package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/veldtlabs/warden/internal/identity/domain"
	"github.com/veldtlabs/warden/internal/identity/service"
	"github.com/veldtlabs/warden/pkg/httpx"
)

// sessionFromContext rebuilds the domain session from the claims that
// AuthnMiddleware verified. The token's presence proves authentication;
// the two booleans carry the elevation state.
func sessionFromContext(ctx context.Context) (domain.Session, bool) {
	claims, ok := httpx.SessionClaims(ctx)
	if !ok {
		return domain.Session{}, false
	}

	session := domain.Session{
		ID:            claims.SessionID,
		UserID:        claims.Subject,
		Authenticated: true,
		MFAVerified:   claims.MFAVerified,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	return session, true
}

// requireFullyVerified is the gate in front of every protected route. A
// session still waiting on its second factor gets a distinguishable
// mfa_required response so the client can prompt for elevation.
func requireFullyVerified(sessions *service.SessionService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := sessionFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			if err := sessions.RequireFullyVerified(session); err != nil {
				switch {
				case errors.Is(err, service.ErrMFARequired):
					httpx.WriteError(w, http.StatusForbidden, "mfa_required", "Session requires second-factor verification")
				default:
					httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
