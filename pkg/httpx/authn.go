package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/veldtlabs/warden/pkg/sessiontoken"
	"github.com/veldtlabs/warden/pkg/slogx"
)

// AuthnMiddleware verifies the Bearer session token and injects its claims
// into the request context. It only establishes who the caller is; whether
// the session is fully verified is the handlers' decision.
func AuthnMiddleware(codec *sessiontoken.Codec) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := codec.Decode(raw)
			if err != nil {
				log.Warn("session token verification failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx = context.WithValue(ctx, CtxKeyUserID, claims.Subject)
			ctx = context.WithValue(ctx, CtxKeySession, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionClaims extracts the verified session claims placed by
// AuthnMiddleware. The second return is false when the request never
// passed through it.
func SessionClaims(ctx context.Context) (sessiontoken.Claims, bool) {
	claims, ok := ctx.Value(CtxKeySession).(sessiontoken.Claims)
	return claims, ok
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
