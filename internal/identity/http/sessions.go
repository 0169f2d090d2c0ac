package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/veldtlabs/warden/internal/identity/service"
	"github.com/veldtlabs/warden/pkg/httpx"
	"github.com/veldtlabs/warden/pkg/sessiontoken"
	"github.com/veldtlabs/warden/pkg/slogx"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token       string `json:"token"`
	MFARequired bool   `json:"mfa_required"`
}

// LoginHandler authenticates an email + password pair and returns a signed
// session token. When the account has MFA enabled the token is issued in
// the pending state and the response flags that elevation is required.
type LoginHandler struct {
	SessionService *service.SessionService
	Codec          *sessiontoken.Codec
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	session, err := h.SessionService.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			// One coarse answer for unknown email and wrong password.
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
			return
		}
		log.Error("login failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Login failed")
		return
	}

	token, err := h.Codec.Encode(session.UserID, session.ID, session.MFAVerified, session.ElevationPending())
	if err != nil {
		log.Error("failed to encode session token", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Login failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		Token:       token,
		MFARequired: session.ElevationPending(),
	})
}

type elevateRequest struct {
	Code string `json:"code"`
}

// ElevateHandler settles the second factor of a pending session and
// returns a fully verified replacement token.
type ElevateHandler struct {
	SessionService *service.SessionService
	Codec          *sessiontoken.Codec
}

func (h *ElevateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	session, ok := sessionFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req elevateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}

	elevated, err := h.SessionService.Elevate(ctx, session, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTransition):
			httpx.WriteError(w, http.StatusConflict, "invalid_transition", "Session is not awaiting elevation")
		case errors.Is(err, service.ErrTooManyAttempts):
			httpx.WriteError(w, http.StatusTooManyRequests, "too_many_attempts", "Too many failed attempts, try again later")
		case errors.Is(err, service.ErrNotEnrolled):
			httpx.WriteError(w, http.StatusConflict, "not_enrolled", "MFA is not enrolled for this account")
		case errors.Is(err, service.ErrInvalidCode), errors.Is(err, service.ErrCodeAlreadyUsed):
			// Coarse on purpose; the session stays pending for a retry.
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid verification code")
		default:
			log.Error("elevation failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Elevation failed")
		}
		return
	}

	token, err := h.Codec.Encode(elevated.UserID, elevated.ID, elevated.MFAVerified, false)
	if err != nil {
		log.Error("failed to encode session token", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Elevation failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sessionResponse{Token: token})
}
