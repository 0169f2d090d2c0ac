package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/veldtlabs/warden/internal/identity/service"
	"github.com/veldtlabs/warden/pkg/httpx"
	"github.com/veldtlabs/warden/pkg/slogx"
)

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// PasswordChangeHandler replaces the caller's password after re-verifying
// the current one.
type PasswordChangeHandler struct {
	CredentialService *service.CredentialService
}

func (h *PasswordChangeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req passwordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "current_password and new_password are required")
		return
	}

	if err := h.CredentialService.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Password verification failed")
		case errors.Is(err, service.ErrWeakCredential):
			httpx.WriteError(w, http.StatusBadRequest, "weak_credential", "Password does not meet the strength policy")
		default:
			log.Error("failed to change password", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to change password")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type resetRequestRequest struct {
	Email string `json:"email"`
}

// ResetRequestHandler mints a password reset token. The response never
// reveals whether the email exists.
type ResetRequestHandler struct {
	ResetService *service.PasswordResetService
}

func (h *ResetRequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req resetRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Email == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	if err := h.ResetService.Request(ctx, req.Email); err != nil {
		log.Error("failed to request password reset", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to request password reset")
		return
	}

	// 202 whether or not a token was minted.
	w.WriteHeader(http.StatusAccepted)
}

type resetConsumeRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ResetConsumeHandler spends a reset token and sets the new password.
type ResetConsumeHandler struct {
	ResetService *service.PasswordResetService
}

func (h *ResetConsumeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req resetConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "token and new_password are required")
		return
	}

	if err := h.ResetService.Consume(ctx, req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrTokenNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Reset token not found")
		case errors.Is(err, service.ErrTokenExpired):
			httpx.WriteError(w, http.StatusGone, "expired", "Reset token has expired")
		case errors.Is(err, service.ErrTokenAlreadyUsed):
			httpx.WriteError(w, http.StatusConflict, "already_used", "Reset token has already been used")
		case errors.Is(err, service.ErrWeakCredential):
			httpx.WriteError(w, http.StatusBadRequest, "weak_credential", "Password does not meet the strength policy")
		default:
			log.Error("failed to consume reset token", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to reset password")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
