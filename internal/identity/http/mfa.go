package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/veldtlabs/warden/internal/identity/service"
	"github.com/veldtlabs/warden/pkg/httpx"
	"github.com/veldtlabs/warden/pkg/slogx"
)

type mfaSetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// MFASetupHandler mints a fresh TOTP secret for the caller. The secret is
// shown exactly once; it is sealed before it reaches storage.
type MFASetupHandler struct {
	MFAService *service.MFAService
}

func (h *MFASetupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	setup, err := h.MFAService.BeginSetup(ctx, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMFAAlreadyEnabled):
			httpx.WriteError(w, http.StatusConflict, "already_enabled", "MFA is already enabled")
		default:
			log.Error("failed to begin mfa setup", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to begin MFA setup")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfaSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
	})
}

type mfaConfirmRequest struct {
	Code string `json:"code"`
}

type mfaConfirmResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// MFAConfirmHandler verifies the first code and enables the enrollment.
// The response is the only time the backup codes exist in plaintext.
type MFAConfirmHandler struct {
	MFAService *service.MFAService
}

func (h *MFAConfirmHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req mfaConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}

	codes, err := h.MFAService.ConfirmSetup(ctx, userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotEnrolled):
			httpx.WriteError(w, http.StatusConflict, "not_enrolled", "MFA setup has not been started")
		case errors.Is(err, service.ErrMFAAlreadyEnabled):
			httpx.WriteError(w, http.StatusConflict, "already_enabled", "MFA is already enabled")
		case errors.Is(err, service.ErrInvalidCode):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_code", "Invalid verification code")
		default:
			log.Error("failed to confirm mfa setup", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to confirm MFA setup")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfaConfirmResponse{BackupCodes: codes})
}

type mfaDisableRequest struct {
	Password string `json:"password"`
}

// MFADisableHandler clears the enrollment. A fresh password is demanded in
// the body; the bearer token alone is not enough.
type MFADisableHandler struct {
	MFAService *service.MFAService
}

func (h *MFADisableHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req mfaDisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "password is required")
		return
	}

	if err := h.MFAService.Disable(ctx, userID, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Password verification failed")
		case errors.Is(err, service.ErrNotEnrolled):
			httpx.WriteError(w, http.StatusConflict, "not_enrolled", "MFA is not enabled")
		default:
			log.Error("failed to disable mfa", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to disable MFA")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type mfaBackupCodesResponse struct {
	Remaining int `json:"remaining"`
}

// MFABackupCodesHandler reports how many backup codes are still unspent.
type MFABackupCodesHandler struct {
	MFAService *service.MFAService
}

func (h *MFABackupCodesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	remaining, err := h.MFAService.BackupCodesRemaining(ctx, userID)
	if err != nil {
		log.Error("failed to count backup codes", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to count backup codes")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfaBackupCodesResponse{Remaining: remaining})
}
