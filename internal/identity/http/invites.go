package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/veldtlabs/warden/internal/identity/domain"
	"github.com/veldtlabs/warden/internal/identity/service"
	"github.com/veldtlabs/warden/pkg/httpx"
	"github.com/veldtlabs/warden/pkg/slogx"
)

type inviteIssueRequest struct {
	Email   string `json:"email"`
	Role    string `json:"role"`
	Message string `json:"message,omitempty"`
}

type inviteResponse struct {
	InviteID  string    `json:"invite_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InviteIssueHandler mints an invite for a new principal. Admin only; the
// plaintext token travels by notification, never in this response.
type InviteIssueHandler struct {
	InviteService *service.InviteService
}

func (h *InviteIssueHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req inviteIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Email == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}
	if req.Role == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "role is required")
		return
	}

	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	invite, _, err := h.InviteService.Issue(ctx, userID, req.Email, domain.Role(req.Role), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInviteForbidden):
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "Caller may not manage invites")
		case errors.Is(err, service.ErrInvalidRole):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid role")
		case errors.Is(err, service.ErrInvalidInviteRequest):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid invite parameters")
		default:
			log.Error("failed to issue invite", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to create invite")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, inviteResponse{
		InviteID:  invite.ID,
		Email:     invite.Email,
		Role:      string(invite.Role),
		ExpiresAt: invite.ExpiresAt,
	})
}

// InviteRevokeHandler cancels a PENDING invite.
type InviteRevokeHandler struct {
	InviteService *service.InviteService
}

func (h *InviteRevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	inviteID := r.PathValue("id")
	if inviteID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invite id is required")
		return
	}

	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	if err := h.InviteService.Revoke(ctx, userID, inviteID); err != nil {
		switch {
		case errors.Is(err, service.ErrInviteForbidden):
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "Caller may not manage invites")
		case errors.Is(err, service.ErrInviteNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Invite not found")
		case errors.Is(err, service.ErrInvalidTransition):
			httpx.WriteError(w, http.StatusConflict, "invalid_transition", "Invite is no longer pending")
		default:
			log.Error("failed to revoke invite", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to revoke invite")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type inviteAcceptRequest struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type inviteAcceptResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// InviteAcceptHandler spends an invite token and registers the account it
// was issued for.
type InviteAcceptHandler struct {
	InviteService *service.InviteService
}

func (h *InviteAcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req inviteAcceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	if req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "password is required")
		return
	}

	user, err := h.InviteService.Accept(ctx, req.Token, req.DisplayName, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInviteNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Invite not found")
		case errors.Is(err, service.ErrInviteExpired):
			httpx.WriteError(w, http.StatusGone, "expired", "Invite has expired")
		case errors.Is(err, service.ErrInviteAlreadyUsed):
			httpx.WriteError(w, http.StatusConflict, "already_used", "Invite has already been used")
		case errors.Is(err, service.ErrWeakCredential):
			httpx.WriteError(w, http.StatusBadRequest, "weak_credential", "Password does not meet the strength policy")
		case errors.Is(err, service.ErrEmailTaken):
			httpx.WriteError(w, http.StatusConflict, "email_taken", "Email is already registered")
		default:
			log.Error("failed to accept invite", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to accept invite")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, inviteAcceptResponse{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        string(user.Role),
	})
}
