package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/planpago/planpago/internal/auth"
	"github.com/planpago/planpago/internal/models"
	pkghttp "github.com/planpago/planpago/pkg/http"
)

// ImpersonationBrokerInterface defines the interface for consent-gated
// impersonation
type ImpersonationBrokerInterface interface {
	Request(ctx context.Context, adminID, targetID string) (string, error)
	Confirm(ctx context.Context, token string) error
	Status(ctx context.Context, adminID, requestID string) (bool, error)
	Impersonate(ctx context.Context, adminID, targetID string) (string, error)
}

// AccountAdminInterface defines the interface for the admin account pages
type AccountAdminInterface interface {
	List(ctx context.Context, limit, offset int) ([]*models.Account, error)
	Delete(ctx context.Context, id string) error
}

// AdminHandler handles administrator endpoints
type AdminHandler struct {
	broker   ImpersonationBrokerInterface
	accounts AccountAdminInterface
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(broker ImpersonationBrokerInterface, accounts AccountAdminInterface) *AdminHandler {
	return &AdminHandler{
		broker:   broker,
		accounts: accounts,
	}
}

// ImpersonateRequestBody represents the request body for an impersonation request
type ImpersonateRequestBody struct {
	TargetID string `json:"target_id" validate:"required,uuid"`
}

// ImpersonateRequest creates a consent request and mails the target a
// confirmation link.
func (h *AdminHandler) ImpersonateRequest(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ImpersonateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	requestID, err := h.broker.Request(r.Context(), claims.AccountID(), req.TargetID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrForbidden):
			pkghttp.WriteForbidden(w, "Administrator access required")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Target account not found")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{"request_id": requestID})
}

// ImpersonateConfirm records the target's consent. Reached from the emailed
// link, so it is unauthenticated; the token itself is the credential.
func (h *AdminHandler) ImpersonateConfirm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		pkghttp.WriteBadRequest(w, "Missing token")
		return
	}

	if err := h.broker.Confirm(r.Context(), token); err != nil {
		if errors.Is(err, models.ErrInvalidToken) {
			pkghttp.WriteUnauthorized(w, "Invalid confirmation token")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

// ImpersonateStatus reports whether the target has confirmed yet.
func (h *AdminHandler) ImpersonateStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	requestID := chi.URLParam(r, "id")

	confirmed, err := h.broker.Status(r.Context(), claims.AccountID(), requestID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Request not found")
		case errors.Is(err, models.ErrForbidden):
			pkghttp.WriteForbidden(w, "Not your request")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"confirmed": confirmed})
}

// Impersonate exchanges a fresh confirmation for a session as the target.
func (h *AdminHandler) Impersonate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	targetID := chi.URLParam(r, "targetId")

	token, err := h.broker.Impersonate(r.Context(), claims.AccountID(), targetID)
	if err != nil {
		if errors.Is(err, models.ErrImpersonationNotConfirmed) {
			pkghttp.WriteForbidden(w, "Target has not confirmed, or the confirmation has gone stale")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SessionResponse{Token: token})
}

// ListAccounts returns a page of accounts for the target picker.
func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	accounts, err := h.accounts.List(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	responses := make([]AccountResponse, 0, len(accounts))
	for _, account := range accounts {
		responses = append(responses, toAccountResponse(account))
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"accounts": responses,
		"count":    len(responses),
	})
}

// DeleteAccount removes an account by ID.
func (h *AdminHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.accounts.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
