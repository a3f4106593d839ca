package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/planpago/planpago/internal/auth"
	"github.com/planpago/planpago/internal/models"
	"github.com/planpago/planpago/internal/services"
	pkghttp "github.com/planpago/planpago/pkg/http"
)

// AccountServiceInterface defines the interface for account lookup, TOTP
// enrollment and deletion
type AccountServiceInterface interface {
	Get(ctx context.Context, id string) (*models.Account, error)
	Delete(ctx context.Context, id string) error
	SetupTOTP(ctx context.Context, accountID string) (*services.TOTPEnrollment, error)
	EnableTOTP(ctx context.Context, accountID, secret, code string) error
	DisableTOTP(ctx context.Context, accountID, code string) error
}

// ChangeCoordinatorInterface defines the interface for deferred profile changes
type ChangeCoordinatorInterface interface {
	RequestChange(ctx context.Context, accountID, currentPassword, newEmail, newPassword string) (*services.ChangeTicket, error)
	ConfirmChange(ctx context.Context, tempToken, code string) (*models.Account, error)
}

// ProfileHandler handles the authenticated account's own profile
type ProfileHandler struct {
	accounts AccountServiceInterface
	changes  ChangeCoordinatorInterface
}

// NewProfileHandler creates a new ProfileHandler
func NewProfileHandler(accounts AccountServiceInterface, changes ChangeCoordinatorInterface) *ProfileHandler {
	return &ProfileHandler{
		accounts: accounts,
		changes:  changes,
	}
}

// Request DTOs

// ChangeRequestBody represents the request body for a profile change request
type ChangeRequestBody struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewEmail        string `json:"new_email" validate:"omitempty,email"`
	NewPassword     string `json:"new_password" validate:"omitempty,min=8,max=128"`
}

// ChangeConfirmBody represents the request body for confirming a change
type ChangeConfirmBody struct {
	TempToken string `json:"temp_token" validate:"required"`
	Code      string `json:"code" validate:"required,min=4,max=10,numeric"`
}

// TOTPEnableBody represents the request body for enabling TOTP
type TOTPEnableBody struct {
	Secret string `json:"secret" validate:"required"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

// TOTPDisableBody represents the request body for disabling TOTP
type TOTPDisableBody struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// Me returns the calling account.
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	account, err := h.accounts.Get(r.Context(), claims.AccountID())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "Unauthorized")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

// DeleteMe removes the calling account.
func (h *ProfileHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.accounts.Delete(r.Context(), claims.AccountID()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangeRequest starts a deferred email or password change. Nothing is
// persisted; the proposed change comes back sealed in a temp token.
func (h *ProfileHandler) ChangeRequest(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ChangeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ticket, err := h.changes.RequestChange(r.Context(), claims.AccountID(), req.CurrentPassword, req.NewEmail, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		case errors.Is(err, models.ErrNothingToApply):
			pkghttp.WriteBadRequest(w, "Nothing to change")
		case errors.Is(err, models.ErrEmailTaken):
			pkghttp.WriteConflict(w, "Email already registered")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, LoginResponse{
		TempToken:      ticket.TempToken,
		SecondFactor:   string(ticket.Method),
		StepUpRequired: true,
	})
}

// ChangeConfirm applies a sealed change once a fresh code confirms it.
func (h *ProfileHandler) ChangeConfirm(w http.ResponseWriter, r *http.Request) {
	var req ChangeConfirmBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.changes.ConfirmChange(r.Context(), req.TempToken, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenExpired):
			pkghttp.WriteUnauthorized(w, "Change request expired, start over")
		case errors.Is(err, models.ErrInvalidToken):
			pkghttp.WriteUnauthorized(w, "Invalid change token")
		case errors.Is(err, models.ErrInvalidCode):
			pkghttp.WriteBadRequest(w, "Invalid or expired verification code")
		case errors.Is(err, models.ErrEmailTaken):
			pkghttp.WriteConflict(w, "Email already registered")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

// TOTPSetup generates a candidate secret plus provisioning QR code.
func (h *ProfileHandler) TOTPSetup(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	enrollment, err := h.accounts.SetupTOTP(r.Context(), claims.AccountID())
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Unauthorized")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"secret":      enrollment.Secret,
		"qr_data_url": enrollment.QRDataURL,
	})
}

// TOTPEnable flips the account's second factor to totp after one live code.
func (h *ProfileHandler) TOTPEnable(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req TOTPEnableBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.accounts.EnableTOTP(r.Context(), claims.AccountID(), req.Secret, req.Code); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCode):
			pkghttp.WriteBadRequest(w, "Invalid authenticator code")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"second_factor": string(models.SecondFactorTOTP)})
}

// TOTPDisable reverts the account to email codes.
func (h *ProfileHandler) TOTPDisable(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req TOTPDisableBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.accounts.DisableTOTP(r.Context(), claims.AccountID(), req.Code); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCode):
			pkghttp.WriteBadRequest(w, "Invalid authenticator code")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "TOTP is not enabled")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"second_factor": string(models.SecondFactorEmail)})
}
