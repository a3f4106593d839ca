package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/planpago/planpago/internal/models"
	"github.com/planpago/planpago/internal/services"
	pkghttp "github.com/planpago/planpago/pkg/http"
)

// LoginGateInterface defines the interface for the two-step sign-in flow
type LoginGateInterface interface {
	Login(ctx context.Context, email, password, ipAddress string) (*services.LoginResult, error)
	VerifyStepUp(ctx context.Context, tempToken, code, ipAddress string) (string, error)
}

// RegistrarInterface defines the interface for account creation
type RegistrarInterface interface {
	Register(ctx context.Context, email, password string) (*models.Account, error)
}

// AuthHandler handles registration and the two-step login flow
type AuthHandler struct {
	gate      LoginGateInterface
	registrar RegistrarInterface
	ipConfig  *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(gate LoginGateInterface, registrar RegistrarInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		gate:      gate,
		registrar: registrar,
		ipConfig:  ipConfig,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest represents the request body for login step 1
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifyCodeRequest represents the request body for login step 2
type VerifyCodeRequest struct {
	TempToken string `json:"temp_token" validate:"required"`
	Code      string `json:"code" validate:"required,min=4,max=10,numeric"`
}

// Register handles account creation
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.registrar.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Email already registered")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toAccountResponse(account))
}

// Login handles step 1: identity plus password. Depending on the trusted
// window the response carries either a session token or a step-up challenge.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.gate.Login(r.Context(), req.Email, req.Password, ipAddress)
	if err != nil {
		var throttled *models.ThrottledError
		switch {
		case errors.As(err, &throttled):
			pkghttp.WriteThrottled(w, throttled.RetryAfter)
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid email or password")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	if result.SessionToken != "" {
		pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{Token: result.SessionToken})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		TempToken:      result.TempToken,
		SecondFactor:   string(result.Method),
		StepUpRequired: true,
	})
}

// VerifyCode handles step 2: the temp token plus a second-factor code.
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	token, err := h.gate.VerifyStepUp(r.Context(), req.TempToken, req.Code, ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenExpired):
			pkghttp.WriteUnauthorized(w, "Step-up token expired, sign in again")
		case errors.Is(err, models.ErrInvalidToken):
			pkghttp.WriteUnauthorized(w, "Invalid step-up token")
		case errors.Is(err, models.ErrInvalidCode):
			pkghttp.WriteBadRequest(w, "Invalid or expired verification code")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SessionResponse{Token: token})
}
