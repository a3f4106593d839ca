package handlers

import (
	"time"

	"github.com/planpago/planpago/internal/models"
)

// AccountResponse is the public shape of an account. Password hashes and
// TOTP secrets never leave the service boundary.
type AccountResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	IsAdmin          bool      `json:"is_admin"`
	SecondFactor     string    `json:"second_factor"`
	TOTPEnabled      bool      `json:"totp_enabled"`
	ReminderChannels []string  `json:"reminder_channels,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toAccountResponse(account *models.Account) AccountResponse {
	return AccountResponse{
		ID:               account.ID,
		Email:            account.Email,
		IsAdmin:          account.IsAdmin,
		SecondFactor:     string(account.SecondFactor),
		TOTPEnabled:      account.SecondFactor == models.SecondFactorTOTP,
		ReminderChannels: account.ReminderChannels,
		CreatedAt:        account.CreatedAt,
	}
}

// LoginResponse is the step 1 outcome: either a finished session or a
// step-up challenge the client must answer via /users/verify-code.
type LoginResponse struct {
	Token          string `json:"token,omitempty"`
	TempToken      string `json:"temp_token,omitempty"`
	SecondFactor   string `json:"second_factor,omitempty"`
	StepUpRequired bool   `json:"step_up_required"`
}

// SessionResponse carries a finished session token.
type SessionResponse struct {
	Token string `json:"token"`
}
