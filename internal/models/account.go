package models

import (
	"time"
)

// SecondFactorMethod is the closed set of step-up methods an account can use.
type SecondFactorMethod string

const (
	SecondFactorEmail SecondFactorMethod = "email"
	SecondFactorTOTP  SecondFactorMethod = "totp"
)

// Valid reports whether m is one of the known methods.
func (m SecondFactorMethod) Valid() bool {
	switch m {
	case SecondFactorEmail, SecondFactorTOTP:
		return true
	}
	return false
}

type Account struct {
	ID               string
	Email            string
	PasswordHash     string
	IsAdmin          bool
	SecondFactor     SecondFactorMethod
	TOTPSecret       *string    // base32 secret, set iff SecondFactor == totp
	LastStepUpAt     *time.Time // last successful second-factor verification
	ReminderChannels []string   // notification preferences, owned by the reminder engine
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// WithinTrustedWindow reports whether the account completed a step-up less
// than window ago, measured against now.
func (a *Account) WithinTrustedWindow(now time.Time, window time.Duration) bool {
	if a.LastStepUpAt == nil {
		return false
	}
	return now.Sub(*a.LastStepUpAt) < window
}
