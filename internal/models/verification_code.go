package models

import (
	"time"
)

// VerificationCode is a single-use 6-digit code mailed to an account.
// Single use is enforced at consumption time (delete-on-success), not at
// issuance: several unexpired codes may coexist for one account.
type VerificationCode struct {
	ID        string
	AccountID string
	Code      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks the code against now.
func (c *VerificationCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
