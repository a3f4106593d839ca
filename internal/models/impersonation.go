package models

import (
	"time"
)

// ImpersonationRequest records an administrator's request to obtain a session
// as another account, and that account's out-of-band consent. Requests are
// never deleted proactively; a confirmed request goes stale once the
// freshness window after ConfirmedAt has elapsed.
type ImpersonationRequest struct {
	ID          string
	AdminID     string
	TargetID    string
	Token       string // single-use confirmation token mailed to the target
	Confirmed   bool
	ConfirmedAt *time.Time
	CreatedAt   time.Time
}

// IsFresh reports whether the request was confirmed and the confirmation is
// still within the freshness window at now.
func (r *ImpersonationRequest) IsFresh(now time.Time, freshness time.Duration) bool {
	if !r.Confirmed || r.ConfirmedAt == nil {
		return false
	}
	return now.Sub(*r.ConfirmedAt) <= freshness
}
