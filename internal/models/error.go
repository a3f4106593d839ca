package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication protocol errors. ErrInvalidCredentials is deliberately
	// generic: callers must never distinguish "unknown email" from "wrong
	// password" in anything surfaced to a client.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("invalid or expired code")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	// Profile change errors
	ErrEmailTaken     = errors.New("email address already in use")
	ErrNothingToApply = errors.New("no change requested")

	// Impersonation errors
	ErrImpersonationNotConfirmed = errors.New("impersonation request not confirmed")
)

// ThrottledError reports a blocked login attempt along with how long the
// caller must wait before retrying.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many failed attempts, retry after %ds", int(e.RetryAfter.Seconds()))
}

// Is lets errors.Is(err, &ThrottledError{}) match regardless of RetryAfter.
func (e *ThrottledError) Is(target error) bool {
	_, ok := target.(*ThrottledError)
	return ok
}
