package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/planpago/planpago/internal/auth"
	"github.com/planpago/planpago/internal/models"
	pkgauth "github.com/planpago/planpago/pkg/auth"
	pkglogger "github.com/planpago/planpago/pkg/logger"
)

// LoginResult is the outcome of login step 1. Exactly one of SessionToken or
// TempToken is set: a session token when the trusted window let the caller
// skip the second factor, a temp token plus the method the client must
// satisfy otherwise.
type LoginResult struct {
	SessionToken string
	TempToken    string
	Method       models.SecondFactorMethod
}

// LoginGate orchestrates throttling, credential checks, the trusted window
// and the second factor into the two-step sign-in flow.
type LoginGate struct {
	directory    AccountDirectory
	throttle     auth.ThrottleGuard
	secondFactor *SecondFactorVerifier
	tokens       *auth.TokenCodec
	dispatcher   *Dispatcher
	timing       *auth.TimingDelay
	logger       *slog.Logger
	audit        *pkglogger.AuditLogger
}

// NewLoginGate creates a new LoginGate
func NewLoginGate(
	directory AccountDirectory,
	throttle auth.ThrottleGuard,
	secondFactor *SecondFactorVerifier,
	tokens *auth.TokenCodec,
	dispatcher *Dispatcher,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *LoginGate {
	return &LoginGate{
		directory:    directory,
		throttle:     throttle,
		secondFactor: secondFactor,
		tokens:       tokens,
		dispatcher:   dispatcher,
		timing:       timing,
		logger:       logger,
		audit:        audit,
	}
}

// Login is step 1: identity + password. Throttled identities are rejected
// before the password is even looked at. Credential failures are always the
// generic models.ErrInvalidCredentials so callers cannot probe for accounts.
func (s *LoginGate) Login(ctx context.Context, email, password, ipAddress string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.ErrInvalidCredentials
	}

	if allowed, retryAfter := s.throttle.Allow(email); !allowed {
		s.audit.LogAuthEvent(pkglogger.AuditEvent{
			EventType:     "login_blocked",
			IPAddress:     ipAddress,
			FailureReason: "throttled",
			Success:       false,
		})
		return nil, &models.ThrottledError{RetryAfter: retryAfter}
	}

	account, err := s.directory.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Unknown identity burns throttle budget like a wrong password,
			// and takes about as long.
			s.throttle.RecordFailure(email)
			s.timing.Wait(false)
			s.logger.Info("login failed: invalid credentials")
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get account by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		s.throttle.RecordFailure(email)
		s.timing.Wait(false)
		s.logger.Info("login failed: invalid credentials")
		s.audit.LogAuthEvent(pkglogger.AuditEvent{
			EventType:     "login_failed",
			AccountID:     account.ID,
			IPAddress:     ipAddress,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		return nil, models.ErrInvalidCredentials
	}

	s.throttle.Reset(email)

	if s.secondFactor.IsWithinTrustedWindow(account) {
		sessionToken, err := s.tokens.IssueSession(account.ID)
		if err != nil {
			s.logger.Error("failed to issue session token", slog.String("account_id", account.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		s.audit.LogAuthEvent(pkglogger.AuditEvent{
			EventType: "login_trusted_window",
			AccountID: account.ID,
			IPAddress: ipAddress,
			Success:   true,
		})
		return &LoginResult{SessionToken: sessionToken}, nil
	}

	tempToken, err := s.tokens.IssueStepUp(account.ID, "", "")
	if err != nil {
		s.logger.Error("failed to issue step-up token", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	switch account.SecondFactor {
	case models.SecondFactorTOTP:
		// Nothing to send; the client supplies a live code next.
	case models.SecondFactorEmail:
		code, expiresAt, err := s.secondFactor.IssueEmailCode(ctx, account)
		if err != nil {
			s.logger.Error("failed to issue email code", slog.String("account_id", account.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.dispatcher.QueueVerificationCode(account.Email, code, expiresAt)
	default:
		s.logger.Error("account has unknown second factor method",
			slog.String("account_id", account.ID),
			slog.String("method", string(account.SecondFactor)))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthEvent(pkglogger.AuditEvent{
		EventType: "login_step1",
		AccountID: account.ID,
		IPAddress: ipAddress,
		Success:   true,
	})

	return &LoginResult{TempToken: tempToken, Method: account.SecondFactor}, nil
}

// VerifyStepUp is step 2: temp token + code. Failed codes do not consume
// throttle budget; brute force here is bounded by code expiry and the TOTP
// window, not by login attempts.
func (s *LoginGate) VerifyStepUp(ctx context.Context, tempToken, code, ipAddress string) (string, error) {
	claims, err := s.tokens.VerifyType(tempToken, auth.TokenTypeStepUp)
	if err != nil {
		return "", err
	}

	account, err := s.directory.GetByID(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Account gone between steps; indistinguishable from a bad token.
			return "", models.ErrInvalidToken
		}
		s.logger.Error("failed to get account by id", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	ok, err := s.secondFactor.Verify(ctx, account, code)
	if err != nil {
		s.logger.Error("second factor verification error", slog.String("account_id", account.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	if !ok {
		s.audit.LogAuthEvent(pkglogger.AuditEvent{
			EventType:     "stepup_failed",
			AccountID:     account.ID,
			IPAddress:     ipAddress,
			FailureReason: "invalid_code",
			Success:       false,
		})
		return "", models.ErrInvalidCode
	}

	if err := s.secondFactor.TouchTrustedWindow(ctx, account); err != nil {
		s.logger.Error("failed to touch trusted window", slog.String("account_id", account.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	sessionToken, err := s.tokens.IssueSession(account.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue session token: %w", err)
	}

	s.audit.LogAuthEvent(pkglogger.AuditEvent{
		EventType: "stepup_succeeded",
		AccountID: account.ID,
		IPAddress: ipAddress,
		Success:   true,
	})
	s.logger.Info("account logged in", slog.String("account_id", account.ID))

	return sessionToken, nil
}
