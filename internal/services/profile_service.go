package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/planpago/planpago/internal/auth"
	"github.com/planpago/planpago/internal/models"
	pkgauth "github.com/planpago/planpago/pkg/auth"
	pkglogger "github.com/planpago/planpago/pkg/logger"
)

// ChangeTicket is the outcome of a profile change request: a temp token
// sealing the proposed change, plus the method the confirmation must satisfy.
type ChangeTicket struct {
	TempToken string
	Method    models.SecondFactorMethod
}

// PendingChangeCoordinator implements deferred confirmation of sensitive
// profile changes. A new email or password is sealed inside a signed temp
// token at request time and only applied once a fresh second-factor code
// confirms that same token. The account's stored credentials are mutated
// nowhere else.
type PendingChangeCoordinator struct {
	directory    AccountDirectory
	secondFactor *SecondFactorVerifier
	tokens       *auth.TokenCodec
	dispatcher   *Dispatcher
	logger       *slog.Logger
	audit        *pkglogger.AuditLogger
}

// NewPendingChangeCoordinator creates a new PendingChangeCoordinator
func NewPendingChangeCoordinator(
	directory AccountDirectory,
	secondFactor *SecondFactorVerifier,
	tokens *auth.TokenCodec,
	dispatcher *Dispatcher,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *PendingChangeCoordinator {
	return &PendingChangeCoordinator{
		directory:    directory,
		secondFactor: secondFactor,
		tokens:       tokens,
		dispatcher:   dispatcher,
		logger:       logger,
		audit:        audit,
	}
}

// RequestChange re-authenticates the caller with their current password and
// seals the proposed change into a temp token. Email collisions are rejected
// here, at request time, never at confirmation.
func (s *PendingChangeCoordinator) RequestChange(ctx context.Context, accountID, currentPassword, newEmail, newPassword string) (*ChangeTicket, error) {
	account, err := s.directory.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, currentPassword); err != nil {
		s.audit.LogAuthEvent(pkglogger.AuditEvent{
			EventType:     "change_request_failed",
			AccountID:     account.ID,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		return nil, models.ErrInvalidCredentials
	}

	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	if newEmail == "" && newPassword == "" {
		return nil, models.ErrNothingToApply
	}
	if newEmail == account.Email {
		newEmail = ""
	}

	if newEmail != "" {
		if existing, err := s.directory.GetByEmail(ctx, newEmail); err == nil && existing.ID != account.ID {
			return nil, models.ErrEmailTaken
		} else if err != nil && !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to check email availability", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	var newPasswordHash string
	if newPassword != "" {
		if err := pkgauth.ValidatePassword(newPassword); err != nil {
			return nil, models.ErrBadRequest
		}
		newPasswordHash, err = pkgauth.HashPassword(newPassword)
		if err != nil {
			s.logger.Error("failed to hash password", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	if newEmail == "" && newPasswordHash == "" {
		return nil, models.ErrNothingToApply
	}

	tempToken, err := s.tokens.IssueStepUp(account.ID, newEmail, newPasswordHash)
	if err != nil {
		s.logger.Error("failed to issue change token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	switch account.SecondFactor {
	case models.SecondFactorTOTP:
		// Client supplies a live code with the confirmation call.
	case models.SecondFactorEmail:
		code, expiresAt, err := s.secondFactor.IssueEmailCode(ctx, account)
		if err != nil {
			s.logger.Error("failed to issue email code", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		// Codes for a pending email change go to the current address: the
		// new one is unproven until the change is confirmed.
		s.dispatcher.QueueVerificationCode(account.Email, code, expiresAt)
	default:
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthEvent(pkglogger.AuditEvent{
		EventType: "change_requested",
		AccountID: account.ID,
		Success:   true,
	})

	return &ChangeTicket{TempToken: tempToken, Method: account.SecondFactor}, nil
}

// ConfirmChange verifies the temp token and a fresh code, then applies the
// sealed change. The only inputs at confirmation time are the server-signed
// token and the code.
func (s *PendingChangeCoordinator) ConfirmChange(ctx context.Context, tempToken, code string) (*models.Account, error) {
	claims, err := s.tokens.VerifyType(tempToken, auth.TokenTypeStepUp)
	if err != nil {
		return nil, err
	}

	if claims.NewEmail == "" && claims.NewPasswordHash == "" {
		return nil, models.ErrInvalidToken
	}

	account, err := s.directory.GetByID(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		s.logger.Error("failed to get account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	ok, err := s.secondFactor.Verify(ctx, account, code)
	if err != nil {
		s.logger.Error("second factor verification error", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !ok {
		s.audit.LogAuthEvent(pkglogger.AuditEvent{
			EventType:     "change_confirm_failed",
			AccountID:     account.ID,
			FailureReason: "invalid_code",
			Success:       false,
		})
		return nil, models.ErrInvalidCode
	}

	var newEmail, newPasswordHash *string
	if claims.NewEmail != "" {
		newEmail = &claims.NewEmail
	}
	if claims.NewPasswordHash != "" {
		newPasswordHash = &claims.NewPasswordHash
	}

	updated, err := s.directory.UpdateCredentials(ctx, account.ID, newEmail, newPasswordHash)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// The address was taken between request and confirmation.
			return nil, models.ErrEmailTaken
		}
		s.logger.Error("failed to apply profile change", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthEvent(pkglogger.AuditEvent{
		EventType: "change_confirmed",
		AccountID: account.ID,
		Success:   true,
	})
	s.logger.Info("profile change applied",
		slog.String("account_id", account.ID),
		slog.Bool("email_changed", newEmail != nil),
		slog.Bool("password_changed", newPasswordHash != nil))

	return updated, nil
}
