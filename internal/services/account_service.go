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

// AccountService handles registration, lookup, TOTP enrollment and deletion.
type AccountService struct {
	directory AccountDirectory
	totp      *auth.TOTPManager
	logger    *slog.Logger
	audit     *pkglogger.AuditLogger
}

// NewAccountService creates a new AccountService
func NewAccountService(directory AccountDirectory, totp *auth.TOTPManager, logger *slog.Logger, audit *pkglogger.AuditLogger) *AccountService {
	return &AccountService{
		directory: directory,
		totp:      totp,
		logger:    logger,
		audit:     audit,
	}
}

// Register creates a new account with the email second factor.
func (s *AccountService) Register(ctx context.Context, email, password string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, models.ErrBadRequest
	}

	if _, err := s.directory.GetByEmail(ctx, email); err == nil {
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	account, err := s.directory.Create(ctx, &models.Account{
		Email:        email,
		PasswordHash: hash,
		SecondFactor: models.SecondFactorEmail,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("account registered", slog.String("account_id", account.ID))
	return account, nil
}

// Get returns the account by ID.
func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.directory.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return account, nil
}

// List returns accounts for the admin target picker.
func (s *AccountService) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	accounts, err := s.directory.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list accounts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return accounts, nil
}

// Delete removes an account. Record cascades are the Directory's concern.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	if err := s.directory.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete account", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogAuthEvent(pkglogger.AuditEvent{
		EventType: "account_deleted",
		AccountID: id,
		Success:   true,
	})
	return nil
}

// TOTPEnrollment is the outcome of a TOTP setup call.
type TOTPEnrollment struct {
	Secret    string
	QRDataURL string
}

// SetupTOTP generates a candidate secret and provisioning QR code. The
// account's method is unchanged until EnableTOTP verifies a live code for
// this secret.
func (s *AccountService) SetupTOTP(ctx context.Context, accountID string) (*TOTPEnrollment, error) {
	account, err := s.directory.GetByID(ctx, accountID)
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	secret, qrDataURL, err := s.totp.GenerateSecret(account.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &TOTPEnrollment{Secret: secret, QRDataURL: qrDataURL}, nil
}

// EnableTOTP verifies one live code against the candidate secret and flips
// the account's second factor to totp.
func (s *AccountService) EnableTOTP(ctx context.Context, accountID, secret, code string) error {
	account, err := s.directory.GetByID(ctx, accountID)
	if err != nil {
		return models.ErrUnauthorized
	}

	if !s.totp.Validate(secret, code) {
		return models.ErrInvalidCode
	}

	if err := s.directory.SetSecondFactor(ctx, account.ID, models.SecondFactorTOTP, &secret); err != nil {
		s.logger.Error("failed to enable TOTP", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogAuthEvent(pkglogger.AuditEvent{
		EventType: "totp_enabled",
		AccountID: account.ID,
		Success:   true,
	})
	return nil
}

// DisableTOTP reverts the account to the email second factor after a live
// code proves possession of the enrolled authenticator.
func (s *AccountService) DisableTOTP(ctx context.Context, accountID, code string) error {
	account, err := s.directory.GetByID(ctx, accountID)
	if err != nil {
		return models.ErrUnauthorized
	}

	if account.SecondFactor != models.SecondFactorTOTP || account.TOTPSecret == nil {
		return models.ErrBadRequest
	}

	if !s.totp.Validate(*account.TOTPSecret, code) {
		return models.ErrInvalidCode
	}

	if err := s.directory.SetSecondFactor(ctx, account.ID, models.SecondFactorEmail, nil); err != nil {
		s.logger.Error("failed to disable TOTP", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogAuthEvent(pkglogger.AuditEvent{
		EventType: "totp_disabled",
		AccountID: account.ID,
		Success:   true,
	})
	return nil
}
