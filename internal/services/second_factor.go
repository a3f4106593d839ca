package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/planpago/planpago/internal/auth"
	"github.com/planpago/planpago/internal/models"
)

// CodeStore defines the interface for verification code persistence.
type CodeStore interface {
	Create(ctx context.Context, accountID, code string, expiresAt time.Time) (*models.VerificationCode, error)
	Consume(ctx context.Context, accountID, code string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// StepUpDirectory is the account store subset the verifier mutates.
type StepUpDirectory interface {
	SetLastStepUp(ctx context.Context, id string, at time.Time) error
}

// SecondFactorConfig holds code issuance and trusted-window parameters.
type SecondFactorConfig struct {
	CodeLength    int
	CodeTTL       time.Duration
	TrustedWindow time.Duration
}

// SecondFactorVerifier issues and checks one-time email codes or TOTP codes
// depending on the account's configured method.
type SecondFactorVerifier struct {
	codes     CodeStore
	directory StepUpDirectory
	totp      *auth.TOTPManager
	config    SecondFactorConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewSecondFactorVerifier creates a new SecondFactorVerifier
func NewSecondFactorVerifier(codes CodeStore, directory StepUpDirectory, totp *auth.TOTPManager, config SecondFactorConfig, logger *slog.Logger) *SecondFactorVerifier {
	return &SecondFactorVerifier{
		codes:     codes,
		directory: directory,
		totp:      totp,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the verifier's time source. Test use only.
func (s *SecondFactorVerifier) SetClock(now func() time.Time) {
	s.now = now
}

// IssueEmailCode generates a numeric code, stores it with the configured TTL
// and returns it together with its expiry for dispatch. Earlier unexpired
// codes stay valid; consumption enforces single use.
func (s *SecondFactorVerifier) IssueEmailCode(ctx context.Context, account *models.Account) (string, time.Time, error) {
	code, err := randomNumericCode(s.config.CodeLength)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate code: %w", err)
	}

	expiresAt := s.now().Add(s.config.CodeTTL)

	if _, err := s.codes.Create(ctx, account.ID, code, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store verification code: %w", err)
	}

	return code, expiresAt, nil
}

// VerifyEmailCode consumes a matching unexpired code. The consume is atomic:
// of two concurrent submissions of the same code, at most one succeeds.
func (s *SecondFactorVerifier) VerifyEmailCode(ctx context.Context, account *models.Account, submitted string) (bool, error) {
	if submitted == "" {
		return false, nil
	}

	ok, err := s.codes.Consume(ctx, account.ID, submitted, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to consume verification code: %w", err)
	}
	return ok, nil
}

// VerifyTOTP checks a live TOTP code against the account's secret. Stateless.
func (s *SecondFactorVerifier) VerifyTOTP(account *models.Account, submitted string) bool {
	if account.TOTPSecret == nil {
		return false
	}
	return s.totp.Validate(*account.TOTPSecret, submitted)
}

// Verify dispatches on the account's configured method.
func (s *SecondFactorVerifier) Verify(ctx context.Context, account *models.Account, submitted string) (bool, error) {
	switch account.SecondFactor {
	case models.SecondFactorEmail:
		return s.VerifyEmailCode(ctx, account, submitted)
	case models.SecondFactorTOTP:
		return s.VerifyTOTP(account, submitted), nil
	default:
		return false, fmt.Errorf("unknown second factor method %q", account.SecondFactor)
	}
}

// TouchTrustedWindow stamps a successful step-up on the account.
func (s *SecondFactorVerifier) TouchTrustedWindow(ctx context.Context, account *models.Account) error {
	now := s.now()
	if err := s.directory.SetLastStepUp(ctx, account.ID, now); err != nil {
		return fmt.Errorf("failed to update trusted window: %w", err)
	}
	account.LastStepUpAt = &now
	return nil
}

// IsWithinTrustedWindow reports whether the account's last step-up is recent
// enough to skip the second factor.
func (s *SecondFactorVerifier) IsWithinTrustedWindow(account *models.Account) bool {
	return account.WithinTrustedWindow(s.now(), s.config.TrustedWindow)
}

// randomNumericCode returns a uniformly random zero-padded numeric string.
func randomNumericCode(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
