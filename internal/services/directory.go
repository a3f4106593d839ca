package services

import (
	"context"
	"time"

	"github.com/planpago/planpago/internal/models"
)

// AccountDirectory defines the interface for account persistence. It is the
// abstract Directory the protocol core is specified against.
type AccountDirectory interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	List(ctx context.Context, limit, offset int) ([]*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdateCredentials(ctx context.Context, id string, newEmail, newPasswordHash *string) (*models.Account, error)
	SetLastStepUp(ctx context.Context, id string, at time.Time) error
	SetSecondFactor(ctx context.Context, id string, method models.SecondFactorMethod, totpSecret *string) error
	Delete(ctx context.Context, id string) error
}

// ImpersonationStore defines the interface for impersonation request records.
type ImpersonationStore interface {
	Create(ctx context.Context, adminID, targetID, token string) (*models.ImpersonationRequest, error)
	GetByID(ctx context.Context, id string) (*models.ImpersonationRequest, error)
	GetByToken(ctx context.Context, token string) (*models.ImpersonationRequest, error)
	Confirm(ctx context.Context, token string, at time.Time) (int64, error)
	LatestConfirmed(ctx context.Context, adminID, targetID string) (*models.ImpersonationRequest, error)
}
