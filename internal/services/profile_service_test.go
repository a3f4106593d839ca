package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planpago/planpago/internal/auth"
	"github.com/planpago/planpago/internal/models"
	pkgauth "github.com/planpago/planpago/pkg/auth"
)

type profileFixture struct {
	coordinator *PendingChangeCoordinator
	codes       *MemoryCodeStore
	tokens      *auth.TokenCodec
	account     *models.Account
	directory   *MockAccountDirectory
	applied     struct {
		email    *string
		password *string
	}
}

func newProfileFixture(t *testing.T) *profileFixture {
	t.Helper()

	hash, err := pkgauth.HashPassword(testPassword)
	require.NoError(t, err)

	f := &profileFixture{
		codes: NewMemoryCodeStore(),
		account: &models.Account{
			ID:           "acct-1",
			Email:        "user@planpago.test",
			PasswordHash: hash,
			SecondFactor: models.SecondFactorEmail,
		},
	}

	f.directory = &MockAccountDirectory{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			if id == f.account.ID {
				return f.account, nil
			}
			return nil, models.ErrNotFound
		},
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			if email == f.account.Email {
				return f.account, nil
			}
			return nil, models.ErrNotFound
		},
		UpdateCredentialsFunc: func(ctx context.Context, id string, newEmail, newPasswordHash *string) (*models.Account, error) {
			f.applied.email = newEmail
			f.applied.password = newPasswordHash
			updated := *f.account
			if newEmail != nil {
				updated.Email = *newEmail
			}
			if newPasswordHash != nil {
				updated.PasswordHash = *newPasswordHash
			}
			return &updated, nil
		},
	}

	f.tokens = auth.NewTokenCodec("test-secret-that-is-long-enough-000", 30*time.Minute, 10*time.Minute)
	totpManager := auth.NewTOTPManager("PlanPago", 1)
	verifier := NewSecondFactorVerifier(f.codes, f.directory, totpManager, SecondFactorConfig{
		CodeLength:    6,
		CodeTTL:       10 * time.Minute,
		TrustedWindow: 10 * time.Minute,
	}, testLogger())

	f.coordinator = NewPendingChangeCoordinator(
		f.directory,
		verifier,
		f.tokens,
		testDispatcher(),
		testLogger(),
		testAudit(),
	)

	return f
}

func TestPendingChange_RequestWrongPassword(t *testing.T) {
	f := newProfileFixture(t)

	_, err := f.coordinator.RequestChange(context.Background(), f.account.ID, "WrongPass123", "new@planpago.test", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestPendingChange_RequestNothingToApply(t *testing.T) {
	f := newProfileFixture(t)

	_, err := f.coordinator.RequestChange(context.Background(), f.account.ID, testPassword, "", "")
	assert.ErrorIs(t, err, models.ErrNothingToApply)
}

func TestPendingChange_SameEmailIsNothingToApply(t *testing.T) {
	f := newProfileFixture(t)

	_, err := f.coordinator.RequestChange(context.Background(), f.account.ID, testPassword, f.account.Email, "")
	assert.ErrorIs(t, err, models.ErrNothingToApply)
}

func TestPendingChange_EmailCollisionRejectedAtRequestTime(t *testing.T) {
	f := newProfileFixture(t)
	f.directory.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		if email == "taken@planpago.test" {
			return &models.Account{ID: "acct-2", Email: email}, nil
		}
		if email == f.account.Email {
			return f.account, nil
		}
		return nil, models.ErrNotFound
	}

	_, err := f.coordinator.RequestChange(context.Background(), f.account.ID, testPassword, "taken@planpago.test", "")
	assert.ErrorIs(t, err, models.ErrEmailTaken)
}

func TestPendingChange_ConfirmAppliesSealedChange(t *testing.T) {
	f := newProfileFixture(t)

	ticket, err := f.coordinator.RequestChange(context.Background(), f.account.ID, testPassword, "new@planpago.test", "NewSecret456")
	require.NoError(t, err)
	require.Equal(t, models.SecondFactorEmail, ticket.Method)
	code := f.codes.LastCode(f.account.ID)
	require.NotEmpty(t, code)

	// Nothing was persisted at request time.
	assert.Nil(t, f.applied.email)
	assert.Nil(t, f.applied.password)

	updated, err := f.coordinator.ConfirmChange(context.Background(), ticket.TempToken, code)
	require.NoError(t, err)
	assert.Equal(t, "new@planpago.test", updated.Email)

	require.NotNil(t, f.applied.email)
	assert.Equal(t, "new@planpago.test", *f.applied.email)
	require.NotNil(t, f.applied.password)
	assert.NoError(t, pkgauth.ComparePassword(*f.applied.password, "NewSecret456"))
}

func TestPendingChange_ConfirmWrongCode(t *testing.T) {
	f := newProfileFixture(t)

	ticket, err := f.coordinator.RequestChange(context.Background(), f.account.ID, testPassword, "new@planpago.test", "")
	require.NoError(t, err)

	_, err = f.coordinator.ConfirmChange(context.Background(), ticket.TempToken, "000000")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
	assert.Nil(t, f.applied.email)
}

func TestPendingChange_ConfirmRejectsLoginStepUpToken(t *testing.T) {
	f := newProfileFixture(t)

	// A step-up token from the login flow carries no sealed change and must
	// not pass as a change confirmation.
	bare, err := f.tokens.IssueStepUp(f.account.ID, "", "")
	require.NoError(t, err)

	_, err = f.coordinator.ConfirmChange(context.Background(), bare, "123456")
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestPendingChange_ConfirmRejectsSessionToken(t *testing.T) {
	f := newProfileFixture(t)

	session, err := f.tokens.IssueSession(f.account.ID)
	require.NoError(t, err)

	_, err = f.coordinator.ConfirmChange(context.Background(), session, "123456")
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestPendingChange_ConfirmCollisionAtApplyTime(t *testing.T) {
	f := newProfileFixture(t)
	f.directory.UpdateCredentialsFunc = func(ctx context.Context, id string, newEmail, newPasswordHash *string) (*models.Account, error) {
		return nil, models.ErrConflict
	}

	ticket, err := f.coordinator.RequestChange(context.Background(), f.account.ID, testPassword, "new@planpago.test", "")
	require.NoError(t, err)
	code := f.codes.LastCode(f.account.ID)

	_, err = f.coordinator.ConfirmChange(context.Background(), ticket.TempToken, code)
	assert.ErrorIs(t, err, models.ErrEmailTaken)
}

func TestPendingChange_WeakNewPassword(t *testing.T) {
	f := newProfileFixture(t)

	_, err := f.coordinator.RequestChange(context.Background(), f.account.ID, testPassword, "", "short")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}
