package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planpago/planpago/internal/auth"
	"github.com/planpago/planpago/internal/models"
	pkgauth "github.com/planpago/planpago/pkg/auth"
)

func newAccountService(directory *MockAccountDirectory) *AccountService {
	return NewAccountService(directory, auth.NewTOTPManager("PlanPago", 1), testLogger(), testAudit())
}

func TestAccountService_Register(t *testing.T) {
	var created *models.Account
	directory := &MockAccountDirectory{
		CreateFunc: func(ctx context.Context, account *models.Account) (*models.Account, error) {
			created = account
			account.ID = "acct-1"
			return account, nil
		},
	}
	service := newAccountService(directory)

	account, err := service.Register(context.Background(), "  User@PlanPago.Test ", testPassword)
	require.NoError(t, err)
	assert.Equal(t, "user@planpago.test", account.Email)
	assert.Equal(t, models.SecondFactorEmail, account.SecondFactor)

	require.NotNil(t, created)
	assert.NotEqual(t, testPassword, created.PasswordHash)
	assert.NoError(t, pkgauth.ComparePassword(created.PasswordHash, testPassword))
}

func TestAccountService_RegisterDuplicateEmail(t *testing.T) {
	directory := &MockAccountDirectory{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return &models.Account{ID: "acct-1", Email: email}, nil
		},
	}
	service := newAccountService(directory)

	_, err := service.Register(context.Background(), "user@planpago.test", testPassword)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAccountService_RegisterWeakPassword(t *testing.T) {
	service := newAccountService(&MockAccountDirectory{})

	for _, password := range []string{"", "short", "alllowercase1", "ALLUPPERCASE1", "NoDigitsHere"} {
		_, err := service.Register(context.Background(), "user@planpago.test", password)
		assert.ErrorIs(t, err, models.ErrBadRequest, "password %q", password)
	}
}

func TestAccountService_ListClampsLimit(t *testing.T) {
	var gotLimit int
	directory := &MockAccountDirectory{
		ListFunc: func(ctx context.Context, limit, offset int) ([]*models.Account, error) {
			gotLimit = limit
			return []*models.Account{}, nil
		},
	}
	service := newAccountService(directory)

	_, err := service.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, gotLimit)

	_, err = service.List(context.Background(), 500, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, gotLimit)

	_, err = service.List(context.Background(), 25, 0)
	require.NoError(t, err)
	assert.Equal(t, 25, gotLimit)
}

func TestAccountService_SetupTOTP(t *testing.T) {
	directory := &MockAccountDirectory{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, Email: "user@planpago.test", SecondFactor: models.SecondFactorEmail}, nil
		},
		SetSecondFactorFunc: func(ctx context.Context, id string, method models.SecondFactorMethod, totpSecret *string) error {
			t.Fatal("setup must not change the second factor")
			return nil
		},
	}
	service := newAccountService(directory)

	enrollment, err := service.SetupTOTP(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.QRDataURL, "data:image/png;base64,"))
}

func TestAccountService_EnableTOTP(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	var savedMethod models.SecondFactorMethod
	var savedSecret *string
	directory := &MockAccountDirectory{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, Email: "user@planpago.test", SecondFactor: models.SecondFactorEmail}, nil
		},
		SetSecondFactorFunc: func(ctx context.Context, id string, method models.SecondFactorMethod, totpSecret *string) error {
			savedMethod = method
			savedSecret = totpSecret
			return nil
		},
	}
	service := newAccountService(directory)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	require.NoError(t, service.EnableTOTP(context.Background(), "acct-1", secret, code))
	assert.Equal(t, models.SecondFactorTOTP, savedMethod)
	require.NotNil(t, savedSecret)
	assert.Equal(t, secret, *savedSecret)
}

func TestAccountService_EnableTOTPWrongCode(t *testing.T) {
	directory := &MockAccountDirectory{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, Email: "user@planpago.test"}, nil
		},
		SetSecondFactorFunc: func(ctx context.Context, id string, method models.SecondFactorMethod, totpSecret *string) error {
			t.Fatal("wrong code must not flip the method")
			return nil
		},
	}
	service := newAccountService(directory)

	err := service.EnableTOTP(context.Background(), "acct-1", "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP", "000000")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestAccountService_DisableTOTP(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	var savedMethod models.SecondFactorMethod
	var savedSecret *string
	directory := &MockAccountDirectory{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, SecondFactor: models.SecondFactorTOTP, TOTPSecret: &secret}, nil
		},
		SetSecondFactorFunc: func(ctx context.Context, id string, method models.SecondFactorMethod, totpSecret *string) error {
			savedMethod = method
			savedSecret = totpSecret
			return nil
		},
	}
	service := newAccountService(directory)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	require.NoError(t, service.DisableTOTP(context.Background(), "acct-1", code))
	assert.Equal(t, models.SecondFactorEmail, savedMethod)
	assert.Nil(t, savedSecret)
}

func TestAccountService_DisableTOTPNotEnrolled(t *testing.T) {
	directory := &MockAccountDirectory{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, SecondFactor: models.SecondFactorEmail}, nil
		},
	}
	service := newAccountService(directory)

	err := service.DisableTOTP(context.Background(), "acct-1", "123456")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}
