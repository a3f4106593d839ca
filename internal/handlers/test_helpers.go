package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/planpago/planpago/internal/auth"
	"github.com/planpago/planpago/internal/models"
	"github.com/planpago/planpago/internal/services"
)

// MockLoginGate implements LoginGateInterface for testing
type MockLoginGate struct {
	LoginFunc        func(ctx context.Context, email, password, ipAddress string) (*services.LoginResult, error)
	VerifyStepUpFunc func(ctx context.Context, tempToken, code, ipAddress string) (string, error)
}

func (m *MockLoginGate) Login(ctx context.Context, email, password, ipAddress string) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password, ipAddress)
	}
	return nil, models.ErrInternalServer
}

func (m *MockLoginGate) VerifyStepUp(ctx context.Context, tempToken, code, ipAddress string) (string, error) {
	if m.VerifyStepUpFunc != nil {
		return m.VerifyStepUpFunc(ctx, tempToken, code, ipAddress)
	}
	return "", models.ErrInternalServer
}

// MockRegistrar implements RegistrarInterface for testing
type MockRegistrar struct {
	RegisterFunc func(ctx context.Context, email, password string) (*models.Account, error)
}

func (m *MockRegistrar) Register(ctx context.Context, email, password string) (*models.Account, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, email, password)
	}
	return nil, models.ErrInternalServer
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	GetFunc         func(ctx context.Context, id string) (*models.Account, error)
	DeleteFunc      func(ctx context.Context, id string) error
	SetupTOTPFunc   func(ctx context.Context, accountID string) (*services.TOTPEnrollment, error)
	EnableTOTPFunc  func(ctx context.Context, accountID, secret, code string) error
	DisableTOTPFunc func(ctx context.Context, accountID, code string) error
	ListFunc        func(ctx context.Context, limit, offset int) ([]*models.Account, error)
}

func (m *MockAccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountService) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountService) SetupTOTP(ctx context.Context, accountID string) (*services.TOTPEnrollment, error) {
	if m.SetupTOTPFunc != nil {
		return m.SetupTOTPFunc(ctx, accountID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountService) EnableTOTP(ctx context.Context, accountID, secret, code string) error {
	if m.EnableTOTPFunc != nil {
		return m.EnableTOTPFunc(ctx, accountID, secret, code)
	}
	return nil
}

func (m *MockAccountService) DisableTOTP(ctx context.Context, accountID, code string) error {
	if m.DisableTOTPFunc != nil {
		return m.DisableTOTPFunc(ctx, accountID, code)
	}
	return nil
}

func (m *MockAccountService) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.Account{}, nil
}

// MockChangeCoordinator implements ChangeCoordinatorInterface for testing
type MockChangeCoordinator struct {
	RequestChangeFunc func(ctx context.Context, accountID, currentPassword, newEmail, newPassword string) (*services.ChangeTicket, error)
	ConfirmChangeFunc func(ctx context.Context, tempToken, code string) (*models.Account, error)
}

func (m *MockChangeCoordinator) RequestChange(ctx context.Context, accountID, currentPassword, newEmail, newPassword string) (*services.ChangeTicket, error) {
	if m.RequestChangeFunc != nil {
		return m.RequestChangeFunc(ctx, accountID, currentPassword, newEmail, newPassword)
	}
	return nil, models.ErrInternalServer
}

func (m *MockChangeCoordinator) ConfirmChange(ctx context.Context, tempToken, code string) (*models.Account, error) {
	if m.ConfirmChangeFunc != nil {
		return m.ConfirmChangeFunc(ctx, tempToken, code)
	}
	return nil, models.ErrInternalServer
}

// MockImpersonationBroker implements ImpersonationBrokerInterface for testing
type MockImpersonationBroker struct {
	RequestFunc     func(ctx context.Context, adminID, targetID string) (string, error)
	ConfirmFunc     func(ctx context.Context, token string) error
	StatusFunc      func(ctx context.Context, adminID, requestID string) (bool, error)
	ImpersonateFunc func(ctx context.Context, adminID, targetID string) (string, error)
}

func (m *MockImpersonationBroker) Request(ctx context.Context, adminID, targetID string) (string, error) {
	if m.RequestFunc != nil {
		return m.RequestFunc(ctx, adminID, targetID)
	}
	return "", models.ErrInternalServer
}

func (m *MockImpersonationBroker) Confirm(ctx context.Context, token string) error {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, token)
	}
	return nil
}

func (m *MockImpersonationBroker) Status(ctx context.Context, adminID, requestID string) (bool, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, adminID, requestID)
	}
	return false, nil
}

func (m *MockImpersonationBroker) Impersonate(ctx context.Context, adminID, targetID string) (string, error) {
	if m.ImpersonateFunc != nil {
		return m.ImpersonateFunc(ctx, adminID, targetID)
	}
	return "", models.ErrInternalServer
}

// withSessionClaims injects verified session claims, as SessionMiddleware
// would after validating a bearer token.
func withSessionClaims(r *http.Request, accountID string) *http.Request {
	claims := &auth.Claims{
		Type: auth.TokenTypeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: accountID,
		},
	}
	ctx := context.WithValue(r.Context(), auth.ClaimsContextKey, claims)
	return r.WithContext(ctx)
}

// withURLParam attaches a chi route parameter to the request context.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
