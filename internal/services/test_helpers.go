package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/planpago/planpago/internal/models"
	pkglogger "github.com/planpago/planpago/pkg/logger"
)

// MockAccountDirectory implements AccountDirectory for testing
type MockAccountDirectory struct {
	GetByIDFunc           func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc        func(ctx context.Context, email string) (*models.Account, error)
	ListFunc              func(ctx context.Context, limit, offset int) ([]*models.Account, error)
	CreateFunc            func(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdateCredentialsFunc func(ctx context.Context, id string, newEmail, newPasswordHash *string) (*models.Account, error)
	SetLastStepUpFunc     func(ctx context.Context, id string, at time.Time) error
	SetSecondFactorFunc   func(ctx context.Context, id string, method models.SecondFactorMethod, totpSecret *string) error
	DeleteFunc            func(ctx context.Context, id string) error
}

func (m *MockAccountDirectory) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountDirectory) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountDirectory) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.Account{}, nil
}

func (m *MockAccountDirectory) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountDirectory) UpdateCredentials(ctx context.Context, id string, newEmail, newPasswordHash *string) (*models.Account, error) {
	if m.UpdateCredentialsFunc != nil {
		return m.UpdateCredentialsFunc(ctx, id, newEmail, newPasswordHash)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountDirectory) SetLastStepUp(ctx context.Context, id string, at time.Time) error {
	if m.SetLastStepUpFunc != nil {
		return m.SetLastStepUpFunc(ctx, id, at)
	}
	return nil
}

func (m *MockAccountDirectory) SetSecondFactor(ctx context.Context, id string, method models.SecondFactorMethod, totpSecret *string) error {
	if m.SetSecondFactorFunc != nil {
		return m.SetSecondFactorFunc(ctx, id, method, totpSecret)
	}
	return nil
}

func (m *MockAccountDirectory) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// storedCode is a single entry in the in-memory code store.
type storedCode struct {
	accountID string
	code      string
	expiresAt time.Time
}

// MemoryCodeStore is an in-memory CodeStore so tests exercise real
// issue/consume semantics instead of canned answers.
type MemoryCodeStore struct {
	mu    sync.Mutex
	codes []storedCode
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{}
}

func (s *MemoryCodeStore) Create(ctx context.Context, accountID, code string, expiresAt time.Time) (*models.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, storedCode{accountID: accountID, code: code, expiresAt: expiresAt})
	return &models.VerificationCode{AccountID: accountID, Code: code, ExpiresAt: expiresAt}, nil
}

func (s *MemoryCodeStore) Consume(ctx context.Context, accountID, code string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.codes {
		if c.accountID == accountID && c.code == code && !now.After(c.expiresAt) {
			s.codes = append(s.codes[:i], s.codes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryCodeStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []storedCode
	var removed int64
	for _, c := range s.codes {
		if now.After(c.expiresAt) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.codes = kept
	return removed, nil
}

// Count returns the number of unexpired codes held for the account.
func (s *MemoryCodeStore) Count(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.codes {
		if c.accountID == accountID {
			n++
		}
	}
	return n
}

// LastCode returns the most recently issued code for the account.
func (s *MemoryCodeStore) LastCode(accountID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.codes) - 1; i >= 0; i-- {
		if s.codes[i].accountID == accountID {
			return s.codes[i].code
		}
	}
	return ""
}

// MockImpersonationStore implements ImpersonationStore for testing
type MockImpersonationStore struct {
	CreateFunc          func(ctx context.Context, adminID, targetID, token string) (*models.ImpersonationRequest, error)
	GetByIDFunc         func(ctx context.Context, id string) (*models.ImpersonationRequest, error)
	GetByTokenFunc      func(ctx context.Context, token string) (*models.ImpersonationRequest, error)
	ConfirmFunc         func(ctx context.Context, token string, at time.Time) (int64, error)
	LatestConfirmedFunc func(ctx context.Context, adminID, targetID string) (*models.ImpersonationRequest, error)
}

func (m *MockImpersonationStore) Create(ctx context.Context, adminID, targetID, token string) (*models.ImpersonationRequest, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, adminID, targetID, token)
	}
	return &models.ImpersonationRequest{ID: "req-1", AdminID: adminID, TargetID: targetID, Token: token}, nil
}

func (m *MockImpersonationStore) GetByID(ctx context.Context, id string) (*models.ImpersonationRequest, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockImpersonationStore) GetByToken(ctx context.Context, token string) (*models.ImpersonationRequest, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockImpersonationStore) Confirm(ctx context.Context, token string, at time.Time) (int64, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, token, at)
	}
	return 0, nil
}

func (m *MockImpersonationStore) LatestConfirmed(ctx context.Context, adminID, targetID string) (*models.ImpersonationRequest, error) {
	if m.LatestConfirmedFunc != nil {
		return m.LatestConfirmedFunc(ctx, adminID, targetID)
	}
	return nil, models.ErrNotFound
}

// nopNotifier swallows outbound messages in tests.
type nopNotifier struct{}

func (nopNotifier) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	return nil
}

func (nopNotifier) SendImpersonationConsent(ctx context.Context, email, adminEmail, confirmURL string) error {
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAudit() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}

func testDispatcher() *Dispatcher {
	return NewDispatcher(nopNotifier{}, testLogger())
}
