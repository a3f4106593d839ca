package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planpago/planpago/internal/models"
	"github.com/planpago/planpago/internal/services"
)

func TestAuthHandler_Login_StepUpChallenge(t *testing.T) {
	gate := &MockLoginGate{
		LoginFunc: func(ctx context.Context, email, password, ipAddress string) (*services.LoginResult, error) {
			// The gate owns normalization; the handler forwards as submitted.
			assert.Equal(t, "User@PlanPago.Test", email)
			return &services.LoginResult{TempToken: "temp-123", Method: models.SecondFactorEmail}, nil
		},
	}
	handler := NewAuthHandler(gate, &MockRegistrar{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/users/login", strings.NewReader(`{"email":"User@PlanPago.Test","password":"pw"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.StepUpRequired)
	assert.Equal(t, "temp-123", resp.TempToken)
	assert.Equal(t, "email", resp.SecondFactor)
	assert.Empty(t, resp.Token)
}

func TestAuthHandler_Login_TrustedWindow(t *testing.T) {
	gate := &MockLoginGate{
		LoginFunc: func(ctx context.Context, email, password, ipAddress string) (*services.LoginResult, error) {
			return &services.LoginResult{SessionToken: "session-123"}, nil
		},
	}
	handler := NewAuthHandler(gate, &MockRegistrar{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/users/login", strings.NewReader(`{"email":"user@planpago.test","password":"pw"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.StepUpRequired)
	assert.Equal(t, "session-123", resp.Token)
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	gate := &MockLoginGate{
		LoginFunc: func(ctx context.Context, email, password, ipAddress string) (*services.LoginResult, error) {
			return nil, models.ErrInvalidCredentials
		},
	}
	handler := NewAuthHandler(gate, &MockRegistrar{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/users/login", strings.NewReader(`{"email":"user@planpago.test","password":"wrong"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandler_Login_Throttled(t *testing.T) {
	gate := &MockLoginGate{
		LoginFunc: func(ctx context.Context, email, password, ipAddress string) (*services.LoginResult, error) {
			return nil, &models.ThrottledError{RetryAfter: 272 * time.Second}
		},
	}
	handler := NewAuthHandler(gate, &MockRegistrar{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/users/login", strings.NewReader(`{"email":"user@planpago.test","password":"pw"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "272", rec.Header().Get("Retry-After"))
}

func TestAuthHandler_Login_RejectsMalformedBody(t *testing.T) {
	handler := NewAuthHandler(&MockLoginGate{}, &MockRegistrar{}, nil)

	for _, body := range []string{"", "{", `{"email":"not-an-email","password":"pw"}`, `{"email":"user@planpago.test"}`} {
		req := httptest.NewRequest(http.MethodPost, "/users/login", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.Login(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestAuthHandler_VerifyCode(t *testing.T) {
	gate := &MockLoginGate{
		VerifyStepUpFunc: func(ctx context.Context, tempToken, code, ipAddress string) (string, error) {
			assert.Equal(t, "temp-123", tempToken)
			assert.Equal(t, "042531", code)
			return "session-456", nil
		},
	}
	handler := NewAuthHandler(gate, &MockRegistrar{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/users/verify-code", strings.NewReader(`{"temp_token":"temp-123","code":"042531"}`))
	rec := httptest.NewRecorder()
	handler.VerifyCode(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "session-456", resp.Token)
}

func TestAuthHandler_VerifyCode_Errors(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"expired token", models.ErrTokenExpired, http.StatusUnauthorized},
		{"invalid token", models.ErrInvalidToken, http.StatusUnauthorized},
		{"wrong code", models.ErrInvalidCode, http.StatusBadRequest},
		{"internal", models.ErrInternalServer, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := &MockLoginGate{
				VerifyStepUpFunc: func(ctx context.Context, tempToken, code, ipAddress string) (string, error) {
					return "", tt.serviceErr
				},
			}
			handler := NewAuthHandler(gate, &MockRegistrar{}, nil)

			req := httptest.NewRequest(http.MethodPost, "/users/verify-code", strings.NewReader(`{"temp_token":"temp-123","code":"000000"}`))
			rec := httptest.NewRecorder()
			handler.VerifyCode(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAuthHandler_Register(t *testing.T) {
	registrar := &MockRegistrar{
		RegisterFunc: func(ctx context.Context, email, password string) (*models.Account, error) {
			return &models.Account{ID: "acct-1", Email: "user@planpago.test", SecondFactor: models.SecondFactorEmail}, nil
		},
	}
	handler := NewAuthHandler(&MockLoginGate{}, registrar, nil)

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"email":"user@planpago.test","password":"SecurePass123"}`))
	rec := httptest.NewRecorder()
	handler.Register(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp AccountResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "acct-1", resp.ID)
	assert.Equal(t, "email", resp.SecondFactor)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestAuthHandler_Register_Duplicate(t *testing.T) {
	registrar := &MockRegistrar{
		RegisterFunc: func(ctx context.Context, email, password string) (*models.Account, error) {
			return nil, models.ErrConflict
		},
	}
	handler := NewAuthHandler(&MockLoginGate{}, registrar, nil)

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"email":"user@planpago.test","password":"SecurePass123"}`))
	rec := httptest.NewRecorder()
	handler.Register(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
