package services

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planpago/planpago/internal/auth"
	"github.com/planpago/planpago/internal/models"
)

func newVerifierFixture(t *testing.T) (*SecondFactorVerifier, *MemoryCodeStore, *auth.TOTPManager, func(time.Duration)) {
	t.Helper()

	codes := NewMemoryCodeStore()
	totpManager := auth.NewTOTPManager("PlanPago", 1)
	directory := &MockAccountDirectory{}
	verifier := NewSecondFactorVerifier(codes, directory, totpManager, SecondFactorConfig{
		CodeLength:    6,
		CodeTTL:       10 * time.Minute,
		TrustedWindow: 10 * time.Minute,
	}, testLogger())

	clock := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	advance := func(d time.Duration) {
		clock = clock.Add(d)
		now := func() time.Time { return clock }
		verifier.SetClock(now)
		totpManager.SetClock(now)
	}
	advance(0)

	return verifier, codes, totpManager, advance
}

func TestSecondFactorVerifier_IssueEmailCode(t *testing.T) {
	verifier, codes, _, _ := newVerifierFixture(t)
	account := &models.Account{ID: "acct-1", Email: "user@planpago.test", SecondFactor: models.SecondFactorEmail}

	code, expiresAt, err := verifier.IssueEmailCode(context.Background(), account)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, 1, codes.Count(account.ID))
	assert.Equal(t, time.Date(2026, 3, 14, 12, 10, 0, 0, time.UTC), expiresAt)
}

func TestSecondFactorVerifier_MultipleCodesCoexist(t *testing.T) {
	verifier, codes, _, _ := newVerifierFixture(t)
	account := &models.Account{ID: "acct-1", Email: "user@planpago.test", SecondFactor: models.SecondFactorEmail}

	first, _, err := verifier.IssueEmailCode(context.Background(), account)
	require.NoError(t, err)
	second, _, err := verifier.IssueEmailCode(context.Background(), account)
	require.NoError(t, err)
	require.Equal(t, 2, codes.Count(account.ID))

	// Issuing a second code does not invalidate the first; each remains
	// independently consumable exactly once.
	ok, err := verifier.VerifyEmailCode(context.Background(), account, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifier.VerifyEmailCode(context.Background(), account, second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSecondFactorVerifier_CodeSingleUse(t *testing.T) {
	verifier, _, _, _ := newVerifierFixture(t)
	account := &models.Account{ID: "acct-1", Email: "user@planpago.test", SecondFactor: models.SecondFactorEmail}

	code, _, err := verifier.IssueEmailCode(context.Background(), account)
	require.NoError(t, err)

	ok, err := verifier.VerifyEmailCode(context.Background(), account, code)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifier.VerifyEmailCode(context.Background(), account, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecondFactorVerifier_ExpiredCode(t *testing.T) {
	verifier, _, _, advance := newVerifierFixture(t)
	account := &models.Account{ID: "acct-1", Email: "user@planpago.test", SecondFactor: models.SecondFactorEmail}

	code, _, err := verifier.IssueEmailCode(context.Background(), account)
	require.NoError(t, err)

	advance(10*time.Minute + time.Second)

	ok, err := verifier.VerifyEmailCode(context.Background(), account, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecondFactorVerifier_EmptyCode(t *testing.T) {
	verifier, _, _, _ := newVerifierFixture(t)
	account := &models.Account{ID: "acct-1", SecondFactor: models.SecondFactorEmail}

	ok, err := verifier.VerifyEmailCode(context.Background(), account, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecondFactorVerifier_TOTP(t *testing.T) {
	verifier, _, _, _ := newVerifierFixture(t)
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	account := &models.Account{ID: "acct-1", SecondFactor: models.SecondFactorTOTP, TOTPSecret: &secret}

	code, err := totp.GenerateCode(secret, time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.True(t, verifier.VerifyTOTP(account, code))
	assert.False(t, verifier.VerifyTOTP(account, "000000"))
}

func TestSecondFactorVerifier_TOTPWithoutSecret(t *testing.T) {
	verifier, _, _, _ := newVerifierFixture(t)
	account := &models.Account{ID: "acct-1", SecondFactor: models.SecondFactorTOTP}

	assert.False(t, verifier.VerifyTOTP(account, "123456"))
}

func TestSecondFactorVerifier_VerifyDispatch(t *testing.T) {
	verifier, _, _, _ := newVerifierFixture(t)

	account := &models.Account{ID: "acct-1", Email: "user@planpago.test", SecondFactor: models.SecondFactorEmail}
	code, _, err := verifier.IssueEmailCode(context.Background(), account)
	require.NoError(t, err)

	ok, err := verifier.Verify(context.Background(), account, code)
	require.NoError(t, err)
	assert.True(t, ok)

	unknown := &models.Account{ID: "acct-2", SecondFactor: models.SecondFactorMethod("sms")}
	_, err = verifier.Verify(context.Background(), unknown, "123456")
	assert.Error(t, err)
}

func TestSecondFactorVerifier_TrustedWindow(t *testing.T) {
	verifier, _, _, advance := newVerifierFixture(t)
	account := &models.Account{ID: "acct-1", SecondFactor: models.SecondFactorEmail}

	assert.False(t, verifier.IsWithinTrustedWindow(account))

	require.NoError(t, verifier.TouchTrustedWindow(context.Background(), account))
	assert.True(t, verifier.IsWithinTrustedWindow(account))

	advance(10*time.Minute + time.Second)
	assert.False(t, verifier.IsWithinTrustedWindow(account))
}

func TestRandomNumericCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := randomNumericCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9')
		}
		seen[code] = true
	}
	// 50 draws from a million values virtually never collide down to one.
	assert.Greater(t, len(seen), 1)
}
