package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planpago/planpago/internal/models"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up test database: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	_ = testDB.Teardown(ctx)
	os.Exit(code)
}

func resetTables(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
}

func TestVerificationCode_ConsumedExactlyOnce(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, codes, _ := InitializeRepositories(testDB.DB)

	account, err := SeedAccount(ctx, testDB.Pool, "user@planpago.test", "SecurePass123", false)
	require.NoError(t, err)

	_, err = codes.Create(ctx, account.ID, "042531", time.Now().Add(10*time.Minute))
	require.NoError(t, err)

	// Concurrent submissions of the same code: the delete-where-consume is
	// atomic, so exactly one wins.
	var wg sync.WaitGroup
	results := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := codes.Consume(ctx, account.ID, "042531", time.Now())
			if err == nil && ok {
				results <- true
			}
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for range results {
		wins++
	}
	assert.Equal(t, 1, wins)
}

func TestVerificationCode_ExpiryEnforcedInSQL(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, codes, _ := InitializeRepositories(testDB.DB)

	account, err := SeedAccount(ctx, testDB.Pool, "user@planpago.test", "SecurePass123", false)
	require.NoError(t, err)

	require.NoError(t, SeedExpiredCode(ctx, testDB.Pool, account.ID, "111111"))

	ok, err := codes.Consume(ctx, account.ID, "111111", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerificationCode_DeleteExpired(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, codes, _ := InitializeRepositories(testDB.DB)

	account, err := SeedAccount(ctx, testDB.Pool, "user@planpago.test", "SecurePass123", false)
	require.NoError(t, err)

	require.NoError(t, SeedExpiredCode(ctx, testDB.Pool, account.ID, "111111"))
	_, err = codes.Create(ctx, account.ID, "222222", time.Now().Add(10*time.Minute))
	require.NoError(t, err)

	removed, err := codes.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// The live code survived.
	ok, err := codes.Consume(ctx, account.ID, "222222", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccounts_EmailUnique(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	accounts, _, _ := InitializeRepositories(testDB.DB)

	_, err := SeedAccount(ctx, testDB.Pool, "user@planpago.test", "SecurePass123", false)
	require.NoError(t, err)

	_, err = accounts.Create(ctx, &models.Account{
		Email:        "user@planpago.test",
		PasswordHash: "hash",
		SecondFactor: models.SecondFactorEmail,
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAccounts_UpdateCredentialsConflict(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	accounts, _, _ := InitializeRepositories(testDB.DB)

	first, err := SeedAccount(ctx, testDB.Pool, "first@planpago.test", "SecurePass123", false)
	require.NoError(t, err)
	_, err = SeedAccount(ctx, testDB.Pool, "second@planpago.test", "SecurePass123", false)
	require.NoError(t, err)

	taken := "second@planpago.test"
	_, err = accounts.UpdateCredentials(ctx, first.ID, &taken, nil)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestImpersonation_SupersedeAndConfirm(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, _, impersonations := InitializeRepositories(testDB.DB)

	admin, err := SeedAccount(ctx, testDB.Pool, "admin@planpago.test", "SecurePass123", true)
	require.NoError(t, err)
	target, err := SeedAccount(ctx, testDB.Pool, "user@planpago.test", "SecurePass123", false)
	require.NoError(t, err)

	first, err := impersonations.Create(ctx, admin.ID, target.ID, "token-1")
	require.NoError(t, err)
	second, err := impersonations.Create(ctx, admin.ID, target.ID, "token-2")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	// The superseded request is gone; its token no longer confirms anything.
	updated, err := impersonations.Confirm(ctx, "token-1", time.Now())
	require.NoError(t, err)
	assert.Zero(t, updated)

	updated, err = impersonations.Confirm(ctx, "token-2", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	// A second confirm of the same token updates nothing.
	updated, err = impersonations.Confirm(ctx, "token-2", time.Now())
	require.NoError(t, err)
	assert.Zero(t, updated)

	latest, err := impersonations.LatestConfirmed(ctx, admin.ID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.True(t, latest.Confirmed)
	require.NotNil(t, latest.ConfirmedAt)
}

func TestImpersonation_CascadeOnAccountDelete(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	accounts, _, impersonations := InitializeRepositories(testDB.DB)

	admin, err := SeedAccount(ctx, testDB.Pool, "admin@planpago.test", "SecurePass123", true)
	require.NoError(t, err)
	target, err := SeedAccount(ctx, testDB.Pool, "user@planpago.test", "SecurePass123", false)
	require.NoError(t, err)

	req, err := impersonations.Create(ctx, admin.ID, target.ID, "token-1")
	require.NoError(t, err)

	require.NoError(t, accounts.Delete(ctx, target.ID))

	_, err = impersonations.GetByID(ctx, req.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
