package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/planpago/planpago/internal/database"
	"github.com/planpago/planpago/internal/models"
)

// AccountRepository is the Directory implementation for accounts.
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const accountColumns = `id, email, password_hash, is_admin, second_factor, totp_secret, last_stepup_at, reminder_channels, created_at, updated_at`

// scanAccountRow handles nullable fields and populates an Account model from a database row
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var totpSecret *string
	var lastStepUpAt *time.Time
	var secondFactor string

	err := scanner.Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.IsAdmin,
		&secondFactor, &totpSecret, &lastStepUpAt,
		pq.Array(&account.ReminderChannels),
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	account.SecondFactor = models.SecondFactorMethod(secondFactor)
	account.TOTPSecret = totpSecret
	account.LastStepUpAt = lastStepUpAt

	return &account, nil
}

func scanAccountRows(rows pgx.Rows) ([]*models.Account, error) {
	defer rows.Close()

	accounts := make([]*models.Account, 0)

	for rows.Next() {
		account, err := scanAccountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return accounts, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	return scanAccountRows(rows)
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (email, password_hash, is_admin, second_factor, reminder_channels)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		account.Email, account.PasswordHash, account.IsAdmin,
		string(account.SecondFactor), pq.Array(account.ReminderChannels),
	))
}

// UpdateCredentials applies a confirmed email and/or password change.
// Nil arguments leave the corresponding column untouched.
func (r *AccountRepository) UpdateCredentials(ctx context.Context, id string, newEmail, newPasswordHash *string) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET email = COALESCE($2, email),
		    password_hash = COALESCE($3, password_hash),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, id, newEmail, newPasswordHash))
}

// SetLastStepUp stamps a successful second-factor verification.
func (r *AccountRepository) SetLastStepUp(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE accounts SET last_stepup_at = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetSecondFactor switches the account's step-up method. The TOTP secret is
// stored iff the method is totp, cleared otherwise.
func (r *AccountRepository) SetSecondFactor(ctx context.Context, id string, method models.SecondFactorMethod, totpSecret *string) error {
	if method != models.SecondFactorTOTP {
		totpSecret = nil
	}

	query := `UPDATE accounts SET second_factor = $2, totp_secret = $3, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, string(method), totpSecret)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM accounts WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
