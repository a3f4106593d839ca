package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/planpago/planpago/internal/database"
	"github.com/planpago/planpago/internal/models"
)

// VerificationCodeRepository handles one-time email code data access.
type VerificationCodeRepository struct {
	pool *pgxpool.Pool
}

func NewVerificationCodeRepository(db *database.DB) *VerificationCodeRepository {
	return &VerificationCodeRepository{pool: db.Pool}
}

// Create stores a freshly issued code. Older unexpired codes for the same
// account are left alone; single use is enforced by Consume.
func (r *VerificationCodeRepository) Create(ctx context.Context, accountID, code string, expiresAt time.Time) (*models.VerificationCode, error) {
	query := `
		INSERT INTO verification_codes (account_id, code, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, account_id, code, expires_at, created_at
	`

	var vc models.VerificationCode
	err := r.pool.QueryRow(ctx, query, accountID, code, expiresAt).Scan(
		&vc.ID, &vc.AccountID, &vc.Code, &vc.ExpiresAt, &vc.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &vc, nil
}

// Consume atomically deletes a matching unexpired code and reports whether
// one existed. The single DELETE makes concurrent submissions of the same
// code race safely: exactly one caller observes rows-affected > 0.
func (r *VerificationCodeRepository) Consume(ctx context.Context, accountID, code string, now time.Time) (bool, error) {
	query := `
		DELETE FROM verification_codes
		WHERE id IN (
			SELECT id FROM verification_codes
			WHERE account_id = $1 AND code = $2 AND expires_at >= $3
			LIMIT 1
		)
	`

	tag, err := r.pool.Exec(ctx, query, accountID, code, now)
	if err != nil {
		return false, fmt.Errorf("failed to consume verification code: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteExpired purges codes past their expiry. Used by the cleanup task.
func (r *VerificationCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM verification_codes WHERE expires_at < $1`

	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}

	return tag.RowsAffected(), nil
}
