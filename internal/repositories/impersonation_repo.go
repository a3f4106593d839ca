package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/planpago/planpago/internal/database"
	"github.com/planpago/planpago/internal/models"
)

// ImpersonationRepository handles impersonation request/consent records.
// Records are retained for audit; staleness is a read-side concern.
type ImpersonationRepository struct {
	pool *pgxpool.Pool
}

func NewImpersonationRepository(db *database.DB) *ImpersonationRepository {
	return &ImpersonationRepository{pool: db.Pool}
}

const impersonationColumns = `id, admin_id, target_id, token, confirmed, confirmed_at, created_at`

func scanImpersonationRow(scanner rowScanner) (*models.ImpersonationRequest, error) {
	var req models.ImpersonationRequest
	var confirmedAt *time.Time

	err := scanner.Scan(
		&req.ID, &req.AdminID, &req.TargetID, &req.Token,
		&req.Confirmed, &confirmedAt, &req.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	req.ConfirmedAt = confirmedAt
	return &req, nil
}

// Create inserts a new request, superseding any unconfirmed prior request
// from the same admin for the same target. Confirmed requests stay for audit.
func (r *ImpersonationRepository) Create(ctx context.Context, adminID, targetID, token string) (*models.ImpersonationRequest, error) {
	deleteQuery := `
		DELETE FROM impersonation_requests
		WHERE admin_id = $1 AND target_id = $2 AND NOT confirmed
	`
	if _, err := r.pool.Exec(ctx, deleteQuery, adminID, targetID); err != nil {
		return nil, fmt.Errorf("failed to supersede prior requests: %w", err)
	}

	insertQuery := `
		INSERT INTO impersonation_requests (admin_id, target_id, token)
		VALUES ($1, $2, $3)
		RETURNING ` + impersonationColumns

	return scanImpersonationRow(r.pool.QueryRow(ctx, insertQuery, adminID, targetID, token))
}

func (r *ImpersonationRepository) GetByID(ctx context.Context, id string) (*models.ImpersonationRequest, error) {
	query := `SELECT ` + impersonationColumns + ` FROM impersonation_requests WHERE id = $1`

	return scanImpersonationRow(r.pool.QueryRow(ctx, query, id))
}

func (r *ImpersonationRepository) GetByToken(ctx context.Context, token string) (*models.ImpersonationRequest, error) {
	query := `SELECT ` + impersonationColumns + ` FROM impersonation_requests WHERE token = $1`

	return scanImpersonationRow(r.pool.QueryRow(ctx, query, token))
}

// Confirm marks an unconfirmed request confirmed at the given time. Returns
// the number of rows updated; zero means the request was already confirmed or
// does not exist, which the caller disambiguates for idempotency.
func (r *ImpersonationRepository) Confirm(ctx context.Context, token string, at time.Time) (int64, error) {
	query := `
		UPDATE impersonation_requests
		SET confirmed = TRUE, confirmed_at = $2
		WHERE token = $1 AND NOT confirmed
	`

	tag, err := r.pool.Exec(ctx, query, token, at)
	if err != nil {
		return 0, fmt.Errorf("failed to confirm impersonation request: %w", err)
	}

	return tag.RowsAffected(), nil
}

// LatestConfirmed returns the most recently confirmed request for the
// (admin, target) pair, or models.ErrNotFound.
func (r *ImpersonationRepository) LatestConfirmed(ctx context.Context, adminID, targetID string) (*models.ImpersonationRequest, error) {
	query := `
		SELECT ` + impersonationColumns + `
		FROM impersonation_requests
		WHERE admin_id = $1 AND target_id = $2 AND confirmed
		ORDER BY confirmed_at DESC
		LIMIT 1
	`

	return scanImpersonationRow(r.pool.QueryRow(ctx, query, adminID, targetID))
}
