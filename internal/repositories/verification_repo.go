package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/voyageur/internal/database"
	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerificationRepository stores outstanding one-time passcodes
type VerificationRepository struct {
	pool *pgxpool.Pool
}

func NewVerificationRepository(db *database.DB) *VerificationRepository {
	return &VerificationRepository{pool: db.Pool}
}

// Upsert replaces any outstanding code for (email, kind)
func (r *VerificationRepository) Upsert(ctx context.Context, p *models.PendingVerification) error {
	query := `
		INSERT INTO pending_verifications (email, kind, secret, attempts, expires_at, created_at)
		VALUES ($1, $2, $3, 0, $4, $5)
		ON CONFLICT (email, kind) DO UPDATE
		SET secret = EXCLUDED.secret, attempts = 0, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
	`

	_, err := r.pool.Exec(ctx, query, models.NormalizeEmail(p.Email), string(p.Kind), p.Secret, p.ExpiresAt, p.CreatedAt)
	return database.MapPostgresError(err)
}

func (r *VerificationRepository) Get(ctx context.Context, email string, kind models.OTPKind) (*models.PendingVerification, error) {
	query := `
		SELECT email, kind, secret, attempts, expires_at, created_at
		FROM pending_verifications WHERE email = $1 AND kind = $2
	`

	var p models.PendingVerification
	var k string
	err := r.pool.QueryRow(ctx, query, models.NormalizeEmail(email), string(kind)).Scan(
		&p.Email, &k, &p.Secret, &p.Attempts, &p.ExpiresAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	p.Kind = models.OTPKind(k)
	return &p, nil
}

// IncrementAttempts records a failed guess and returns the new count
func (r *VerificationRepository) IncrementAttempts(ctx context.Context, email string, kind models.OTPKind) (int, error) {
	query := `
		UPDATE pending_verifications SET attempts = attempts + 1
		WHERE email = $1 AND kind = $2
		RETURNING attempts
	`

	var attempts int
	err := r.pool.QueryRow(ctx, query, models.NormalizeEmail(email), string(kind)).Scan(&attempts)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return attempts, nil
}

func (r *VerificationRepository) Delete(ctx context.Context, email string, kind models.OTPKind) error {
	query := `DELETE FROM pending_verifications WHERE email = $1 AND kind = $2`

	_, err := r.pool.Exec(ctx, query, models.NormalizeEmail(email), string(kind))
	return database.MapPostgresError(err)
}

// DeleteExpired removes codes past their lifetime (call periodically)
func (r *VerificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM pending_verifications WHERE expires_at < $1`

	result, err := r.pool.Exec(ctx, query, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
