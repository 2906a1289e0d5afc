package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/voyageur/internal/database"
	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// AccountRepository persists accounts for the local identity provider
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

const accountColumns = `id, email, password_hash, email_confirmed_at, methods, full_name, avatar_url, google_subject, created_at, updated_at`

// rowScanner covers both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAccountRow handles nullable credential columns
func scanAccountRow(scanner rowScanner) (*models.StoredAccount, error) {
	var acc models.StoredAccount
	var passwordHash, googleSubject *string

	err := scanner.Scan(
		&acc.ID, &acc.Email, &passwordHash, &acc.EmailConfirmedAt,
		pq.Array(&acc.Methods), &acc.Metadata.FullName, &acc.Metadata.AvatarURL,
		&googleSubject, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		acc.PasswordHash = *passwordHash
	}
	if googleSubject != nil {
		acc.GoogleSubject = *googleSubject
	}
	return &acc, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.StoredAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.StoredAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, models.NormalizeEmail(email)))
}

// Create inserts a new account. ID and timestamps are assigned here.
func (r *AccountRepository) Create(ctx context.Context, acc *models.StoredAccount) (*models.StoredAccount, error) {
	acc.ID = uuid.New().String()
	acc.Email = models.NormalizeEmail(acc.Email)
	now := time.Now().UTC()
	acc.CreatedAt = now
	acc.UpdatedAt = now
	if acc.Methods == nil {
		acc.Methods = []string{}
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, email_confirmed_at, methods, full_name, avatar_url, google_subject, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + accountColumns

	created, err := scanAccountRow(r.pool.QueryRow(ctx, query,
		acc.ID, acc.Email, nullIfEmpty(acc.PasswordHash), acc.EmailConfirmedAt,
		pq.Array(acc.Methods), acc.Metadata.FullName, acc.Metadata.AvatarURL,
		nullIfEmpty(acc.GoogleSubject), acc.CreatedAt, acc.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return created, nil
}

// ReplaceUnverified overwrites the password and profile of an account that
// never confirmed its email. Confirmed accounts are left untouched and
// reported as ErrNotFound.
func (r *AccountRepository) ReplaceUnverified(ctx context.Context, id, passwordHash string, metadata models.AccountMetadata) (*models.StoredAccount, error) {
	query := `
		UPDATE accounts
		SET password_hash = $2,
		    methods = CASE WHEN 'email' = ANY(methods) THEN methods ELSE array_append(methods, 'email') END,
		    full_name = CASE WHEN $3 = '' THEN full_name ELSE $3 END,
		    updated_at = NOW()
		WHERE id = $1 AND email_confirmed_at IS NULL
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, id, passwordHash, metadata.FullName))
}

// ConfirmEmail stamps the confirmation time once; later calls keep the first stamp
func (r *AccountRepository) ConfirmEmail(ctx context.Context, id string, at time.Time) (*models.StoredAccount, error) {
	query := `
		UPDATE accounts
		SET email_confirmed_at = COALESCE(email_confirmed_at, $2), updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, id, at))
}

// UpdatePassword sets a new hash and links the password method
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE accounts
		SET password_hash = $2,
		    methods = CASE WHEN 'email' = ANY(methods) THEN methods ELSE array_append(methods, 'email') END,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// LinkGoogle records the Google subject, links the method and confirms the
// email, which Google has already verified. Credentials and profile set on
// an unconfirmed account are dropped: nobody proved they owned the address.
func (r *AccountRepository) LinkGoogle(ctx context.Context, id, subject string, at time.Time) (*models.StoredAccount, error) {
	query := `
		UPDATE accounts
		SET google_subject = $2,
		    password_hash = CASE WHEN email_confirmed_at IS NULL THEN NULL ELSE password_hash END,
		    methods = CASE
		        WHEN email_confirmed_at IS NULL THEN ARRAY['google']::TEXT[]
		        WHEN 'google' = ANY(methods) THEN methods
		        ELSE array_append(methods, 'google')
		    END,
		    full_name = CASE WHEN email_confirmed_at IS NULL THEN '' ELSE full_name END,
		    avatar_url = CASE WHEN email_confirmed_at IS NULL THEN '' ELSE avatar_url END,
		    email_confirmed_at = COALESCE(email_confirmed_at, $3),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, id, subject, at))
}

func (r *AccountRepository) UpdateMetadata(ctx context.Context, id string, metadata models.AccountMetadata) (*models.StoredAccount, error) {
	query := `
		UPDATE accounts SET full_name = $2, avatar_url = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, id, metadata.FullName, metadata.AvatarURL))
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM accounts WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
