// Package accounts provides the PostgreSQL-backed store for the users table:
// credentials, login attempt tracking and password reset tokens.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountgate/internal/common"
	"github.com/dmitrijs2005/accountgate/internal/dbx"
	"github.com/dmitrijs2005/accountgate/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const accountColumns = `id, username, password, login_attempts, last_attempt, is_locked, reset_token, reset_token_expires, created_at`

// PostgresRepository runs its queries over a dbx.DBTX, so the same code
// serves plain connections and transactions.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, username, passwordHash string) (string, error) {
	query :=
		`INSERT INTO users (username, password)
		 VALUES ($1, $2)
		 RETURNING id`

	var id string
	if err := r.db.QueryRowContext(ctx, query, username, passwordHash).Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", common.ErrorDuplicateUsername
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query :=
		`SELECT ` + accountColumns + ` FROM users
		 WHERE username = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}

	query :=
		`SELECT ` + accountColumns + ` FROM users
		 WHERE id = $1
		 FOR UPDATE`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByResetToken(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}

	query :=
		`SELECT ` + accountColumns + ` FROM users
		 WHERE reset_token = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresRepository) GetByResetTokenForUpdate(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}

	query :=
		`SELECT ` + accountColumns + ` FROM users
		 WHERE reset_token = $1
		 FOR UPDATE`

	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresRepository) UpdateAttempts(ctx context.Context, id string, attempts int, lastAttempt time.Time, locked bool) error {
	query :=
		`UPDATE users SET login_attempts = $2, last_attempt = $3, is_locked = $4
		 WHERE id = $1`

	return r.execOne(ctx, query, id, attempts, lastAttempt, locked)
}

func (r *PostgresRepository) ResetAttempts(ctx context.Context, id string) (*models.Account, error) {
	query :=
		`UPDATE users SET login_attempts = 0, last_attempt = NULL, is_locked = FALSE
		 WHERE id = $1
		 RETURNING ` + accountColumns

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	query :=
		`UPDATE users SET password = $2
		 WHERE id = $1`

	return r.execOne(ctx, query, id, passwordHash)
}

func (r *PostgresRepository) SetResetToken(ctx context.Context, id string, token string, expires time.Time) error {
	query :=
		`UPDATE users SET reset_token = $2, reset_token_expires = $3
		 WHERE id = $1`

	return r.execOne(ctx, query, id, token, expires)
}

func (r *PostgresRepository) ClearResetToken(ctx context.Context, id string) error {
	query :=
		`UPDATE users SET reset_token = NULL, reset_token_expires = NULL
		 WHERE id = $1`

	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(
		&a.ID, &a.UserName, &a.PasswordHash,
		&a.LoginAttempts, &a.LastAttempt, &a.IsLocked,
		&a.ResetToken, &a.ResetTokenExpires, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
