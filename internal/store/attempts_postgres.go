package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresLoginAttemptRepository は LoginAttemptRepository の PostgreSQL 実装です。
type PostgresLoginAttemptRepository struct {
	db *sql.DB
}

// NewPostgresLoginAttemptRepository は接続に紐づいたリポジトリを返します。
func NewPostgresLoginAttemptRepository(db *sql.DB) *PostgresLoginAttemptRepository {
	return &PostgresLoginAttemptRepository{db: db}
}

func (r *PostgresLoginAttemptRepository) Find(ctx context.Context, ip string) (*LoginAttempt, error) {
	query := `
		SELECT ip_address, failed_attempts, locked_until, last_attempt_at
		FROM auth_login_attempts
		WHERE ip_address = $1
	`
	a := &LoginAttempt{}
	err := r.db.QueryRowContext(ctx, query, ip).
		Scan(&a.IPAddress, &a.FailedAttempts, &a.LockedUntil, &a.LastAttemptAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresLoginAttemptRepository) Create(ctx context.Context, attempt *LoginAttempt) error {
	query := `
		INSERT INTO auth_login_attempts (ip_address, failed_attempts, locked_until, last_attempt_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query,
		attempt.IPAddress, attempt.FailedAttempts, attempt.LockedUntil, attempt.LastAttemptAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresLoginAttemptRepository) Update(ctx context.Context, attempt *LoginAttempt) error {
	query := `
		UPDATE auth_login_attempts
		SET failed_attempts = $2, locked_until = $3, last_attempt_at = $4
		WHERE ip_address = $1
	`
	_, err := r.db.ExecContext(ctx, query,
		attempt.IPAddress, attempt.FailedAttempts, attempt.LockedUntil, attempt.LastAttemptAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresLoginAttemptRepository) Delete(ctx context.Context, ip string) error {
	query := `
		DELETE FROM auth_login_attempts
		WHERE ip_address = $1
	`
	if _, err := r.db.ExecContext(ctx, query, ip); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresLoginAttemptRepository) List(ctx context.Context) ([]*LoginAttempt, error) {
	query := `
		SELECT ip_address, failed_attempts, locked_until, last_attempt_at
		FROM auth_login_attempts
		ORDER BY last_attempt_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var attempts []*LoginAttempt
	for rows.Next() {
		a := &LoginAttempt{}
		if err := rows.Scan(&a.IPAddress, &a.FailedAttempts, &a.LockedUntil, &a.LastAttemptAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}
