package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresSessionRepository は SessionRepository の PostgreSQL 実装です。
type PostgresSessionRepository struct {
	db *sql.DB
}

// NewPostgresSessionRepository は接続に紐づいたリポジトリを返します。
func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Create(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	// session_token は主キーなので、万一トークンが衝突した場合は
	// 上書きではなく挿入エラーになる。
	query := `
		INSERT INTO auth_sessions (session_token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, token, userID, expiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) Find(ctx context.Context, token string) (*Session, error) {
	query := `
		SELECT session_token, user_id, expires_at, created_at
		FROM auth_sessions
		WHERE session_token = $1
	`
	s := &Session{}
	err := r.db.QueryRowContext(ctx, query, token).
		Scan(&s.Token, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresSessionRepository) Delete(ctx context.Context, token string) error {
	query := `
		DELETE FROM auth_sessions
		WHERE session_token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) DeleteAllForUser(ctx context.Context, userID int64) error {
	query := `
		DELETE FROM auth_sessions
		WHERE user_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
