package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresUserRepository は UserRepository の PostgreSQL 実装です。
type PostgresUserRepository struct {
	db *sql.DB
}

// NewPostgresUserRepository は接続に紐づいたリポジトリを返します。
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) FindAll(ctx context.Context) ([]*User, error) {
	query := `
		SELECT id, role, name, password_hash, created_at
		FROM auth_users
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Role, &u.Name, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return users, nil
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, role, name, password_hash, created_at
		FROM auth_users
		WHERE id = $1
	`
	u := &User{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&u.ID, &u.Role, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) FindByRole(ctx context.Context, role Role) (*User, error) {
	query := `
		SELECT id, role, name, password_hash, created_at
		FROM auth_users
		WHERE role = $1
	`
	u := &User{}
	err := r.db.QueryRowContext(ctx, query, role).
		Scan(&u.ID, &u.Role, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *User) (*User, error) {
	query := `
		INSERT INTO auth_users (role, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, user.Role, user.Name, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepository) Update(ctx context.Context, id int64, name string, passwordHash string) error {
	query := `
		UPDATE auth_users
		SET name = $2, password_hash = $3
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, name, passwordHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	query := `
		UPDATE auth_users
		SET password_hash = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
