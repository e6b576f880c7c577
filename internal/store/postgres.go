package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/yourusername/letter-box/internal/store/migrations"
)

// PostgresRepositoryManager は PostgreSQL を使った RepositoryManager 実装です。
type PostgresRepositoryManager struct {
	db            *sql.DB
	users         UserRepository
	sessions      SessionRepository
	loginAttempts LoginAttemptRepository
}

// NewPostgresRepositoryManager は DSN から接続を開き、マイグレーションを
// 適用した上でマネージャーを返します。
func NewPostgresRepositoryManager(ctx context.Context, dsn string) (*PostgresRepositoryManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	m := &PostgresRepositoryManager{
		db:            db,
		users:         NewPostgresUserRepository(db),
		sessions:      NewPostgresSessionRepository(db),
		loginAttempts: NewPostgresLoginAttemptRepository(db),
	}

	if err := m.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return m, nil
}

// RunMigrations は埋め込み済みのマイグレーションを適用します。
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, m.db, ".")
}

func (m *PostgresRepositoryManager) Conn() *sql.DB {
	return m.db
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}

func (m *PostgresRepositoryManager) Users() UserRepository {
	return m.users
}

func (m *PostgresRepositoryManager) Sessions() SessionRepository {
	return m.sessions
}

func (m *PostgresRepositoryManager) LoginAttempts() LoginAttemptRepository {
	return m.loginAttempts
}
