package auth

import (
	"log/slog"

	"github.com/yourusername/letter-box/internal/store"
)

// Manager は認証まわりのハンドラーとガードをまとめた構造体です。
// リポジトリは起動時に注入し、プロセス内に隠れた共有状態は持ちません。
type Manager struct {
	users    store.UserRepository
	attempts store.LoginAttemptRepository
	sessions *SessionService
	limiter  *LoginLimiter
	logger   *slog.Logger
}

// NewManager は認証マネージャーを作成します。
func NewManager(repos store.RepositoryManager, attempts store.LoginAttemptRepository, logger *slog.Logger) *Manager {
	return &Manager{
		users:    repos.Users(),
		attempts: attempts,
		sessions: NewSessionService(repos.Sessions()),
		limiter:  NewLoginLimiter(attempts),
		logger:   logger,
	}
}

// Sessions はセッションサービスを返します。
func (m *Manager) Sessions() *SessionService {
	return m.sessions
}

// Limiter はログインリミッターを返します。
func (m *Manager) Limiter() *LoginLimiter {
	return m.limiter
}
