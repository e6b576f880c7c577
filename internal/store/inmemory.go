package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

// InMemoryRepositoryManager はテストとローカル開発向けの RepositoryManager です。
// 全リポジトリをプロセス内のマップで実装します。
type InMemoryRepositoryManager struct {
	users         *InMemoryUserRepository
	sessions      *InMemorySessionRepository
	loginAttempts *InMemoryLoginAttemptRepository
}

// NewInMemoryRepositoryManager は空の状態のマネージャーを返します。
func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		users:         NewInMemoryUserRepository(),
		sessions:      NewInMemorySessionRepository(),
		loginAttempts: NewInMemoryLoginAttemptRepository(),
	}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }
func (m *InMemoryRepositoryManager) Conn() *sql.DB                           { return nil }
func (m *InMemoryRepositoryManager) Close() error                            { return nil }

func (m *InMemoryRepositoryManager) Users() UserRepository                  { return m.users }
func (m *InMemoryRepositoryManager) Sessions() SessionRepository            { return m.sessions }
func (m *InMemoryRepositoryManager) LoginAttempts() LoginAttemptRepository  { return m.loginAttempts }

// InMemoryUserRepository は UserRepository のマップ実装です。
type InMemoryUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*User
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{nextID: 1, users: make(map[int64]*User)}
}

func (r *InMemoryUserRepository) FindAll(ctx context.Context) ([]*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		copied := *u
		users = append(users, &copied)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *InMemoryUserRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *InMemoryUserRepository) FindByRole(ctx context.Context, role Role) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Role == role {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user.ID = r.nextID
	r.nextID++
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	copied := *user
	r.users[user.ID] = &copied
	return user, nil
}

func (r *InMemoryUserRepository) Update(ctx context.Context, id int64, name string, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		u.Name = name
		u.PasswordHash = passwordHash
	}
	return nil
}

func (r *InMemoryUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

// InMemorySessionRepository は SessionRepository のマップ実装です。
type InMemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{sessions: make(map[string]*Session)}
}

func (r *InMemorySessionRepository) Create(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[token] = &Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (r *InMemorySessionRepository) Find(ctx context.Context, token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *InMemorySessionRepository) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, token)
	return nil
}

func (r *InMemorySessionRepository) DeleteAllForUser(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, token)
		}
	}
	return nil
}

// InMemoryLoginAttemptRepository は LoginAttemptRepository のマップ実装です。
type InMemoryLoginAttemptRepository struct {
	mu       sync.Mutex
	attempts map[string]*LoginAttempt
}

func NewInMemoryLoginAttemptRepository() *InMemoryLoginAttemptRepository {
	return &InMemoryLoginAttemptRepository{attempts: make(map[string]*LoginAttempt)}
}

func (r *InMemoryLoginAttemptRepository) Find(ctx context.Context, ip string) (*LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[ip]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *InMemoryLoginAttemptRepository) Create(ctx context.Context, attempt *LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *attempt
	r.attempts[attempt.IPAddress] = &copied
	return nil
}

func (r *InMemoryLoginAttemptRepository) Update(ctx context.Context, attempt *LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *attempt
	r.attempts[attempt.IPAddress] = &copied
	return nil
}

func (r *InMemoryLoginAttemptRepository) Delete(ctx context.Context, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.attempts, ip)
	return nil
}

func (r *InMemoryLoginAttemptRepository) List(ctx context.Context) ([]*LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempts := make([]*LoginAttempt, 0, len(r.attempts))
	for _, a := range r.attempts {
		copied := *a
		attempts = append(attempts, &copied)
	}
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].LastAttemptAt.After(attempts[j].LastAttemptAt)
	})
	return attempts, nil
}
