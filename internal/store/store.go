package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound は対象レコードが存在しないことを示す共通エラーです。
var ErrNotFound = errors.New("not found")

// UserRepository はユーザーレコードへのアクセスを定義します。
// 認証コアからは読み取りが中心で、書き込みはパスワード変更と
// 初期プロビジョニングに限られます。
type UserRepository interface {
	// FindAll は全ユーザーを返します。ログイン時の照合に使用します。
	FindAll(ctx context.Context) ([]*User, error)

	// FindByID は ID でユーザーを検索します。存在しない場合は ErrNotFound を返します。
	FindByID(ctx context.Context, id int64) (*User, error)

	// FindByRole は役割でユーザーを検索します。存在しない場合は ErrNotFound を返します。
	FindByRole(ctx context.Context, role Role) (*User, error)

	// Create は新しいユーザーを作成し、採番された ID を設定して返します。
	Create(ctx context.Context, user *User) (*User, error)

	// Update は表示名とパスワードハッシュを更新します。
	Update(ctx context.Context, id int64, name string, passwordHash string) error

	// UpdatePassword はパスワードハッシュのみを更新します。
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// SessionRepository はセッションレコードへのアクセスを定義します。
type SessionRepository interface {
	// Create はセッションレコードを挿入します。トークンは主キーであり、
	// 衝突した場合はエラーになります（上書きはしません）。
	Create(ctx context.Context, token string, userID int64, expiresAt time.Time) error

	// Find はトークンでセッションを検索します。存在しない場合は ErrNotFound を返します。
	// 有効期限の判定は呼び出し側の責務です。
	Find(ctx context.Context, token string) (*Session, error)

	// Delete はトークンでセッションを削除します。存在しなくてもエラーにはなりません。
	Delete(ctx context.Context, token string) error

	// DeleteAllForUser は指定ユーザーの全セッションを削除します。
	DeleteAllForUser(ctx context.Context, userID int64) error
}

// LoginAttemptRepository はIPごとのログイン失敗レコードへのアクセスを定義します。
// ポリシー判定（回数上限やロック時間）は呼び出し側が行い、ここでは
// レコードの出し入れのみを担当します。
type LoginAttemptRepository interface {
	// Find はIPアドレスでレコードを検索します。存在しない場合は ErrNotFound を返します。
	Find(ctx context.Context, ip string) (*LoginAttempt, error)

	// Create は新しいレコードを作成します。
	Create(ctx context.Context, attempt *LoginAttempt) error

	// Update は既存レコードの回数・ロック期限・最終試行時刻を上書きします。
	Update(ctx context.Context, attempt *LoginAttempt) error

	// Delete はIPアドレスでレコードを削除します。存在しなくてもエラーにはなりません。
	Delete(ctx context.Context, ip string) error

	// List は全レコードを返します。運用向けの管理APIで使用します。
	List(ctx context.Context) ([]*LoginAttempt, error)
}

// RepositoryManager は各リポジトリと接続ライフサイクルをまとめます。
// プロセス起動時に生成し、終了時に Close します。隠れたグローバル変数は
// 持ちません。
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Conn() *sql.DB
	Close() error
	Users() UserRepository
	Sessions() SessionRepository
	LoginAttempts() LoginAttemptRepository
}
