// Package store は認証コアが共有する永続データへのアクセスを提供します。
package store

import "time"

// Role はユーザーの役割を表す閉じた列挙型です。
type Role string

const (
	// RoleAdmin は全権限を持つユーザーです。
	RoleAdmin Role = "admin"
	// RoleViewer は閲覧のみ可能なユーザーです。
	RoleViewer Role = "viewer"
)

// Valid は既知の役割かどうかを返します。
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleViewer
}

// User は認証対象のユーザーレコードです。
// リクエストパイプラインからは読み取り専用で、作成・更新は
// cmd/seed とパスワード変更処理のみが行います。
type User struct {
	ID           int64
	Role         Role
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// Session は認証済みであることの永続的な証明です。
// トークンは暗号学的乱数由来の推測不能な値で、レコードの削除が
// そのまま失効を意味します。
type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LoginAttempt は送信元IPごとのログイン失敗カウンターです。
// LockedUntil が未来の時刻であれば、カウントに関係なくそのIPは
// ブロックされます。成功時にはレコードごと削除されます。
type LoginAttempt struct {
	IPAddress      string
	FailedAttempts int
	LockedUntil    *time.Time
	LastAttemptAt  time.Time
}
