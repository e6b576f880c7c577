package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/letter-box/internal/store"
)

// SessionTTL はセッションレコードの有効期間です。
// クッキー側の MaxAge（7日）より長く、意図的に二段構えにしています。
const SessionTTL = 30 * 24 * time.Hour

// セッショントークンの乱数長（バイト）。hex で64文字になります。
const sessionTokenBytes = 32

// ErrSessionExpired は期限切れのセッションを観測したことを示します。
// 観測時点でレコードは削除済みです（遅延削除）。
var ErrSessionExpired = errors.New("session expired")

// SessionService はセッションレコードの発行・検証・失効を担当します。
type SessionService struct {
	sessions store.SessionRepository
	now      func() time.Time
}

// NewSessionService はリポジトリに紐づいたサービスを返します。
func NewSessionService(sessions store.SessionRepository) *SessionService {
	return &SessionService{sessions: sessions, now: time.Now}
}

// Create は新しいセッションを発行して永続化します。
// トークンは暗号学的乱数由来で、エントロピー上の衝突は実質起きません。
// 万一衝突した場合は挿入エラーがそのまま致命的な内部エラーになります。
func (s *SessionService) Create(ctx context.Context, userID int64) (*store.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("token generation error: %w", err)
	}

	expiresAt := s.now().Add(SessionTTL)
	if err := s.sessions.Create(ctx, token, userID, expiresAt); err != nil {
		return nil, err
	}

	return &store.Session{Token: token, UserID: userID, ExpiresAt: expiresAt}, nil
}

// Validate はトークンでセッションを検索します。
// 存在しない場合は store.ErrNotFound、期限切れの場合はレコードを
// 削除した上で ErrSessionExpired を返します。
func (s *SessionService) Validate(ctx context.Context, token string) (*store.Session, error) {
	session, err := s.sessions.Find(ctx, token)
	if err != nil {
		return nil, err
	}

	if !session.ExpiresAt.After(s.now()) {
		// 期限切れは観測したタイミングで削除する。バックグラウンドの
		// 掃除処理は持たない。
		if err := s.sessions.Delete(ctx, token); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	return session, nil
}

// Revoke はトークンのセッションを失効させます。冪等です。
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// RevokeAllForUser は指定ユーザーの全セッションを失効させます。
// パスワード変更時に全端末で再ログインを強制するために使います。
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID int64) error {
	return s.sessions.DeleteAllForUser(ctx, userID)
}

func generateSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
