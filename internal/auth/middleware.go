package auth

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/letter-box/internal/api"
	"github.com/yourusername/letter-box/internal/middleware"
	"github.com/yourusername/letter-box/internal/store"
)

// tokenPrefixLen はログに残すセッショントークンの先頭文字数です。
// トークン全体は決してログに出しません。
const tokenPrefixLen = 8

func tokenPrefix(token string) string {
	if len(token) <= tokenPrefixLen {
		return token
	}
	return token[:tokenPrefixLen]
}

// RequireAuth はセッションを検証するガードです。
// クッキーのクレームはあくまで参照であり、署名・復号が通っても
// 必ずセッションストアと突き合わせてから信用します。
// 拒否の各分岐は検出時点で理由タグ付きのログを一度だけ出し、
// エラーにはログ済みマーカーを付けてエラーハンドラーでの二重ログを
// 防ぎます。
func (m *Manager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := middleware.EnsureContext(c)

		claim, ok := ReadClaim(c)
		if !ok {
			m.logger.Warn("authentication failed",
				"code", api.CodeUnauthorized,
				"reason", "NO_SESSION",
				"ip", rc.IP,
				"method", rc.Method,
				"path", rc.Path,
			)
			middleware.AbortWithError(c, &api.Error{Code: api.CodeUnauthorized, Logged: true})
			return
		}

		session, err := m.sessions.Validate(c.Request.Context(), claim.SessionToken)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				DestroyClaim(c)
				m.logger.Warn("authentication failed",
					"code", api.CodeUnauthorized,
					"reason", "SESSION_REVOKED",
					"user_id", claim.UserID,
					"ip", rc.IP,
					"method", rc.Method,
					"path", rc.Path,
					"session_token_prefix", tokenPrefix(claim.SessionToken),
				)
				middleware.AbortWithError(c, &api.Error{Code: api.CodeUnauthorized, Logged: true})
			case errors.Is(err, ErrSessionExpired):
				// レコードは Validate が観測時に削除済み。
				DestroyClaim(c)
				m.logger.Warn("authentication failed",
					"code", api.CodeUnauthorized,
					"reason", "SESSION_EXPIRED",
					"user_id", claim.UserID,
					"ip", rc.IP,
					"method", rc.Method,
					"path", rc.Path,
					"session_token_prefix", tokenPrefix(claim.SessionToken),
				)
				middleware.AbortWithError(c, &api.Error{Code: api.CodeUnauthorized, Logged: true})
			default:
				middleware.AbortWithError(c, api.Internal(err))
			}
			return
		}

		// 防御の二段目。クレーム内の userId はDBレコードと一致しなければ
		// ならない。改竄や、アカウント単位のセッション一掃後に残った
		// 古いクレームをここで弾く。
		if session.UserID != claim.UserID {
			DestroyClaim(c)
			m.logger.Warn("authentication failed",
				"code", api.CodeUnauthorized,
				"reason", "SESSION_USER_MISMATCH",
				"user_id", claim.UserID,
				"ip", rc.IP,
				"method", rc.Method,
				"path", rc.Path,
				"session_token_prefix", tokenPrefix(claim.SessionToken),
			)
			middleware.AbortWithError(c, &api.Error{Code: api.CodeUnauthorized, Logged: true})
			return
		}

		rc.Session = &middleware.Identity{
			UserID:       claim.UserID,
			Role:         claim.Role,
			SessionToken: claim.SessionToken,
		}

		c.Next()
	}
}

// RateLimit はログインエンドポイント専用のガードです。
// ロック中のIPには失敗として数えずに 429 を直接返します
// （想定内の業務結果なのでエラーとしては伝播させません）。
func (m *Manager) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := middleware.EnsureContext(c)

		result, err := m.limiter.CheckAllowed(c.Request.Context(), rc.IP)
		if err != nil {
			middleware.AbortWithError(c, api.Internal(err))
			return
		}

		if !result.Allowed {
			api.Fail(c, api.StatusOf(api.CodeAccountLocked), api.CodeAccountLocked,
				"too many failed login attempts",
				gin.H{"lockedUntil": result.LockedUntil})
			c.Abort()
			return
		}

		c.Next()
	}
}
