package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/letter-box/internal/api"
	"github.com/yourusername/letter-box/internal/middleware"
	"github.com/yourusername/letter-box/internal/store"
)

type loginRequest struct {
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Login は POST /api/auth/login のハンドラーです。
// ユーザー名は受け取らず、提出されたパスワードがどの保存ハッシュと
// 一致するかでアカウントを特定します。ユーザー数に対して O(n) ですが、
// このシステムのユーザーは設計上2人だけです。
func (m *Manager) Login(c *gin.Context) {
	rc := middleware.EnsureContext(c)
	ctx := c.Request.Context()

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" {
		api.Fail(c, http.StatusBadRequest, "PASSWORD_REQUIRED", "", nil)
		return
	}

	users, err := m.users.FindAll(ctx)
	if err != nil {
		middleware.AbortWithError(c, api.Internal(err))
		return
	}

	var matched *store.User
	for _, user := range users {
		if VerifyPassword(req.Password, user.PasswordHash) {
			matched = user
			break
		}
	}

	if matched == nil {
		if err := m.limiter.RecordFailure(ctx, rc.IP); err != nil {
			middleware.AbortWithError(c, api.Internal(err))
			return
		}
		result, err := m.limiter.CheckAllowed(ctx, rc.IP)
		if err != nil {
			middleware.AbortWithError(c, api.Internal(err))
			return
		}

		m.logger.Warn("authentication failed",
			"code", "INVALID_PASSWORD",
			"ip", rc.IP,
			"method", rc.Method,
			"path", rc.Path,
			"remaining_attempts", result.RemainingAttempts,
		)

		api.Fail(c, http.StatusUnauthorized, "INVALID_PASSWORD", "",
			gin.H{"remainingAttempts": result.RemainingAttempts})
		return
	}

	session, err := m.sessions.Create(ctx, matched.ID)
	if err != nil {
		middleware.AbortWithError(c, api.Internal(err))
		return
	}

	claim := Claim{UserID: matched.ID, Role: matched.Role, SessionToken: session.Token}
	if err := WriteClaim(c, claim); err != nil {
		middleware.AbortWithError(c, api.Internal(err))
		return
	}

	m.logger.Info("user logged in",
		"user_id", matched.ID,
		"role", matched.Role,
		"ip", rc.IP,
		"session_token_prefix", tokenPrefix(session.Token),
	)

	if err := m.limiter.RecordSuccess(ctx, rc.IP); err != nil {
		middleware.AbortWithError(c, api.Internal(err))
		return
	}

	api.OK(c, gin.H{"role": matched.Role})
}

// Logout は POST /api/auth/logout のハンドラーです。
// DB側のセッションレコードを失効させてからクッキーを消去します。
func (m *Manager) Logout(c *gin.Context) {
	rc := middleware.EnsureContext(c)
	identity := rc.Session

	m.logger.Info("user logged out",
		"user_id", identity.UserID,
		"role", identity.Role,
		"session_token_prefix", tokenPrefix(identity.SessionToken),
	)

	if err := m.sessions.Revoke(c.Request.Context(), identity.SessionToken); err != nil {
		middleware.AbortWithError(c, api.Internal(err))
		return
	}

	DestroyClaim(c)

	api.OK(c, nil)
}

// Me は GET /api/auth/me のハンドラーです。
func (m *Manager) Me(c *gin.Context) {
	rc := middleware.EnsureContext(c)
	api.OK(c, gin.H{"authenticated": true, "role": rc.Session.Role})
}

// ChangePassword は PUT /api/auth/change-password のハンドラーです。
// 更新後は当該ユーザーの全セッションを失効させ、全端末で再ログインを
// 強制します。
func (m *Manager) ChangePassword(c *gin.Context) {
	rc := middleware.EnsureContext(c)
	ctx := c.Request.Context()

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		api.Fail(c, http.StatusBadRequest, "PASSWORDS_REQUIRED", "", nil)
		return
	}

	if !ValidatePasswordStrength(req.NewPassword) {
		api.Fail(c, http.StatusBadRequest, "WEAK_PASSWORD", "", nil)
		return
	}

	user, err := m.users.FindByID(ctx, rc.Session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.AbortWithError(c, api.NewError(api.CodeNotFound))
			return
		}
		middleware.AbortWithError(c, api.Internal(err))
		return
	}

	if !VerifyPassword(req.CurrentPassword, user.PasswordHash) {
		api.Fail(c, http.StatusUnauthorized, "INVALID_CURRENT_PASSWORD", "", nil)
		return
	}

	newHash, err := HashPassword(req.NewPassword)
	if err != nil {
		middleware.AbortWithError(c, api.Internal(err))
		return
	}

	if err := m.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
		middleware.AbortWithError(c, api.Internal(err))
		return
	}

	m.logger.Info("password changed",
		"user_id", user.ID,
		"role", user.Role,
	)

	if err := m.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
		middleware.AbortWithError(c, api.Internal(err))
		return
	}

	api.OK(c, nil)
}

type loginAttemptView struct {
	IPAddress      string     `json:"ipAddress"`
	FailedAttempts int        `json:"failedAttempts"`
	LockedUntil    *time.Time `json:"lockedUntil"`
	LastAttemptAt  time.Time  `json:"lastAttemptAt"`
}

// ListLoginAttempts は GET /api/admin/login-attempts のハンドラーです。
// ロックアウト状態の確認用で、admin ロールのみがアクセスできます。
func (m *Manager) ListLoginAttempts(c *gin.Context) {
	attempts, err := m.attempts.List(c.Request.Context())
	if err != nil {
		middleware.AbortWithError(c, api.Internal(err))
		return
	}

	views := make([]loginAttemptView, 0, len(attempts))
	for _, a := range attempts {
		views = append(views, loginAttemptView{
			IPAddress:      a.IPAddress,
			FailedAttempts: a.FailedAttempts,
			LockedUntil:    a.LockedUntil,
			LastAttemptAt:  a.LastAttemptAt,
		})
	}
	api.OK(c, views)
}

// UnlockIP は DELETE /api/admin/login-attempts/:ip のハンドラーです。
// 失敗履歴を消去してロックを手動解除します。冪等です。
func (m *Manager) UnlockIP(c *gin.Context) {
	rc := middleware.EnsureContext(c)
	ip := c.Param("ip")
	if ip == "" {
		api.Fail(c, http.StatusBadRequest, api.CodeBadRequest, "ip is required", nil)
		return
	}

	if err := m.attempts.Delete(c.Request.Context(), ip); err != nil {
		middleware.AbortWithError(c, api.Internal(err))
		return
	}

	m.logger.Info("login attempts cleared",
		"target_ip", ip,
		"user_id", rc.Session.UserID,
	)

	api.OK(c, nil)
}
