package auth

import (
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/letter-box/internal/store"
)

const (
	// SessionCookieName はセッションクッキーの名前です。
	SessionCookieName = "lb_session"

	sessionKeyUserID = "user_id"
	sessionKeyRole   = "role"
	sessionKeyToken  = "session_token"
)

// cookieMaxAge はクッキー側の有効期間です。DB側のセッションレコード
// （30日）より意図的に短く、クッキーが先に切れてもレコードは有効な
// まま残ります。
var cookieMaxAge = 7 * 24 * time.Hour

// CookieMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func CookieMaxAgeSeconds() int {
	return int(cookieMaxAge.Seconds())
}

// Claim は封緘クッキーに格納するペイロードです。
// クッキーの署名・暗号化が正しくても内容は古くなり得るため、
// 信用する前に必ずセッションストアと突き合わせます。
type Claim struct {
	UserID       int64
	Role         store.Role
	SessionToken string
}

// ReadClaim はクッキーからクレームを読み取ります。
// クッキーが無い・改竄されている・一部の値しか無い、のいずれも
// 区別せず (Claim{}, false) を返します。一部の値だけ残っている場合は
// ベストエフォートで消去します。
func ReadClaim(c *gin.Context) (Claim, bool) {
	session := sessions.Default(c)

	userID, hasUserID := session.Get(sessionKeyUserID).(int64)
	role, hasRole := session.Get(sessionKeyRole).(string)
	token, hasToken := session.Get(sessionKeyToken).(string)

	if !hasUserID || !hasRole || !hasToken || userID == 0 || role == "" || token == "" {
		if hasUserID || hasRole || hasToken {
			DestroyClaim(c)
		}
		return Claim{}, false
	}

	return Claim{UserID: userID, Role: store.Role(role), SessionToken: token}, true
}

// WriteClaim はクレームを封緘してクッキーに書き込みます。
func WriteClaim(c *gin.Context, claim Claim) error {
	session := sessions.Default(c)
	session.Set(sessionKeyUserID, claim.UserID)
	session.Set(sessionKeyRole, string(claim.Role))
	session.Set(sessionKeyToken, claim.SessionToken)
	return session.Save()
}

// DestroyClaim はクッキーの内容を消去します。
func DestroyClaim(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
}
