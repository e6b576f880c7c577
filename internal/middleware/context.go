// Package middleware はオニオン型のリクエストパイプラインを構成する
// 共通ミドルウェアとリクエストコンテキストを提供します。
//
// ルートに登録したハンドラーチェーンが合成済みのステージ列であり、
// 各ステージは c.Next() の前後で処理を行うか、c.Abort 系で後続を
// 打ち切ります。チェーンの終端が業務ハンドラーです。
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/letter-box/internal/store"
)

// contextKey は gin のキーバリューに RequestContext を置くためのキーです。
const contextKey = "letterbox.request_context"

// Identity は認証済みユーザーの情報です。RequireAuth が注入します。
type Identity struct {
	UserID       int64
	Role         store.Role
	SessionToken string
}

// RequestContext はリクエスト単位の可変コンテキストです。
// 当該リクエストの処理だけが所有し、リクエスト間で共有されません。
type RequestContext struct {
	// RequestID はログ突合用のリクエスト識別子です。
	RequestID string
	// IP はクライアントのIPアドレスです。
	IP string
	// Method はHTTPメソッドです。
	Method string
	// Path はリクエストパスです。
	Path string
	// StartTime はリクエストの処理開始時刻です。
	StartTime time.Time
	// Session は認証済みの場合のみ設定されます。
	Session *Identity
}

// EnsureContext はリクエストに RequestContext を遅延付与します。
// 既に存在する場合は未設定のフィールドだけを埋めるため、どのステージ
// から何度呼んでも安全です（入れ子合成のもとで冪等）。
func EnsureContext(c *gin.Context) *RequestContext {
	if v, ok := c.Get(contextKey); ok {
		if rc, ok := v.(*RequestContext); ok {
			fillContext(rc, c)
			return rc
		}
	}

	rc := &RequestContext{}
	fillContext(rc, c)
	c.Set(contextKey, rc)
	return rc
}

func fillContext(rc *RequestContext, c *gin.Context) {
	if rc.RequestID == "" {
		rc.RequestID = uuid.NewString()
	}
	if rc.Method == "" {
		rc.Method = c.Request.Method
	}
	if rc.Path == "" {
		rc.Path = c.Request.URL.Path
	}
	if rc.IP == "" {
		rc.IP = ClientIP(c.Request)
	}
	if rc.StartTime.IsZero() {
		rc.StartTime = time.Now()
	}
}

// FromContext は付与済みの RequestContext を返します。未付与なら nil です。
func FromContext(c *gin.Context) *RequestContext {
	if v, ok := c.Get(contextKey); ok {
		if rc, ok := v.(*RequestContext); ok {
			return rc
		}
	}
	return nil
}

// ClientIP はリバースプロキシ経由を前提にクライアントIPを抽出します。
// X-Forwarded-For の先頭、次に X-Real-IP、どちらも無ければ "unknown" です。
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.SplitN(forwarded, ",", 2)[0]
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return "unknown"
}
