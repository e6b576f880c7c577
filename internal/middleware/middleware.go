package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/letter-box/internal/api"
	"github.com/yourusername/letter-box/internal/store"
)

// AbortWithError はコード付きエラーをパイプラインに積んで後続を
// 打ち切ります。レスポンスへの変換は ErrorHandler が行います。
func AbortWithError(c *gin.Context, err *api.Error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandler は最外殻に置くエラー変換ステージです。
// 内側のステージが積んだコード付きエラーをワイヤ形式の封筒へ変換する
// 唯一の地点で、未知のエラーは詳細をログに残した上で INTERNAL_ERROR
// としてのみ露出します。
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := EnsureContext(c)

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		last := c.Errors.Last().Err

		var coded *api.Error
		if !errors.As(last, &coded) {
			coded = api.Internal(last)
		}

		attrs := []any{
			"request_id", rc.RequestID,
			"method", rc.Method,
			"path", rc.Path,
			"ip", rc.IP,
		}
		if rc.Session != nil {
			attrs = append(attrs, "user_id", rc.Session.UserID)
		}

		if api.Known(coded.Code) {
			if !coded.Logged {
				logger.Warn("request rejected", append(attrs, "code", coded.Code)...)
			}
			if !c.Writer.Written() {
				api.Fail(c, api.StatusOf(coded.Code), coded.Code, coded.Message, coded.Data)
			}
			return
		}

		// 想定外のエラー。診断情報は全てログに残し、クライアントには
		// 不透明なコードだけを返す。
		if !coded.Logged {
			detail := coded.Code
			if coded.Err != nil {
				detail = fmt.Sprintf("%s: %v", coded.Code, coded.Err)
			}
			logger.Error("request failed", append(attrs, "error", detail)...)
		}
		if !c.Writer.Written() {
			api.Fail(c, api.StatusOf(api.CodeInternalError), api.CodeInternalError, "", nil)
		}
	}
}

// RequestLogger はリクエスト一件ごとのアクセスログを出力します。
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := EnsureContext(c)

		c.Next()

		attrs := []any{
			"request_id", rc.RequestID,
			"method", rc.Method,
			"path", rc.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(rc.StartTime).Milliseconds(),
			"ip", rc.IP,
		}
		if rc.Session != nil {
			attrs = append(attrs, "user_id", rc.Session.UserID)
		}
		logger.Info("request", attrs...)
	}
}

// RequireRole は認証済みユーザーの役割を検査するガードです。
// 必ず RequireAuth より内側に置きます。先に実行された場合は設定ミス
// なので、クライアント向けエラーではなく内部エラーとして扱います。
func RequireRole(requiredRole store.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := EnsureContext(c)

		if rc.Session == nil {
			AbortWithError(c, api.Internal(
				errors.New("RequireRole must be mounted after RequireAuth")))
			return
		}

		if rc.Session.Role != requiredRole {
			AbortWithError(c, api.NewError(api.CodeForbidden))
			return
		}

		c.Next()
	}
}
