package api

import "net/http"

// パイプライン内部で伝播するシンボリックなエラーコード。
// 変換はエラーハンドラーミドルウェアの一箇所でのみ行います。
const (
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeBadRequest    = "BAD_REQUEST"
	CodeAccountLocked = "ACCOUNT_LOCKED"
	CodeInternalError = "INTERNAL_ERROR"
)

// Error はコード付きの制御フローエラーです。例外の代わりに
// パイプラインを明示的に遡って運ばれ、最外殻のエラーハンドラーが
// 一度だけワイヤ形式へ変換します。
type Error struct {
	// Code はシンボリックなエラーコードです。未知のコードは
	// INTERNAL_ERROR として扱われます。
	Code string
	// Message はクライアント向けの補足メッセージです（任意）。
	Message string
	// Data はレスポンスに載せる構造化データです（任意）。
	Data any
	// Logged は検出時点でログ済みであることを示すマーカーです。
	// エラーハンドラーでの二重ログを防ぎます。
	Logged bool
	// Err は内部原因です。クライアントには決して露出しません。
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError はコード付きエラーを作成します。
func NewError(code string) *Error {
	return &Error{Code: code}
}

// Internal は内部要因のエラーをラップします。
func Internal(err error) *Error {
	return &Error{Code: CodeInternalError, Err: err}
}

// StatusOf はエラーコードに対応するHTTPステータスを返します。
// 未知のコードは500です。
func StatusOf(code string) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeAccountLocked:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Known は最外殻で想定済みとして扱うコードかどうかを返します。
func Known(code string) bool {
	switch code {
	case CodeUnauthorized, CodeForbidden, CodeNotFound, CodeBadRequest, CodeAccountLocked:
		return true
	default:
		return false
	}
}
