// Package api はAPIレスポンスの共通封筒形式とエラーコードを提供します。
package api

import "github.com/gin-gonic/gin"

// Response は全エンドポイント共通のレスポンス封筒です。
// 成功時は data のみが埋まり、失敗時は error（シンボリックなコード）と
// 任意の message、任意の構造化 data が埋まります。
type Response struct {
	Success bool    `json:"success"`
	Data    any     `json:"data"`
	Error   *string `json:"error"`
	Message *string `json:"message"`
}

// OK は成功レスポンスを書き込みます。
func OK(c *gin.Context, data any) {
	c.JSON(200, Response{Success: true, Data: data})
}

// Fail は失敗レスポンスを書き込みます。message と data は省略可能です。
func Fail(c *gin.Context, status int, code string, message string, data any) {
	resp := Response{Success: false, Data: data}
	resp.Error = &code
	if message != "" {
		resp.Message = &message
	}
	c.JSON(status, resp)
}
