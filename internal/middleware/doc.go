// Package middleware 提供 Gin 中間件。
//
// 目前只有 JWT 身分驗證，驗證成功後把用戶 ID 放入 gin.Context。
package middleware
