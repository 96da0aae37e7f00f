package service

import "errors"

var (
	// ErrMalformedRequest 客戶端輸入缺少必要欄位
	ErrMalformedRequest = errors.New("malformed request")
	// ErrModerationBlocked 內容違反規範，不會儲存
	ErrModerationBlocked = errors.New("message blocked by moderation")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrUnknownEvent      = errors.New("unknown event")
)
