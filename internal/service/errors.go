// Package service 包含了应用的业务逻辑层。
package service

import "errors"

// 业务错误。handler 通过 errors.Is 将它们映射为错误类型与 HTTP 状态码。
var (
	ErrInvalidQuery         = errors.New("invalid query")
	ErrInvalidProfile       = errors.New("invalid profile")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrNotFound             = errors.New("not found")
	ErrConversationClosed   = errors.New("conversation is closed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrSynthesisTimeout     = errors.New("answer generation timed out")
	ErrSynthesisUnavailable = errors.New("answer generation unavailable")
	ErrTranscriptionFailed  = errors.New("could not understand the audio")
	ErrInvalidUpload        = errors.New("invalid upload")
)
