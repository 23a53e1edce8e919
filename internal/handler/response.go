// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"ncert-tutor-go/internal/service"
	"ncert-tutor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 错误类型，出现在错误响应的 error 字段中。
const (
	KindInvalidQuery         = "InvalidQuery"
	KindInvalidProfile       = "InvalidProfile"
	KindInvalidUpload        = "InvalidUpload"
	KindProfileNotFound      = "ProfileNotFound"
	KindNotFound             = "NotFound"
	KindConversationClosed   = "ConversationClosed"
	KindUnauthorized         = "Unauthorized"
	KindSynthesisTimeout     = "SynthesisTimeout"
	KindSynthesisUnavailable = "SynthesisUnavailable"
	KindTranscriptionFailed  = "TranscriptionFailed"
	KindInternal             = "Internal"
)

var errorKinds = []struct {
	err    error
	status int
	kind   string
}{
	{service.ErrInvalidQuery, http.StatusBadRequest, KindInvalidQuery},
	{service.ErrInvalidProfile, http.StatusBadRequest, KindInvalidProfile},
	{service.ErrInvalidUpload, http.StatusBadRequest, KindInvalidUpload},
	{service.ErrTranscriptionFailed, http.StatusBadRequest, KindTranscriptionFailed},
	{service.ErrProfileNotFound, http.StatusNotFound, KindProfileNotFound},
	{service.ErrNotFound, http.StatusNotFound, KindNotFound},
	{service.ErrConversationClosed, http.StatusConflict, KindConversationClosed},
	{service.ErrUnauthorized, http.StatusUnauthorized, KindUnauthorized},
	{service.ErrSynthesisTimeout, http.StatusInternalServerError, KindSynthesisTimeout},
	{service.ErrSynthesisUnavailable, http.StatusInternalServerError, KindSynthesisUnavailable},
}

// classify 把业务错误映射为 HTTP 状态码与错误类型。
func classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.kind
		}
	}
	return http.StatusInternalServerError, KindInternal
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, kind, message, details string) {
	body := gin.H{
		"code":    status,
		"message": message,
		"error":   kind,
	}
	if details != "" {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, kind string, err error) {
	fail(c, http.StatusBadRequest, kind, "无效的请求参数", err.Error())
}

// respondError 输出错误响应。内部错误只记录日志，不向客户端暴露细节。
func respondError(c *gin.Context, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s 失败: %v", c.Request.Method, c.FullPath(), err)
	}
	switch kind {
	case KindInternal:
		fail(c, status, kind, "服务器内部错误", "")
	case KindSynthesisTimeout, KindSynthesisUnavailable:
		fail(c, status, kind, "暂时无法生成回答，请稍后重试", err.Error())
	default:
		fail(c, status, kind, err.Error(), "")
	}
}

// queryInt 读取整数查询参数，缺省或非法时返回 def。
func queryInt(c *gin.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil {
		return v
	}
	return def
}
