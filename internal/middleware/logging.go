// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"time"

	"ncert-tutor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 日志中请求体与响应体的最大长度。
const maxLoggedBody = 4096

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 将响应写入 gin.ResponseWriter，并在上限内复制一份到 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		w.body.Write(b[:min(room, len(b))])
	}
	return w.ResponseWriter.Write(b)
}

var secretField = regexp.MustCompile(`"(pin|password|accessToken|refreshToken|token)"\s*:\s*"[^"]*"`)

func elide(b []byte) string {
	if len(b) > maxLoggedBody {
		b = append(b[:maxLoggedBody:maxLoggedBody], "...(truncated)"...)
	}
	return secretField.ReplaceAllString(string(b), `"$1":"***"`)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// multipart 请求（音频、教材 PDF）的请求体不读取也不记录。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestBody := "<omitted>"
		if c.Request.Body != nil && !strings.HasPrefix(c.ContentType(), "multipart/") {
			raw, _ := io.ReadAll(c.Request.Body)
			// 将读取的请求体重新设置回 c.Request.Body，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			requestBody = elide(raw)
		}

		blw := &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", requestBody,
			"responseBody", elide(blw.body.Bytes()),
		)
	}
}
