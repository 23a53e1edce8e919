// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/service"
	"ncert-tutor-go/pkg/log"
	"ncert-tutor-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// 上下文中的键。
const (
	ContextStudent = "student"
	ContextClaims  = "claims"
)

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    http.StatusUnauthorized,
		"message": message,
		"error":   "Unauthorized",
	})
}

// bearerToken 从 Authorization 请求头中提取 "Bearer <token>"。
func bearerToken(c *gin.Context) (string, bool) {
	const bearerPrefix = "Bearer "
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	return tok, tok != ""
}

// AuthMiddleware 创建一个 Gin 中间件，用于学生 JWT 认证。
// 它会验证 access token，并将完整的 Student 对象存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, profiles service.ProfileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			abortUnauthorized(c, "请求未包含有效的授权头")
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil || claims.Role != token.RoleStudent {
			abortUnauthorized(c, "无效或已过期的 token")
			return
		}

		// 学生档案可能已被管理员删除
		student, err := profiles.Get(c.Request.Context(), claims.ID)
		if err != nil {
			log.Warnf("AuthMiddleware: 无法加载学生档案 %d: %v", claims.ID, err)
			abortUnauthorized(c, "学生档案不存在")
			return
		}

		c.Set(ContextStudent, student)
		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// OptionalAuth 在携带有效 token 时注入 claims，不携带时放行。
// 用于 /profile/setup：已登录学生更新自己的档案无需再次输入 PIN。
func OptionalAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c); ok {
			if claims, err := jwtManager.VerifyToken(tokenString); err == nil && claims.Role == token.RoleStudent {
				c.Set(ContextClaims, claims)
			}
		}
		c.Next()
	}
}

// CurrentStudent 返回 AuthMiddleware 注入的学生。
func CurrentStudent(c *gin.Context) (*model.Student, bool) {
	v, exists := c.Get(ContextStudent)
	if !exists {
		return nil, false
	}
	st, ok := v.(*model.Student)
	return st, ok
}

// CallerID 返回已认证学生的 id，未认证时为 0。
func CallerID(c *gin.Context) uint {
	v, exists := c.Get(ContextClaims)
	if !exists {
		return 0
	}
	if claims, ok := v.(*token.CustomClaims); ok {
		return claims.ID
	}
	return 0
}
