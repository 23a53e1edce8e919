package middleware

import (
	"net/http"

	"ncert-tutor-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware 检查请求是否携带管理员 token。
func AdminAuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			abortUnauthorized(c, "请求未包含有效的授权头")
			return
		}
		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			abortUnauthorized(c, "无效或已过期的 token")
			return
		}
		if claims.Role != token.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    http.StatusForbidden,
				"message": "权限不足，需要管理员权限",
				"error":   "Forbidden",
			})
			return
		}
		c.Set(ContextClaims, claims)
		c.Next()
	}
}
