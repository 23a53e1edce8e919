package handler

import (
	"ncert-tutor-go/internal/middleware"
	"ncert-tutor-go/internal/service"
	"ncert-tutor-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Handlers 汇总了路由需要的全部 handler。
type Handlers struct {
	Profile      *ProfileHandler
	Chat         *ChatHandler
	Conversation *ConversationHandler
	Resource     *ResourceHandler
	Admin        *AdminHandler
}

// RegisterRoutes 注册 /api/v1 下的 REST 路由以及 WebSocket 入口。
func RegisterRoutes(r *gin.Engine, h Handlers, jwtManager *token.JWTManager, profiles service.ProfileService) {
	studentAuth := middleware.AuthMiddleware(jwtManager, profiles)

	apiV1 := r.Group("/api/v1")
	{
		// 公开路由：建档时可选携带 token，用于更新自己的资料
		apiV1.POST("/profile/setup", middleware.OptionalAuth(jwtManager), h.Profile.Setup)
		apiV1.POST("/profile/login", h.Profile.Login)
		apiV1.POST("/auth/refresh", h.Profile.RefreshToken)

		// 需要学生身份的路由
		authed := apiV1.Group("")
		authed.Use(studentAuth)
		{
			authed.GET("/profile", h.Profile.GetProfile)
			authed.GET("/profile/progress", h.Profile.Progress)
			authed.GET("/profile/analytics", h.Profile.Analytics)
			authed.GET("/profile/analytics/summary", h.Profile.AnalyticsSummary)

			authed.POST("/chat", h.Chat.Chat)
			authed.POST("/voice", h.Chat.Voice)
			authed.POST("/feedback", h.Chat.Feedback)

			authed.GET("/conversations", h.Conversation.List)
			authed.GET("/conversations/:sessionId/messages", h.Conversation.Messages)
			authed.POST("/conversations/:sessionId/close", h.Conversation.Close)

			authed.GET("/resources", h.Resource.List)
			authed.POST("/resources/:id/helpful", h.Resource.MarkHelpful)
		}

		apiV1.POST("/admin/login", h.Admin.Login)
		admin := apiV1.Group("/admin")
		// 管理员路由只接受管理员 token
		admin.Use(middleware.AdminAuthMiddleware(jwtManager))
		{
			admin.GET("/students", h.Admin.ListStudents)
			admin.GET("/textbooks", h.Admin.ListTextbooks)
			admin.POST("/textbooks", h.Admin.UploadTextbook)
			admin.DELETE("/cache", h.Admin.ClearCache)
		}
	}

	// WebSocket 通过路径上的 token 鉴权
	r.GET("/chat/:token", h.Chat.Handle)
}
