package handler

import (
	"net/http"

	"ncert-tutor-go/internal/middleware"
	"ncert-tutor-go/internal/service"
	"ncert-tutor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ProfileHandler 负责学生档案、登录与学习数据相关的 API。
type ProfileHandler struct {
	profiles  service.ProfileService
	progress  service.ProgressService
	analytics service.AnalyticsService
}

// NewProfileHandler 创建一个新的 ProfileHandler 实例。
func NewProfileHandler(profiles service.ProfileService, progress service.ProgressService, analytics service.AnalyticsService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, progress: progress, analytics: analytics}
}

// Setup 创建或更新学生档案。新建返回 201。
func (h *ProfileHandler) Setup(c *gin.Context) {
	var req service.SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, KindInvalidProfile, err)
		return
	}

	student, tokens, created, err := h.profiles.Setup(c.Request.Context(), middleware.CallerID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		log.Infof("学生 '%s' 档案创建成功", student.Handle)
	}
	success(c, status, gin.H{
		"profile":      student,
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
	})
}

// LoginRequest 定义了学生登录 API 的请求体结构。
type LoginRequest struct {
	Handle string `json:"handle" binding:"required"`
	PIN    string `json:"pin" binding:"required"`
}

// Login 处理学生登录请求。
func (h *ProfileHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, KindInvalidProfile, err)
		return
	}

	student, tokens, err := h.profiles.Login(c.Request.Context(), req.Handle, req.PIN)
	if err != nil {
		log.Warnf("Login: 学生 '%s' 认证失败: %v", req.Handle, err)
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{
		"profile":      student,
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
	})
}

// RefreshTokenRequest 定义了刷新 token 的请求体。
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshToken 使用 refresh token 换取新的一对令牌。
func (h *ProfileHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, KindUnauthorized, err)
		return
	}
	tokens, err := h.profiles.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, tokens)
}

// GetProfile 获取当前登录学生的档案。
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	student, ok := middleware.CurrentStudent(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}
	success(c, http.StatusOK, student)
}

// Progress 返回计数器、当前层级与吃力比例。
func (h *ProfileHandler) Progress(c *gin.Context) {
	student, _ := middleware.CurrentStudent(c)
	snap, err := h.progress.Snapshot(c.Request.Context(), student.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, snap)
}

// Analytics 返回最近的学习分析记录，?limit= 控制条数。
func (h *ProfileHandler) Analytics(c *gin.Context) {
	student, _ := middleware.CurrentStudent(c)
	records, err := h.analytics.List(c.Request.Context(), student.ID, queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, records)
}

// AnalyticsSummary 按学科汇总学习分析。
func (h *ProfileHandler) AnalyticsSummary(c *gin.Context) {
	student, _ := middleware.CurrentStudent(c)
	summary, err := h.analytics.Summary(c.Request.Context(), student.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, summary)
}
