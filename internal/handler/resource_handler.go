package handler

import (
	"errors"
	"net/http"
	"strconv"

	"ncert-tutor-go/internal/middleware"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ResourceHandler 处理学习资源推荐。
type ResourceHandler struct {
	resources service.ResourceService
}

// NewResourceHandler 创建一个新的 ResourceHandler。
func NewResourceHandler(resources service.ResourceService) *ResourceHandler {
	return &ResourceHandler{resources: resources}
}

// List 返回推荐给当前学生的资源，效果好的在前。
func (h *ResourceHandler) List(c *gin.Context) {
	student, _ := middleware.CurrentStudent(c)
	recs, err := h.resources.List(c.Request.Context(), student.ID, queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	if recs == nil {
		recs = []model.ResourceRecommendation{}
	}
	success(c, http.StatusOK, recs)
}

// MarkHelpful 将资源的 effectiveness 加一。
func (h *ResourceHandler) MarkHelpful(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, KindNotFound, errors.New("无效的资源 id"))
		return
	}
	student, _ := middleware.CurrentStudent(c)
	rec, err := h.resources.MarkHelpful(c.Request.Context(), student.ID, uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, rec)
}
