package handler

import (
	"errors"
	"net/http"
	"strconv"

	"ncert-tutor-go/internal/service"
	"ncert-tutor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理所有管理员相关的 API 请求。
type AdminHandler struct {
	adminService     service.AdminService
	ingestionService service.IngestionService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService, ingestionService service.IngestionService) *AdminHandler {
	return &AdminHandler{adminService: adminService, ingestionService: ingestionService}
}

// AdminLoginRequest 定义了管理员登录的请求体。
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 处理管理员登录。
func (h *AdminHandler) Login(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, KindUnauthorized, err)
		return
	}
	tok, err := h.adminService.Login(req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"accessToken": tok})
}

// ListStudents 分页列出学生。
func (h *AdminHandler) ListStudents(c *gin.Context) {
	page, err := h.adminService.ListStudents(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "size", 20))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, page)
}

// ListTextbooks 分页列出已上传的教材。
func (h *AdminHandler) ListTextbooks(c *gin.Context) {
	page, err := h.adminService.ListTextbooks(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "size", 20))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, page)
}

// UploadTextbook 接收 multipart 教材上传：file、grade、subject。
func (h *AdminHandler) UploadTextbook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, service.MaxTextbookSize+1<<20)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, KindInvalidUpload, errors.New("缺少 file"))
		return
	}
	grade, err := strconv.Atoi(c.PostForm("grade"))
	if err != nil {
		badRequest(c, KindInvalidUpload, errors.New("grade 必须是整数"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	tb, created, err := h.ingestionService.Upload(c.Request.Context(), service.TextbookUpload{
		FileName: fileHeader.Filename,
		Grade:    grade,
		Subject:  c.PostForm("subject"),
	}, file)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	log.Infof("教材上传完成, 文件名: %s, MD5: %s, 新建: %v", tb.FileName, tb.FileMD5, created)
	success(c, status, tb)
}

// ClearCache 清空问答缓存。
func (h *AdminHandler) ClearCache(c *gin.Context) {
	n, err := h.adminService.ClearCache(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"deleted": n})
}
