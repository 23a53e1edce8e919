// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"math"
	"time"

	"ncert-tutor-go/internal/config"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/pkg/hash"
	"ncert-tutor-go/pkg/log"
	"ncert-tutor-go/pkg/token"
)

// PageResponse 定义了分页列表 API 的响应结构。
type PageResponse[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Size          int   `json:"size"`
	Number        int   `json:"number"`
}

// StudentSummary 定义了学生列表项的结构。
type StudentSummary struct {
	StudentID      uint      `json:"studentId"`
	Handle         string    `json:"handle"`
	Name           string    `json:"name"`
	Grade          int       `json:"grade"`
	DifficultyTier string    `json:"difficultyTier"`
	TotalQueries   int64     `json:"totalQueries"`
	StruggleCount  int64     `json:"struggleCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	Login(username, password string) (string, error)
	ListStudents(ctx context.Context, page, size int) (*PageResponse[StudentSummary], error)
	ListTextbooks(ctx context.Context, page, size int) (*PageResponse[model.Textbook], error)
	ClearCache(ctx context.Context) (int64, error)
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	cfg          config.AdminConfig
	studentRepo  repository.StudentRepository
	textbookRepo repository.TextbookRepository
	cache        CacheService
	jwtManager   *token.JWTManager
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(cfg config.AdminConfig, studentRepo repository.StudentRepository, textbookRepo repository.TextbookRepository, cache CacheService, jwtManager *token.JWTManager) AdminService {
	return &adminService{
		cfg:          cfg,
		studentRepo:  studentRepo,
		textbookRepo: textbookRepo,
		cache:        cache,
		jwtManager:   jwtManager,
	}
}

// Login 校验配置中的管理员账号，成功后签发 ADMIN 角色的 access token。
func (s *adminService) Login(username, password string) (string, error) {
	if s.cfg.Username == "" || s.cfg.PasswordHash == "" {
		return "", ErrUnauthorized
	}
	if username != s.cfg.Username || !hash.CheckPasswordHash(password, s.cfg.PasswordHash) {
		log.Warnf("[AdminService] 管理员登录失败, username: %s", username)
		return "", ErrUnauthorized
	}
	return s.jwtManager.GenerateToken(0, username, token.RoleAdmin)
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return page, size
}

func totalPages(total int64, size int) int {
	return int(math.Ceil(float64(total) / float64(size)))
}

// ListStudents 以分页的形式返回学生列表
func (s *adminService) ListStudents(ctx context.Context, page, size int) (*PageResponse[StudentSummary], error) {
	page, size = normalizePage(page, size)
	students, total, err := s.studentRepo.FindWithPagination(ctx, (page-1)*size, size)
	if err != nil {
		return nil, err
	}

	content := make([]StudentSummary, 0, len(students))
	for _, st := range students {
		content = append(content, StudentSummary{
			StudentID:      st.ID,
			Handle:         st.Handle,
			Name:           st.Name,
			Grade:          st.Grade,
			DifficultyTier: st.DifficultyTier,
			TotalQueries:   st.TotalQueries,
			StruggleCount:  st.StruggleCount,
			CreatedAt:      st.CreatedAt,
		})
	}

	return &PageResponse[StudentSummary]{
		Content:       content,
		TotalElements: total,
		TotalPages:    totalPages(total, size),
		Size:          size,
		Number:        page,
	}, nil
}

// ListTextbooks 以分页的形式返回已上传教材及其入库状态
func (s *adminService) ListTextbooks(ctx context.Context, page, size int) (*PageResponse[model.Textbook], error) {
	page, size = normalizePage(page, size)
	books, total, err := s.textbookRepo.FindWithPagination(ctx, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	if books == nil {
		books = []model.Textbook{}
	}
	return &PageResponse[model.Textbook]{
		Content:       books,
		TotalElements: total,
		TotalPages:    totalPages(total, size),
		Size:          size,
		Number:        page,
	}, nil
}

// ClearCache 清空问答缓存，返回删除的条目数。
func (s *adminService) ClearCache(ctx context.Context) (int64, error) {
	n, err := s.cache.Clear(ctx)
	if err != nil {
		return 0, err
	}
	log.Infof("[AdminService] 问答缓存已清空, 删除 %d 条", n)
	return n, nil
}
