package service

import (
	"context"

	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/pkg/log"
)

const (
	defaultAnalyticsLimit = 20
	maxAnalyticsLimit     = 100
)

// AnalyticsService 记录与查询学习分析数据。
type AnalyticsService interface {
	// Record 尽力写入，失败只记录日志，不影响调用方。
	Record(ctx context.Context, rec *model.LearningAnalytics)
	List(ctx context.Context, studentID uint, limit int) ([]model.LearningAnalytics, error)
	Summary(ctx context.Context, studentID uint) ([]model.SubjectSummary, error)
}

type analyticsService struct {
	repo repository.AnalyticsRepository
}

// NewAnalyticsService 创建 AnalyticsService。
func NewAnalyticsService(repo repository.AnalyticsRepository) AnalyticsService {
	return &analyticsService{repo: repo}
}

func (s *analyticsService) Record(ctx context.Context, rec *model.LearningAnalytics) {
	n, err := s.repo.CountTopic(ctx, rec.StudentID, rec.Subject, rec.Topic)
	if err != nil {
		log.Warnf("[AnalyticsService] 统计主题次数失败: %v", err)
	}
	// 反馈记录沿用当前提问次数
	rec.QueriesOnTopic = n
	if !rec.Feedback {
		rec.QueriesOnTopic++
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		log.Warnw("[AnalyticsService] 写入学习分析失败", "student_id", rec.StudentID, "error", err)
	}
}

func (s *analyticsService) List(ctx context.Context, studentID uint, limit int) ([]model.LearningAnalytics, error) {
	if limit <= 0 {
		limit = defaultAnalyticsLimit
	}
	if limit > maxAnalyticsLimit {
		limit = maxAnalyticsLimit
	}
	return s.repo.ListByStudent(ctx, studentID, limit)
}

func (s *analyticsService) Summary(ctx context.Context, studentID uint) ([]model.SubjectSummary, error) {
	return s.repo.SummaryBySubject(ctx, studentID)
}
