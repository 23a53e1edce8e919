package repository

import (
	"context"

	"ncert-tutor-go/internal/model"

	"gorm.io/gorm"
)

// AnalyticsRepository 只追加、不修改学习分析记录。
type AnalyticsRepository interface {
	Create(ctx context.Context, rec *model.LearningAnalytics) error
	CountTopic(ctx context.Context, studentID uint, subject, topic string) (int64, error)
	ListByStudent(ctx context.Context, studentID uint, limit int) ([]model.LearningAnalytics, error)
	SummaryBySubject(ctx context.Context, studentID uint) ([]model.SubjectSummary, error)
}

type analyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository 创建一个新的 AnalyticsRepository 实例。
func NewAnalyticsRepository(db *gorm.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) Create(ctx context.Context, rec *model.LearningAnalytics) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// CountTopic 返回学生在某个主题上已有的提问记录数，反馈记录不计入。
func (r *analyticsRepository) CountTopic(ctx context.Context, studentID uint, subject, topic string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.LearningAnalytics{}).
		Where("student_id = ? AND subject = ? AND topic = ? AND feedback = ?", studentID, subject, topic, false).
		Count(&n).Error
	return n, err
}

// ListByStudent 按时间倒序返回最近 limit 条记录。
func (r *analyticsRepository) ListByStudent(ctx context.Context, studentID uint, limit int) ([]model.LearningAnalytics, error) {
	var recs []model.LearningAnalytics
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).
		Order("created_at DESC, id DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

func (r *analyticsRepository) SummaryBySubject(ctx context.Context, studentID uint) ([]model.SubjectSummary, error) {
	var out []model.SubjectSummary
	err := r.db.WithContext(ctx).Model(&model.LearningAnalytics{}).
		Select("subject, COUNT(*) AS records, "+
			"SUM(CASE WHEN understood THEN 1 ELSE 0 END) AS understood_count, "+
			"SUM(CASE WHEN needed_simpler_explanation THEN 1 ELSE 0 END) AS simpler_count").
		Where("student_id = ?", studentID).
		Group("subject").
		Order("records DESC, subject").
		Scan(&out).Error
	return out, err
}
