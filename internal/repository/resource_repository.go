package repository

import (
	"context"

	"ncert-tutor-go/internal/model"

	"gorm.io/gorm"
)

// ResourceRepository 定义了学习资源推荐的持久化操作。
type ResourceRepository interface {
	CreateBatch(ctx context.Context, recs []model.ResourceRecommendation) error
	ListByStudent(ctx context.Context, studentID uint, limit int) ([]model.ResourceRecommendation, error)
	// IncrementEffectiveness 仅对属于该学生的推荐生效。
	IncrementEffectiveness(ctx context.Context, id, studentID uint) (*model.ResourceRecommendation, error)
}

type resourceRepository struct {
	db *gorm.DB
}

// NewResourceRepository 创建一个新的 ResourceRepository 实例。
func NewResourceRepository(db *gorm.DB) ResourceRepository {
	return &resourceRepository{db: db}
}

func (r *resourceRepository) CreateBatch(ctx context.Context, recs []model.ResourceRecommendation) error {
	if len(recs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&recs).Error
}

func (r *resourceRepository) ListByStudent(ctx context.Context, studentID uint, limit int) ([]model.ResourceRecommendation, error) {
	var recs []model.ResourceRecommendation
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).
		Order("effectiveness DESC, created_at DESC, id DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

func (r *resourceRepository) IncrementEffectiveness(ctx context.Context, id, studentID uint) (*model.ResourceRecommendation, error) {
	var rec model.ResourceRecommendation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ResourceRecommendation{}).
			Where("id = ? AND student_id = ?", id, studentID).
			Update("effectiveness", gorm.Expr("effectiveness + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&rec, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
