// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"time"

	"ncert-tutor-go/internal/model"

	"gorm.io/gorm"
)

// ProgressDelta 是一次进度更新要累加到学生计数器上的增量。
type ProgressDelta struct {
	Queries   int64
	Successes int64
	Struggles int64
}

// TierDecider 在计数器累加之后、事务提交之前被调用，
// 返回新的层级以及是否发生变化。
type TierDecider func(s *model.Student) (tier string, changed bool)

// StudentRepository 接口定义了学生档案的持久化操作。
type StudentRepository interface {
	Create(ctx context.Context, student *model.Student) error
	FindByID(ctx context.Context, id uint) (*model.Student, error)
	FindByHandle(ctx context.Context, handle string) (*model.Student, error)
	UpdateProfile(ctx context.Context, student *model.Student) error
	FindWithPagination(ctx context.Context, offset, limit int) ([]model.Student, int64, error)
	// ApplyProgress 在一个事务内原子地累加计数器并持久化层级变化。
	ApplyProgress(ctx context.Context, id uint, delta ProgressDelta, decide TierDecider) (*model.Student, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository 创建一个新的 StudentRepository 实例。
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) Create(ctx context.Context, student *model.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}

func (r *studentRepository) FindByID(ctx context.Context, id uint) (*model.Student, error) {
	var s model.Student
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *studentRepository) FindByHandle(ctx context.Context, handle string) (*model.Student, error) {
	var s model.Student
	if err := r.db.WithContext(ctx).Where("handle = ?", handle).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateProfile 只写档案字段，计数器只能通过 ApplyProgress 修改。
func (r *studentRepository) UpdateProfile(ctx context.Context, student *model.Student) error {
	res := r.db.WithContext(ctx).Model(&model.Student{}).Where("id = ?", student.ID).Updates(map[string]interface{}{
		"name":                     student.Name,
		"age":                      student.Age,
		"grade":                    student.Grade,
		"difficulty_tier":          student.DifficultyTier,
		"preferred_learning_style": student.PreferredLearningStyle,
		"pin_hash":                 student.PinHash,
		"updated_at":               time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindWithPagination 分页检索学生，返回列表与总数。
func (r *studentRepository) FindWithPagination(ctx context.Context, offset, limit int) ([]model.Student, int64, error) {
	var students []model.Student
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Student{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("id").Offset(offset).Limit(limit).Find(&students).Error; err != nil {
		return nil, 0, err
	}
	return students, total, nil
}

func (r *studentRepository) ApplyProgress(ctx context.Context, id uint, delta ProgressDelta, decide TierDecider) (*model.Student, error) {
	var out model.Student
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 数据库侧原子累加，避免读-改-写丢失更新
		res := tx.Model(&model.Student{}).Where("id = ?", id).Updates(map[string]interface{}{
			"total_queries":               gorm.Expr("total_queries + ?", delta.Queries),
			"successful_interactions":     gorm.Expr("successful_interactions + ?", delta.Successes),
			"struggle_count":              gorm.Expr("struggle_count + ?", delta.Struggles),
			"successes_since_tier_change": gorm.Expr("successes_since_tier_change + ?", delta.Successes),
			"queries_since_tier_change":   gorm.Expr("queries_since_tier_change + ?", delta.Queries),
			"updated_at":                  time.Now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		// 2. 读取累加后的值。当前事务已持有行锁
		if err := tx.First(&out, id).Error; err != nil {
			return err
		}
		if decide == nil {
			return nil
		}

		// 3. 层级变化与计数器在同一事务内提交
		tier, changed := decide(&out)
		if !changed {
			return nil
		}
		now := time.Now()
		if err := tx.Model(&model.Student{}).Where("id = ?", id).Updates(map[string]interface{}{
			"difficulty_tier":             tier,
			"successes_since_tier_change": 0,
			"queries_since_tier_change":   0,
			"tier_changed_at":             now,
		}).Error; err != nil {
			return err
		}
		out.DifficultyTier = tier
		out.SuccessesSinceTierChange = 0
		out.QueriesSinceTierChange = 0
		out.TierChangedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
