package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ncert-tutor-go/internal/model"

	"gorm.io/gorm"
)

// TextbookRepository 定义了教材及其文本块的持久化操作。
type TextbookRepository interface {
	Create(ctx context.Context, tb *model.Textbook) error
	FindByMD5(ctx context.Context, fileMD5 string) (*model.Textbook, error)
	FindWithPagination(ctx context.Context, offset, limit int) ([]model.Textbook, int64, error)
	UpdateStatus(ctx context.Context, fileMD5 string, status, chunkCount int) error
	// ReplaceChunks 删除旧的文本块后批量写入新的，重复处理同一本教材时保持幂等。
	ReplaceChunks(ctx context.Context, fileMD5 string, chunks []model.TextbookChunk) error
	ListChunks(ctx context.Context, fileMD5 string) ([]model.TextbookChunk, error)
	Delete(ctx context.Context, fileMD5 string) error
}

type textbookRepository struct {
	db *gorm.DB
}

// NewTextbookRepository 创建一个新的 TextbookRepository 实例。
func NewTextbookRepository(db *gorm.DB) TextbookRepository {
	return &textbookRepository{db: db}
}

func (r *textbookRepository) Create(ctx context.Context, tb *model.Textbook) error {
	return r.db.WithContext(ctx).Create(tb).Error
}

func (r *textbookRepository) FindByMD5(ctx context.Context, fileMD5 string) (*model.Textbook, error) {
	var tb model.Textbook
	if err := r.db.WithContext(ctx).Where("file_md5 = ?", fileMD5).First(&tb).Error; err != nil {
		return nil, err
	}
	return &tb, nil
}

func (r *textbookRepository) FindWithPagination(ctx context.Context, offset, limit int) ([]model.Textbook, int64, error) {
	var books []model.Textbook
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Textbook{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("grade, subject, file_name").Offset(offset).Limit(limit).Find(&books).Error; err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// UpdateStatus 更新处理状态，成功入库时记录文本块数量与入库时间。
func (r *textbookRepository) UpdateStatus(ctx context.Context, fileMD5 string, status, chunkCount int) error {
	updates := map[string]interface{}{"status": status}
	if status == model.TextbookIndexed {
		updates["chunk_count"] = chunkCount
		updates["indexed_at"] = time.Now()
	}
	res := r.db.WithContext(ctx).Model(&model.Textbook{}).Where("file_md5 = ?", fileMD5).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *textbookRepository) ReplaceChunks(ctx context.Context, fileMD5 string, chunks []model.TextbookChunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_md5 = ?", fileMD5).Delete(&model.TextbookChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(&chunks, 100).Error // 每100条记录一批
	})
}

func (r *textbookRepository) ListChunks(ctx context.Context, fileMD5 string) ([]model.TextbookChunk, error) {
	var chunks []model.TextbookChunk
	err := r.db.WithContext(ctx).Where("file_md5 = ?", fileMD5).Order("chunk_id asc").Find(&chunks).Error
	return chunks, err
}

// Delete 删除教材记录及其文本块。
func (r *textbookRepository) Delete(ctx context.Context, fileMD5 string) error {
	var errs []error
	if err := r.db.WithContext(ctx).Where("file_md5 = ?", fileMD5).Delete(&model.TextbookChunk{}).Error; err != nil {
		errs = append(errs, err)
	}
	if err := r.db.WithContext(ctx).Where("file_md5 = ?", fileMD5).Delete(&model.Textbook{}).Error; err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("删除教材记录部分失败（fileMD5=%s）: %w", fileMD5, errors.Join(errs...))
	}
	return nil
}
