package repository

import (
	"context"
	"time"

	"ncert-tutor-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryCacheRepository 定义了问答缓存的持久化操作。
type QueryCacheRepository interface {
	FindByKey(ctx context.Context, keyHash string) (*model.QueryCacheEntry, error)
	// Insert 按 key 唯一约束插入，key 已存在时不写入并返回 false。
	Insert(ctx context.Context, entry *model.QueryCacheEntry) (bool, error)
	BumpHit(ctx context.Context, id uint, at time.Time) error
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteStale 删除单个已过期条目，使随后的插入可以成功。
	DeleteStale(ctx context.Context, keyHash string, cutoff time.Time) error
	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type queryCacheRepository struct {
	db *gorm.DB
}

// NewQueryCacheRepository 创建一个新的 QueryCacheRepository 实例。
func NewQueryCacheRepository(db *gorm.DB) QueryCacheRepository {
	return &queryCacheRepository{db: db}
}

func (r *queryCacheRepository) FindByKey(ctx context.Context, keyHash string) (*model.QueryCacheEntry, error) {
	var e model.QueryCacheEntry
	if err := r.db.WithContext(ctx).Where("key_hash = ?", keyHash).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *queryCacheRepository) Insert(ctx context.Context, entry *model.QueryCacheEntry) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key_hash"}},
		DoNothing: true,
	}).Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// BumpHit 在数据库侧自增命中计数。
func (r *queryCacheRepository) BumpHit(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.QueryCacheEntry{}).Where("id = ?", id).Updates(map[string]interface{}{
		"hit_count":    gorm.Expr("hit_count + 1"),
		"last_used_at": at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *queryCacheRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.QueryCacheEntry{})
	return res.RowsAffected, res.Error
}

func (r *queryCacheRepository) DeleteStale(ctx context.Context, keyHash string, cutoff time.Time) error {
	return r.db.WithContext(ctx).Where("key_hash = ? AND created_at < ?", keyHash, cutoff).Delete(&model.QueryCacheEntry{}).Error
}

func (r *queryCacheRepository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("1 = 1").Delete(&model.QueryCacheEntry{})
	return res.RowsAffected, res.Error
}

func (r *queryCacheRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.QueryCacheEntry{}).Count(&n).Error
	return n, err
}
