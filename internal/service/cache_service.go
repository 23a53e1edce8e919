package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ncert-tutor-go/internal/adaptive"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/pkg/log"

	"gorm.io/gorm"
)

// CacheResult 是一次缓存查询的结果。Hit 为 false 时 Entry 为 nil。
type CacheResult struct {
	Hit   bool
	Entry *model.QueryCacheEntry
	// PriorHitCount 是本次命中之前的计数。
	PriorHitCount int64
}

// CacheService 定义了问答缓存的业务操作。
type CacheService interface {
	Lookup(ctx context.Context, bucket adaptive.GradeBucket, normalized string) (CacheResult, error)
	// Store 写入新答案，返回最终生效的条目。并发写入同一 key 时先插入者胜出。
	Store(ctx context.Context, entry *model.QueryCacheEntry) (*model.QueryCacheEntry, error)
	Purge(ctx context.Context) (int64, error)
	Clear(ctx context.Context) (int64, error)
}

type cacheService struct {
	repo repository.QueryCacheRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewCacheService 创建 CacheService。ttl 为 0 表示条目永不过期。
func NewCacheService(repo repository.QueryCacheRepository, ttl time.Duration) CacheService {
	return &cacheService{repo: repo, ttl: ttl, now: time.Now}
}

func (s *cacheService) expired(e *model.QueryCacheEntry) bool {
	return s.ttl > 0 && e.CreatedAt.Before(s.now().Add(-s.ttl))
}

func (s *cacheService) Lookup(ctx context.Context, bucket adaptive.GradeBucket, normalized string) (CacheResult, error) {
	key := adaptive.CacheKey(bucket, normalized)
	entry, err := s.repo.FindByKey(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CacheResult{}, nil
	}
	if err != nil {
		return CacheResult{}, fmt.Errorf("查询缓存失败: %w", err)
	}
	if s.expired(entry) {
		if err := s.repo.DeleteStale(ctx, key, s.now().Add(-s.ttl)); err != nil {
			log.Warnf("删除过期缓存失败: key=%s, err=%v", key, err)
		}
		return CacheResult{}, nil
	}

	now := s.now()
	if err := s.repo.BumpHit(ctx, entry.ID, now); err != nil {
		// 命中计数允许近似
		log.Warnf("更新缓存命中计数失败: key=%s, err=%v", key, err)
	}
	prior := entry.HitCount
	entry.HitCount++
	entry.LastUsedAt = now
	return CacheResult{Hit: true, Entry: entry, PriorHitCount: prior}, nil
}

func (s *cacheService) Store(ctx context.Context, entry *model.QueryCacheEntry) (*model.QueryCacheEntry, error) {
	bucket, ok := adaptive.ParseBucket(entry.GradeBucket)
	if !ok || entry.NormalizedQuery == "" || entry.Answer == "" {
		return nil, fmt.Errorf("%w: incomplete cache entry", ErrInvalidQuery)
	}
	now := s.now()
	entry.KeyHash = adaptive.CacheKey(bucket, entry.NormalizedQuery)
	entry.HitCount = 1
	entry.CreatedAt = now
	entry.LastUsedAt = now

	inserted, err := s.repo.Insert(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("写入缓存失败: %w", err)
	}
	if inserted {
		return entry, nil
	}

	// 并发写入者已经插入，以已有条目为准
	existing, err := s.repo.FindByKey(ctx, entry.KeyHash)
	if err != nil {
		return nil, fmt.Errorf("读取已有缓存失败: %w", err)
	}
	log.Infow("缓存写入冲突，使用已有条目", "key", entry.KeyHash, "id", existing.ID)
	return existing, nil
}

// Purge 删除超过 TTL 的条目。
func (s *cacheService) Purge(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	return s.repo.DeleteCreatedBefore(ctx, s.now().Add(-s.ttl))
}

func (s *cacheService) Clear(ctx context.Context) (int64, error) {
	return s.repo.DeleteAll(ctx)
}
