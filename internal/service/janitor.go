package service

import (
	"context"
	"time"

	"ncert-tutor-go/pkg/log"
)

// Janitor 周期性清理过期缓存并关闭空闲会话。
type Janitor struct {
	cache         CacheService
	conversations ConversationService
	interval      time.Duration
}

// NewJanitor 创建 Janitor，interval <= 0 时使用 30 分钟。
func NewJanitor(cache CacheService, conversations ConversationService, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Janitor{cache: cache, conversations: conversations, interval: interval}
}

// Run 阻塞直到 ctx 结束。
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep 执行一次清理。
func (j *Janitor) Sweep(ctx context.Context) {
	if n, err := j.cache.Purge(ctx); err != nil {
		log.Error("[Janitor] 清理过期缓存失败", err)
	} else if n > 0 {
		log.Infof("[Janitor] 清理过期缓存 %d 条", n)
	}
	if n, err := j.conversations.ExpireIdle(ctx); err != nil {
		log.Error("[Janitor] 关闭空闲会话失败", err)
	} else if n > 0 {
		log.Infof("[Janitor] 关闭空闲会话 %d 个", n)
	}
}
