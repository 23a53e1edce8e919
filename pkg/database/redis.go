package database

import (
	"context"
	"fmt"
	"time"

	"ncert-tutor-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 保存会话指针与教材处理的重试计数。
var RDB *redis.Client

// InitRedis 初始化全局 Redis 客户端，连接失败时退出进程。
func InitRedis(addr, password string, db int) {
	client, err := OpenRedis(addr, password, db)
	if err != nil {
		log.Fatal("failed to connect to redis", err)
	}
	RDB = client
	log.Info("Redis client connected successfully")
}

// OpenRedis 创建客户端并在 5 秒内完成一次 PING。
func OpenRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
