package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ncert-tutor-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// SessionStore 在 Redis 中保存学生当前会话指针与最近几轮对话。
// 会话超时由键的 TTL 表达，每次写入都会续期。
type SessionStore interface {
	CurrentSession(ctx context.Context, studentID uint) (string, error)
	SetCurrentSession(ctx context.Context, studentID uint, sessionID string) error
	ClearCurrentSession(ctx context.Context, studentID uint) error
	RecentTurns(ctx context.Context, sessionID string) ([]model.ChatTurn, error)
	AppendTurns(ctx context.Context, sessionID string, turns ...model.ChatTurn) error
}

type redisSessionStore struct {
	redisClient *redis.Client
	ttl         time.Duration
	maxTurns    int64
}

// NewSessionStore 创建 SessionStore。maxTurns 为保留的消息条数上限。
func NewSessionStore(redisClient *redis.Client, ttl time.Duration, maxTurns int) SessionStore {
	if maxTurns < 1 {
		maxTurns = 1
	}
	return &redisSessionStore{redisClient: redisClient, ttl: ttl, maxTurns: int64(maxTurns)}
}

func currentSessionKey(studentID uint) string {
	return fmt.Sprintf("student:%d:current_session", studentID)
}

func turnsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:turns", sessionID)
}

// CurrentSession 返回学生当前的会话 ID，没有或已过期时返回空串。
func (r *redisSessionStore) CurrentSession(ctx context.Context, studentID uint) (string, error) {
	id, err := r.redisClient.Get(ctx, currentSessionKey(studentID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get current session: %w", err)
	}
	return id, nil
}

func (r *redisSessionStore) SetCurrentSession(ctx context.Context, studentID uint, sessionID string) error {
	if err := r.redisClient.Set(ctx, currentSessionKey(studentID), sessionID, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set current session: %w", err)
	}
	return nil
}

func (r *redisSessionStore) ClearCurrentSession(ctx context.Context, studentID uint) error {
	return r.redisClient.Del(ctx, currentSessionKey(studentID)).Err()
}

// RecentTurns 从 Redis 获取最近的对话记录，按时间正序。
func (r *redisSessionStore) RecentTurns(ctx context.Context, sessionID string) ([]model.ChatTurn, error) {
	raw, err := r.redisClient.LRange(ctx, turnsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent turns: %w", err)
	}
	turns := make([]model.ChatTurn, 0, len(raw))
	for _, item := range raw {
		var t model.ChatTurn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// AppendTurns 追加对话并裁剪到上限，同时续期。
func (r *redisSessionStore) AppendTurns(ctx context.Context, sessionID string, turns ...model.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal turn: %w", err)
		}
		values = append(values, b)
	}
	key := turnsKey(sessionID)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, -r.maxTurns, -1)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append turns: %w", err)
	}
	return nil
}

// AttemptCounter 基于 Redis 的任务失败计数，24 小时后自动过期。
type AttemptCounter struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewAttemptCounter 创建失败计数器。
func NewAttemptCounter(redisClient *redis.Client) *AttemptCounter {
	return &AttemptCounter{redisClient: redisClient, ttl: 24 * time.Hour}
}

func (c *AttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.redisClient.Expire(ctx, key, c.ttl).Err()
	return n, nil
}

func (c *AttemptCounter) Reset(ctx context.Context, key string) error {
	return c.redisClient.Del(ctx, key).Err()
}
