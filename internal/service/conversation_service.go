package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/pkg/log"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationService 定义了会话业务逻辑的接口。
type ConversationService interface {
	// Resolve 返回本次提问所属的会话：指定 sessionID 时校验归属与状态，
	// 否则沿用 Redis 中未过期的当前会话，或新建一个。
	Resolve(ctx context.Context, studentID uint, sessionID string) (*model.Conversation, error)
	// RecordExchange 持久化一问一答，并把它们追加到近期对话缓存。
	RecordExchange(ctx context.Context, conv *model.Conversation, user, assistant *model.Message) error
	// History 返回当前会话在 Redis 中的近期对话。
	History(ctx context.Context, sessionID string) ([]model.ChatTurn, error)
	List(ctx context.Context, studentID uint, limit int) ([]model.Conversation, error)
	Messages(ctx context.Context, studentID uint, sessionID string) ([]model.Message, error)
	// Message 返回消息及其所属会话，不做归属校验。
	Message(ctx context.Context, messageID uint) (*model.Message, *model.Conversation, error)
	Close(ctx context.Context, studentID uint, sessionID string) error
	ExpireIdle(ctx context.Context) (int64, error)
}

type conversationService struct {
	repo     repository.ConversationRepository
	sessions repository.SessionStore
	timeout  time.Duration
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository, sessions repository.SessionStore, timeout time.Duration) ConversationService {
	return &conversationService{repo: repo, sessions: sessions, timeout: timeout}
}

func (s *conversationService) owned(ctx context.Context, studentID uint, sessionID string) (*model.Conversation, error) {
	conv, err := s.repo.FindBySessionID(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if conv.StudentID != studentID {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (s *conversationService) Resolve(ctx context.Context, studentID uint, sessionID string) (*model.Conversation, error) {
	if sessionID != "" {
		conv, err := s.owned(ctx, studentID, sessionID)
		if err != nil {
			return nil, err
		}
		if !conv.IsActive {
			return nil, ErrConversationClosed
		}
		return conv, nil
	}

	current, err := s.sessions.CurrentSession(ctx, studentID)
	if err != nil {
		// Redis 不可用时新开会话，不影响提问
		log.Warnf("[ConversationService] 读取当前会话失败: %v", err)
	}
	if current != "" {
		conv, err := s.repo.FindBySessionID(ctx, current)
		if err == nil && conv.IsActive && conv.StudentID == studentID {
			return conv, nil
		}
	}

	conv := &model.Conversation{
		StudentID:      studentID,
		SessionID:      uuid.NewString(),
		IsActive:       true,
		LastActivityAt: time.Now(),
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}
	if err := s.sessions.SetCurrentSession(ctx, studentID, conv.SessionID); err != nil {
		log.Warnf("[ConversationService] 保存当前会话失败: %v", err)
	}
	log.Infow("新会话", "student_id", studentID, "session_id", conv.SessionID)
	return conv, nil
}

func (s *conversationService) RecordExchange(ctx context.Context, conv *model.Conversation, user, assistant *model.Message) error {
	if err := s.repo.AddExchange(ctx, conv.ID, user, assistant); err != nil {
		return fmt.Errorf("保存对话消息失败: %w", err)
	}
	now := time.Now()
	conv.LastActivityAt = now

	// 近期对话缓存与会话续期只影响体验，失败时记录日志
	if err := s.sessions.AppendTurns(ctx, conv.SessionID,
		model.ChatTurn{Role: model.RoleUser, Content: user.Content, Timestamp: user.CreatedAt},
		model.ChatTurn{Role: model.RoleAssistant, Content: assistant.Content, Timestamp: now},
	); err != nil {
		log.Warnf("[ConversationService] 追加近期对话失败: %v", err)
	}
	if err := s.sessions.SetCurrentSession(ctx, conv.StudentID, conv.SessionID); err != nil {
		log.Warnf("[ConversationService] 会话续期失败: %v", err)
	}
	return nil
}

func (s *conversationService) History(ctx context.Context, sessionID string) ([]model.ChatTurn, error) {
	return s.sessions.RecentTurns(ctx, sessionID)
}

func (s *conversationService) List(ctx context.Context, studentID uint, limit int) ([]model.Conversation, error) {
	return s.repo.ListByStudent(ctx, studentID, limit)
}

func (s *conversationService) Messages(ctx context.Context, studentID uint, sessionID string) ([]model.Message, error) {
	conv, err := s.owned(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conv.ID)
}

func (s *conversationService) Message(ctx context.Context, messageID uint) (*model.Message, *model.Conversation, error) {
	msg, err := s.repo.FindMessage(ctx, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.repo.FindByID(ctx, msg.ConversationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

// Close 结束会话。关闭已结束的会话不报错。
func (s *conversationService) Close(ctx context.Context, studentID uint, sessionID string) error {
	conv, err := s.owned(ctx, studentID, sessionID)
	if err != nil {
		return err
	}
	if err := s.repo.Close(ctx, conv.ID, time.Now()); err != nil {
		return err
	}
	current, err := s.sessions.CurrentSession(ctx, studentID)
	if err == nil && current == sessionID {
		if err := s.sessions.ClearCurrentSession(ctx, studentID); err != nil {
			log.Warnf("[ConversationService] 清除当前会话失败: %v", err)
		}
	}
	return nil
}

// ExpireIdle 结束超过会话超时仍无活动的会话。
func (s *conversationService) ExpireIdle(ctx context.Context) (int64, error) {
	if s.timeout <= 0 {
		return 0, nil
	}
	return s.repo.CloseIdle(ctx, time.Now().Add(-s.timeout))
}
