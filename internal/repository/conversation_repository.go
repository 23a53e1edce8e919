package repository

import (
	"context"
	"time"

	"ncert-tutor-go/internal/model"

	"gorm.io/gorm"
)

// ConversationRepository 定义了会话与消息的持久化操作。
type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	FindBySessionID(ctx context.Context, sessionID string) (*model.Conversation, error)
	FindByID(ctx context.Context, id uint) (*model.Conversation, error)
	ListByStudent(ctx context.Context, studentID uint, limit int) ([]model.Conversation, error)
	Close(ctx context.Context, id uint, at time.Time) error
	CloseIdle(ctx context.Context, before time.Time) (int64, error)

	// AddExchange 在一个事务内写入一问一答两条消息，并刷新会话活跃时间。
	AddExchange(ctx context.Context, conversationID uint, user, assistant *model.Message) error
	FindMessage(ctx context.Context, id uint) (*model.Message, error)
	ListMessages(ctx context.Context, conversationID uint) ([]model.Message, error)
	CountUserMessagesSince(ctx context.Context, studentID uint, since time.Time) (int64, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	if conv.LastActivityAt.IsZero() {
		conv.LastActivityAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *conversationRepository) FindBySessionID(ctx context.Context, sessionID string) (*model.Conversation, error) {
	var c model.Conversation
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id uint) (*model.Conversation, error) {
	var c model.Conversation
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByStudent 按开始时间倒序返回学生的会话。
func (r *conversationRepository) ListByStudent(ctx context.Context, studentID uint, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	q := r.db.WithContext(ctx).Where("student_id = ?", studentID).Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&convs).Error
	return convs, err
}

// Close 结束会话，已结束的会话保持原结束时间。
func (r *conversationRepository) Close(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{"is_active": false, "ended_at": at}).Error
}

// CloseIdle 结束所有在 before 之前就不再活跃的会话，返回结束的数量。
func (r *conversationRepository) CloseIdle(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("is_active = ? AND last_activity_at < ?", true, before).
		Updates(map[string]interface{}{"is_active": false, "ended_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *conversationRepository) AddExchange(ctx context.Context, conversationID uint, user, assistant *model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user.ConversationID = conversationID
		assistant.ConversationID = conversationID
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		if err := tx.Create(assistant).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).Where("id = ?", conversationID).
			Update("last_activity_at", time.Now()).Error
	})
}

func (r *conversationRepository) FindMessage(ctx context.Context, id uint) (*model.Message, error) {
	var m model.Message
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages 按写入顺序返回会话的全部消息。
func (r *conversationRepository) ListMessages(ctx context.Context, conversationID uint) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("id").Find(&msgs).Error
	return msgs, err
}

// CountUserMessagesSince 统计学生自 since 起发出的提问数量。
func (r *conversationRepository) CountUserMessagesSince(ctx context.Context, studentID uint, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("conversations.student_id = ? AND messages.role = ? AND messages.created_at >= ?", studentID, model.RoleUser, since).
		Count(&n).Error
	return n, err
}
