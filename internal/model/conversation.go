package model

import "time"

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn 代表缓存在 Redis 中的单条近期对话，用于拼接 LLM 上下文。
type ChatTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation 是一个学生的学习会话。
type Conversation struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	StudentID      uint       `gorm:"index;not null" json:"studentId"`
	SessionID      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"sessionId"`
	StartedAt      time.Time  `gorm:"autoCreateTime" json:"startedAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	IsActive       bool       `gorm:"not null;default:true" json:"isActive"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	Messages       []Message  `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message 是会话中的一轮发言，创建后不可修改。
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"index;not null" json:"conversationId"`
	Role           string    `gorm:"type:varchar(10);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Subject        string    `gorm:"type:varchar(50)" json:"subject,omitempty"`
	Topic          string    `gorm:"type:varchar(100)" json:"topic,omitempty"`
	Sources        string    `gorm:"type:text" json:"sources,omitempty"`
	ModelUsed      string    `gorm:"type:varchar(100)" json:"modelUsed,omitempty"`
	ResponseTimeMS int64     `json:"responseTimeMs,omitempty"`
	FromCache      bool      `gorm:"not null;default:false" json:"fromCache"`
	AudioObject    string    `gorm:"type:varchar(255)" json:"audioObject,omitempty"`
	DiagramObject  string    `gorm:"type:varchar(255)" json:"diagramObject,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// HasAudio 表示该消息是否附带语音。
func (m *Message) HasAudio() bool { return m.AudioObject != "" }

// HasDiagram 表示该消息是否附带图示。
func (m *Message) HasDiagram() bool { return m.DiagramObject != "" }
