package model

import "time"

// 资源类型
const (
	ResourceVideo     = "video"
	ResourceArticle   = "article"
	ResourceNCERTLink = "ncert_link"
	ResourcePractice  = "practice"
)

// ResourceRecommendation 是回答时附带推荐给学生的外部学习资源。
// 创建后只允许在显式反馈时累加 Effectiveness。
type ResourceRecommendation struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	StudentID     uint      `gorm:"index;not null" json:"studentId"`
	MessageID     *uint     `gorm:"index" json:"messageId,omitempty"`
	Subject       string    `gorm:"type:varchar(50)" json:"subject"`
	Topic         string    `gorm:"type:varchar(100)" json:"topic"`
	ResourceType  string    `gorm:"type:varchar(20);not null" json:"resourceType"`
	Title         string    `gorm:"type:varchar(200);not null" json:"title"`
	URL           string    `gorm:"type:varchar(1024);not null" json:"url"`
	Description   string    `gorm:"type:text" json:"description"`
	Effectiveness int64     `gorm:"not null;default:0" json:"effectiveness"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (ResourceRecommendation) TableName() string {
	return "resource_recommendations"
}
