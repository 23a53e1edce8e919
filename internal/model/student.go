// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 学习风格
const (
	LearningStyleVisual   = "visual"
	LearningStyleAuditory = "auditory"
	LearningStyleText     = "text"
	LearningStyleMixed    = "mixed"
)

// Student 是学生档案，保存年级、当前难度层级以及滚动计数器。
type Student struct {
	ID                     uint   `gorm:"primaryKey" json:"id"`
	Handle                 string `gorm:"type:varchar(64);uniqueIndex;not null" json:"handle"`
	Name                   string `gorm:"type:varchar(100);not null" json:"name"`
	Age                    *int   `json:"age"`
	Grade                  int    `gorm:"not null" json:"grade"`
	DifficultyTier         string `gorm:"type:varchar(20);not null;default:standard" json:"difficultyTier"`
	PreferredLearningStyle string `gorm:"type:varchar(20);not null;default:mixed" json:"preferredLearningStyle"`
	PinHash                string `gorm:"type:varchar(100)" json:"-"`

	TotalQueries           int64 `gorm:"not null;default:0" json:"totalQueries"`
	SuccessfulInteractions int64 `gorm:"not null;default:0" json:"successfulInteractions"`
	StruggleCount          int64 `gorm:"not null;default:0" json:"struggleCount"`
	// 自上次层级变更以来的计数，用于升降级的滞回判断。
	SuccessesSinceTierChange int64      `gorm:"not null;default:0" json:"-"`
	QueriesSinceTierChange   int64      `gorm:"not null;default:0" json:"-"`
	TierChangedAt            *time.Time `json:"tierChangedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Student) TableName() string {
	return "students"
}

// HasPIN 表示学生是否设置了登录 PIN。
func (s *Student) HasPIN() bool {
	return s.PinHash != ""
}
