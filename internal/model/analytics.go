package model

import "time"

// LearningAnalytics 每完成一次提问或反馈追加一行，写入后不修改。
type LearningAnalytics struct {
	ID                       uint      `gorm:"primaryKey" json:"id"`
	StudentID                uint      `gorm:"index:idx_analytics_student_topic;not null" json:"studentId"`
	MessageID                *uint     `json:"messageId,omitempty"`
	Subject                  string    `gorm:"type:varchar(50);index:idx_analytics_student_topic" json:"subject"`
	Topic                    string    `gorm:"type:varchar(100);index:idx_analytics_student_topic" json:"topic"`
	QueriesOnTopic           int64     `gorm:"not null;default:1" json:"queriesOnTopic"`
	Understood               bool      `json:"understood"`
	NeededSimplerExplanation bool      `json:"neededSimplerExplanation"`
	AskedForResources        bool      `json:"askedForResources"`
	FollowUpQuestions        int64     `json:"followUpQuestions"`
	TimeSpentMinutes         float64   `json:"timeSpentMinutes"`
	FromCache                bool      `json:"fromCache"`
	Feedback                 bool      `gorm:"not null;default:false" json:"feedback"`
	CreatedAt                time.Time `gorm:"index" json:"createdAt"`
}

func (LearningAnalytics) TableName() string {
	return "learning_analytics"
}

// SubjectSummary 是按学科聚合的统计结果。
type SubjectSummary struct {
	Subject         string `json:"subject"`
	Records         int64  `json:"records"`
	UnderstoodCount int64  `json:"understoodCount"`
	SimplerCount    int64  `json:"neededSimplerCount"`
}
