package model

import "time"

// QueryCacheEntry 是按 (年级段, 规范化问题) 复用的答案。
// 除命中计数与最近使用时间外，条目写入后不再修改。
type QueryCacheEntry struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	KeyHash         string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"keyHash"`
	GradeBucket     string    `gorm:"type:varchar(8);index;not null" json:"gradeBucket"`
	NormalizedQuery string    `gorm:"type:text;not null" json:"normalizedQuery"`
	Answer          string    `gorm:"type:text;not null" json:"answer"`
	Sources         string    `gorm:"type:text" json:"sources"`
	Subject         string    `gorm:"type:varchar(50)" json:"subject"`
	ModelUsed       string    `gorm:"type:varchar(100)" json:"modelUsed"`
	Relevance       float64   `json:"relevance"`
	HitCount        int64     `gorm:"not null;default:1" json:"hitCount"`
	CreatedAt       time.Time `gorm:"index" json:"createdAt"`
	LastUsedAt      time.Time `json:"lastUsedAt"`
}

func (QueryCacheEntry) TableName() string {
	return "query_cache"
}
