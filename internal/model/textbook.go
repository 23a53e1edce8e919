package model

import "time"

// 教材处理状态
const (
	TextbookPending = 0
	TextbookIndexed = 1
	TextbookFailed  = 2
)

// Textbook 记录一本上传的教材 PDF 及其向量化状态。
type Textbook struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileMD5    string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"fileMd5"`
	FileName   string     `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName string     `gorm:"type:varchar(255);not null" json:"objectName"`
	TotalSize  int64      `gorm:"not null" json:"totalSize"`
	Grade      int        `gorm:"not null" json:"grade"`
	Subject    string     `gorm:"type:varchar(50);not null" json:"subject"`
	Status     int        `gorm:"type:tinyint;not null;default:0" json:"status"`
	ChunkCount int        `gorm:"not null;default:0" json:"chunkCount"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	IndexedAt  *time.Time `gorm:"default:null" json:"indexedAt"`
}

func (Textbook) TableName() string {
	return "textbooks"
}

// TextbookChunk 是教材切分后的文本块，向量化前先落库。
type TextbookChunk struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	FileMD5      string `gorm:"type:varchar(32);not null;index"`
	ChunkID      int    `gorm:"not null"`
	Chapter      string `gorm:"type:varchar(50)"`
	TextContent  string `gorm:"type:text"`
	ModelVersion string `gorm:"type:varchar(100)"`
}

func (TextbookChunk) TableName() string {
	return "textbook_chunks"
}
