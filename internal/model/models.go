package model

// AllModels 返回需要自动迁移的全部表模型。
func AllModels() []interface{} {
	return []interface{}{
		&Student{},
		&Conversation{},
		&Message{},
		&QueryCacheEntry{},
		&LearningAnalytics{},
		&ResourceRecommendation{},
		&Textbook{},
		&TextbookChunk{},
	}
}
