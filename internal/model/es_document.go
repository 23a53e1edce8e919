package model

// EsDocument 定义了存储在 Elasticsearch 中的教材段落。
type EsDocument struct {
	VectorID     string    `json:"vector_id"` // fileMd5 + chunkId
	FileMD5      string    `json:"file_md5"`
	FileName     string    `json:"file_name"`
	ChunkID      int       `json:"chunk_id"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
	Grade        int       `json:"grade"`
	GradeBucket  string    `json:"grade_bucket"`
	Subject      string    `json:"subject"`
	Chapter      string    `json:"chapter"`
}

// Passage 是检索返回给合成器的一段上下文。
type Passage struct {
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	Chapter   string  `json:"chapter,omitempty"`
	Relevance float64 `json:"relevance"`
}
