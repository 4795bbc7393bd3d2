package model

// EsChunk 定义了存储在 Elasticsearch 中的切块文档结构。
type EsChunk struct {
	ChunkID    string    `json:"chunk_id"`
	SessionID  string    `json:"session_id"`
	Generation int64     `json:"generation"`
	SourceID   string    `json:"source_id"`
	PageNumber int       `json:"page_number"`
	Text       string    `json:"text_content"`
	Vector     []float32 `json:"vector"`
}

// ToChunk 转换为领域切块。
func (d EsChunk) ToChunk() DocumentChunk {
	return DocumentChunk{
		ID:         d.ChunkID,
		Text:       d.Text,
		SourceID:   d.SourceID,
		PageNumber: d.PageNumber,
		Embedding:  d.Vector,
	}
}
