package model

import "fmt"

// DocumentChunk 是文档切块，创建后不可变，由向量索引持有。
type DocumentChunk struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	SourceID   string    `json:"sourceId"`
	PageNumber int       `json:"pageNumber"`
	Embedding  []float32 `json:"-"`
}

// SourceRef 是回答中引用的来源（文档名 + 页码）。
type SourceRef struct {
	SourceID   string `json:"sourceId"`
	PageNumber int    `json:"pageNumber"`
}

func (s SourceRef) String() string {
	if s.PageNumber > 0 {
		return fmt.Sprintf("%s (page %d)", s.SourceID, s.PageNumber)
	}
	return s.SourceID
}
