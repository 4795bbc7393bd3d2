// Package index 提供文档切块的向量索引，支持整体重建与 MMR 检索。
package index

import (
	"context"
	"querybot-go/internal/model"
	"sort"
)

// SearchParams 控制 MMR 检索：从 FetchK 个相似候选中选出 K 个，Lambda 越大越偏向相关性。
type SearchParams struct {
	K      int     `json:"k"`
	FetchK int     `json:"fetchK"`
	Lambda float64 `json:"lambda"`
}

// DefaultSearchParams 返回默认检索参数 k=5、fetch_k=20、λ=0.5。
func DefaultSearchParams() SearchParams {
	return SearchParams{K: 5, FetchK: 20, Lambda: 0.5}
}

func (p SearchParams) normalize() SearchParams {
	d := DefaultSearchParams()
	if p.K <= 0 {
		p.K = d.K
	}
	if p.FetchK < p.K {
		p.FetchK = p.K
	}
	if p.Lambda < 0 || p.Lambda > 1 {
		p.Lambda = d.Lambda
	}
	return p
}

// VectorIndex 持有单个会话当前可见的一代文档切块。
//
// Rebuild 以新切块整体替换旧内容，同一索引上的并发重建返回 model.ErrRebuildInProgress，
// 重建期间的检索会阻塞到切换完成，不会看到新旧混合的数据。
type VectorIndex interface {
	Rebuild(ctx context.Context, chunks []model.DocumentChunk) error
	Search(ctx context.Context, query string, params SearchParams) ([]model.DocumentChunk, error)
	// Len 返回当前一代的切块数。
	Len() int
	// Sources 返回当前一代的来源文档名，已排序去重。
	Sources() []string
	Generation() int64
	Clear(ctx context.Context) error
}

func sourcesOf(chunks []model.DocumentChunk) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range chunks {
		if _, ok := seen[c.SourceID]; ok {
			continue
		}
		seen[c.SourceID] = struct{}{}
		out = append(out, c.SourceID)
	}
	sort.Strings(out)
	return out
}

func texts(chunks []model.DocumentChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
