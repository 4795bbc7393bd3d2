package index

import (
	"context"
	"fmt"
	"querybot-go/internal/model"
	"querybot-go/pkg/embedding"
	"querybot-go/pkg/log"
	"sync"
	"sync/atomic"
)

// MemoryIndex 是进程内的向量索引，未启用 Elasticsearch 时使用，重启后不保留。
type MemoryIndex struct {
	embedder embedding.Client

	rebuilding atomic.Bool
	mu         sync.RWMutex
	chunks     []model.DocumentChunk
	vectors    [][]float64
	sources    []string
	generation int64
}

// NewMemoryIndex 创建一个空的内存索引。
func NewMemoryIndex(embedder embedding.Client) *MemoryIndex {
	return &MemoryIndex{embedder: embedder}
}

// Rebuild 为全部切块生成向量后整体替换当前内容。失败时保留旧内容。
func (m *MemoryIndex) Rebuild(ctx context.Context, chunks []model.DocumentChunk) error {
	if !m.rebuilding.CompareAndSwap(false, true) {
		return model.ErrRebuildInProgress
	}
	defer m.rebuilding.Store(false)

	m.mu.Lock()
	defer m.mu.Unlock()

	built := make([]model.DocumentChunk, len(chunks))
	copy(built, chunks)
	vectors := make([][]float64, len(built))
	if len(built) > 0 {
		embeddings, err := m.embedder.CreateEmbeddings(ctx, texts(built))
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(embeddings) != len(built) {
			return fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(built))
		}
		for i, e := range embeddings {
			built[i].Embedding = e
			vectors[i] = toFloat64(e)
		}
	}

	m.chunks = built
	m.vectors = vectors
	m.sources = sourcesOf(built)
	m.generation++
	log.Infof("[MemoryIndex] 第 %d 代索引构建完成，共 %d 个切块", m.generation, len(built))
	return nil
}

// Search 取余弦相似度最高的 FetchK 个候选，再用 MMR 选出 K 个。
func (m *MemoryIndex) Search(ctx context.Context, query string, params SearchParams) ([]model.DocumentChunk, error) {
	params = params.normalize()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.chunks) == 0 {
		return nil, nil
	}

	qv, err := m.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	q := toFloat64(qv)

	candidateIdx := TopK(q, m.vectors, params.FetchK)
	candidates := make([][]float64, len(candidateIdx))
	for i, idx := range candidateIdx {
		candidates[i] = m.vectors[idx]
	}

	picked := MMR(q, candidates, params.K, params.Lambda)
	out := make([]model.DocumentChunk, len(picked))
	for i, p := range picked {
		out[i] = m.chunks[candidateIdx[p]]
	}
	return out, nil
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func (m *MemoryIndex) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.sources...)
}

func (m *MemoryIndex) Generation() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Clear 等价于以空切块重建。
func (m *MemoryIndex) Clear(ctx context.Context) error {
	return m.Rebuild(ctx, nil)
}
