package index

import (
	"context"
	"fmt"
	"querybot-go/internal/model"
	"querybot-go/pkg/embedding"
	"querybot-go/pkg/es"
	"querybot-go/pkg/log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticIndex 把每一代切块写入独立的 Elasticsearch 索引，命名为 <prefix>-<session>-g<n>。
// 新一代写入完成后才切换，随后删除旧一代索引。kNN 取候选，MMR 在本地完成。
type ElasticIndex struct {
	client    *elasticsearch.Client
	embedder  embedding.Client
	prefix    string
	sessionID string

	rebuilding atomic.Bool
	mu         sync.RWMutex
	current    string
	count      int
	sources    []string
	generation int64
}

// NewElasticIndex 为会话创建一个基于 Elasticsearch 的索引。
func NewElasticIndex(client *elasticsearch.Client, embedder embedding.Client, prefix, sessionID string) *ElasticIndex {
	return &ElasticIndex{
		client:    client,
		embedder:  embedder,
		prefix:    strings.ToLower(prefix),
		sessionID: strings.ToLower(sessionID),
	}
}

func (e *ElasticIndex) indexName(generation int64) string {
	return fmt.Sprintf("%s-%s-g%d", e.prefix, e.sessionID, generation)
}

// Rebuild 写入新一代索引并切换。写入失败时删除半成品，保留旧一代。
func (e *ElasticIndex) Rebuild(ctx context.Context, chunks []model.DocumentChunk) error {
	if !e.rebuilding.CompareAndSwap(false, true) {
		return model.ErrRebuildInProgress
	}
	defer e.rebuilding.Store(false)

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.generation + 1
	var name string
	if len(chunks) > 0 {
		vectors, err := e.embedder.CreateEmbeddings(ctx, texts(chunks))
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(chunks) {
			return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(chunks))
		}

		name = e.indexName(next)
		if err := es.CreateChunkIndex(ctx, e.client, name, len(vectors[0])); err != nil {
			return err
		}
		docs := make([]model.EsChunk, len(chunks))
		for i, c := range chunks {
			docs[i] = model.EsChunk{
				ChunkID:    c.ID,
				SessionID:  e.sessionID,
				Generation: next,
				SourceID:   c.SourceID,
				PageNumber: c.PageNumber,
				Text:       c.Text,
				Vector:     vectors[i],
			}
		}
		if err := es.BulkIndex(ctx, e.client, name, docs); err != nil {
			if delErr := es.DeleteIndex(context.Background(), e.client, name); delErr != nil {
				log.Warnf("[ElasticIndex] 清理未完成的索引 %s 失败: %v", name, delErr)
			}
			return err
		}
	}

	old := e.current
	e.current = name
	e.count = len(chunks)
	e.sources = sourcesOf(chunks)
	e.generation = next

	if old != "" {
		if err := es.DeleteIndex(ctx, e.client, old); err != nil {
			log.Warnf("[ElasticIndex] 删除旧一代索引 %s 失败: %v", old, err)
		}
	}
	log.Infof("[ElasticIndex] 会话 %s 切换到第 %d 代索引，共 %d 个切块", e.sessionID, next, len(chunks))
	return nil
}

func (e *ElasticIndex) Search(ctx context.Context, query string, params SearchParams) ([]model.DocumentChunk, error) {
	params = params.normalize()

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == "" {
		return nil, nil
	}

	qv, err := e.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := es.KNNSearch(ctx, e.client, e.current, qv, params.FetchK)
	if err != nil {
		return nil, err
	}

	candidates := make([][]float64, 0, len(hits))
	chunks := make([]model.DocumentChunk, 0, len(hits))
	for _, h := range hits {
		if h.Generation != e.generation {
			continue
		}
		chunks = append(chunks, h.ToChunk())
		candidates = append(candidates, toFloat64(h.Vector))
	}

	picked := MMR(toFloat64(qv), candidates, params.K, params.Lambda)
	out := make([]model.DocumentChunk, len(picked))
	for i, p := range picked {
		out[i] = chunks[p]
	}
	return out, nil
}

func (e *ElasticIndex) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.count
}

func (e *ElasticIndex) Sources() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.sources...)
}

func (e *ElasticIndex) Generation() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

func (e *ElasticIndex) Clear(ctx context.Context) error {
	return e.Rebuild(ctx, nil)
}
