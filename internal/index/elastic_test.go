package index

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"querybot-go/internal/model"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeES 模拟 Elasticsearch 的建索引、批量写入、检索与删除接口。
type fakeES struct {
	mu      sync.Mutex
	indices map[string][]model.EsChunk
	deleted []string
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/":
		_, _ = w.Write([]byte(`{"version":{"number":"8.19.0"}}`))
	case parts[0] == "_bulk":
		scanner := bufio.NewScanner(r.Body)
		scanner.Buffer(make([]byte, 1<<20), 1<<20)
		var target string
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			if target == "" {
				var meta map[string]map[string]string
				_ = json.Unmarshal(line, &meta)
				target = meta["index"]["_index"]
				continue
			}
			var doc model.EsChunk
			_ = json.Unmarshal(line, &doc)
			f.indices[target] = append(f.indices[target], doc)
			target = ""
		}
		_, _ = w.Write([]byte(`{"errors":false,"items":[]}`))
	case len(parts) == 2 && parts[1] == "_search":
		var hits []map[string]any
		for _, d := range f.indices[parts[0]] {
			hits = append(hits, map[string]any{"_source": d})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": hits}})
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.indices[parts[0]] = nil
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	case len(parts) == 1 && r.Method == http.MethodDelete:
		delete(f.indices, parts[0])
		f.deleted = append(f.deleted, parts[0])
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{}`))
	}
}

func newFakeElastic(t *testing.T) (*fakeES, *elasticsearch.Client) {
	t.Helper()
	fake := &fakeES{indices: make(map[string][]model.EsChunk)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return fake, client
}

func TestElasticIndexSwapsGenerations(t *testing.T) {
	ctx := context.Background()
	fake, client := newFakeElastic(t)
	idx := NewElasticIndex(client, newBagEmbedder("alpha", "beta"), "QueryBot", "Sess1")

	require.NoError(t, idx.Rebuild(ctx, []model.DocumentChunk{
		chunk("1", "old.pdf", 1, "alpha"),
		chunk("2", "old.pdf", 2, "beta"),
	}))
	assert.Contains(t, fake.indices, "querybot-sess1-g1")

	require.NoError(t, idx.Rebuild(ctx, []model.DocumentChunk{
		chunk("3", "new.pdf", 1, "alpha beta"),
	}))
	assert.Contains(t, fake.indices, "querybot-sess1-g2")
	assert.NotContains(t, fake.indices, "querybot-sess1-g1")
	assert.Equal(t, []string{"querybot-sess1-g1"}, fake.deleted)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, []string{"new.pdf"}, idx.Sources())

	hits, err := idx.Search(ctx, "alpha", DefaultSearchParams())
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new.pdf", hits[0].SourceID)
	assert.Equal(t, "alpha beta", hits[0].Text)
}

func TestElasticIndexClearDropsCurrentIndex(t *testing.T) {
	ctx := context.Background()
	fake, client := newFakeElastic(t)
	idx := NewElasticIndex(client, newBagEmbedder("alpha"), "qb", "s")

	require.NoError(t, idx.Rebuild(ctx, []model.DocumentChunk{chunk("1", "a.pdf", 1, "alpha")}))
	require.NoError(t, idx.Clear(ctx))

	assert.Empty(t, fake.indices)
	assert.Equal(t, 0, idx.Len())
	hits, err := idx.Search(ctx, "alpha", DefaultSearchParams())
	require.NoError(t, err)
	assert.Empty(t, hits)
}
