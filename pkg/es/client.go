// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"querybot-go/internal/config"
	"querybot-go/internal/model"
	"querybot-go/pkg/log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// NewClient 初始化 Elasticsearch 客户端
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addrs []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
}

// CreateChunkIndex 创建一个切块向量索引，dims 为向量维度。
func CreateChunkIndex(ctx context.Context, client *elasticsearch.Client, indexName string, dims int) error {
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"session_id": { "type": "keyword" },
				"generation": { "type": "long" },
				"source_id": { "type": "keyword" },
				"page_number": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)

	res, err := client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(mapping)),
		client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", indexName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
	}
	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// BulkIndex 批量写入切块并刷新索引，任意一条失败即返回错误。
func BulkIndex(ctx context.Context, client *elasticsearch.Client, indexName string, docs []model.EsChunk) error {
	if len(docs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, doc := range docs {
		meta := map[string]map[string]string{"index": {"_index": indexName, "_id": doc.ChunkID}}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return err
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return err
		}
	}

	res, err := client.Bulk(&buf,
		client.Bulk.WithContext(ctx),
		client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("批量写入 '%s' 失败: %w", indexName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("批量写入 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("解析批量写入响应失败: %w", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, r := range item {
				if r.Status >= 300 {
					return fmt.Errorf("批量写入 '%s' 部分失败: %s", indexName, r.Error.Reason)
				}
			}
		}
		return fmt.Errorf("批量写入 '%s' 部分失败", indexName)
	}
	return nil
}

// DeleteIndex 删除索引，索引不存在时忽略。
func DeleteIndex(ctx context.Context, client *elasticsearch.Client, indexName string) error {
	res, err := client.Indices.Delete(
		[]string{indexName},
		client.Indices.Delete.WithContext(ctx),
		client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("删除索引 '%s' 失败: %w", indexName, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("删除索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
	}
	return nil
}

// KNNSearch 返回与 vector 最相近的 k 个切块（含向量，用于调用方重排）。
func KNNSearch(ctx context.Context, client *elasticsearch.Client, indexName string, vector []float32, k int) ([]model.EsChunk, error) {
	numCandidates := k * 5
	if numCandidates < 100 {
		numCandidates = 100
	}
	body := map[string]interface{}{
		"size": k,
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": numCandidates,
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	res, err := client.Search(
		client.Search.WithContext(ctx),
		client.Search.WithIndex(indexName),
		client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("kNN 检索失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("kNN 检索时 Elasticsearch 返回错误: %s", res.String())
	}
	return decodeHits(res)
}

func decodeHits(res *esapi.Response) ([]model.EsChunk, error) {
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	var searchResp struct {
		Hits struct {
			Hits []struct {
				Source model.EsChunk `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(data, &searchResp); err != nil {
		return nil, fmt.Errorf("解析检索响应失败: %w", err)
	}
	out := make([]model.EsChunk, 0, len(searchResp.Hits.Hits))
	for _, h := range searchResp.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
