package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"querybot-go/internal/model"
	"querybot-go/internal/pipeline"
	"querybot-go/internal/session"
	"querybot-go/pkg/log"
	"querybot-go/pkg/metrics"
	"querybot-go/pkg/storage"
	"sort"
	"strings"
	"time"
)

const presignExpiry = time.Hour

// DocumentIngester 把单个文档转换为切块。
type DocumentIngester interface {
	Ingest(ctx context.Context, path, sourceID string) (*pipeline.IngestResult, error)
}

// DocumentUpload 是一次上传中的单个文件，Path 为本地临时文件。
type DocumentUpload struct {
	Name        string
	Path        string
	ContentType string
}

// DocumentReport 是单个文档的入库报告。
type DocumentReport struct {
	SourceID string                 `json:"sourceId"`
	Status   pipeline.StageStatus   `json:"status"`
	Pages    int                    `json:"pages"`
	Chunks   int                    `json:"chunks"`
	Stages   []pipeline.StageReport `json:"stages"`
	Error    string                 `json:"error,omitempty"`
	Archived string                 `json:"archived,omitempty"`
}

// CorpusReport 是一次文档集合替换的结果。
type CorpusReport struct {
	Generation int64            `json:"generation"`
	Sources    []string         `json:"sources"`
	ChunkCount int              `json:"chunkCount"`
	Unchanged  bool             `json:"unchanged"`
	Documents  []DocumentReport `json:"documents"`
}

// DocumentInfo 是已索引文档的展示信息。
type DocumentInfo struct {
	SourceID    string `json:"sourceId"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// CorpusService 负责以整批替换的方式重建会话的文档索引。
type CorpusService struct {
	ingester DocumentIngester
	store    storage.ObjectStore
}

// NewCorpusService 创建 CorpusService，store 为 nil 时不归档原文件。
func NewCorpusService(ingester DocumentIngester, store storage.ObjectStore) *CorpusService {
	return &CorpusService{ingester: ingester, store: store}
}

// corpusKey 以排序后的文件名集合标识一批文档。
func corpusKey(docs []DocumentUpload) string {
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	sort.Strings(names)
	return strings.Join(names, "\x00")
}

func archivePrefix(sessionID string, generation int64) string {
	return fmt.Sprintf("sessions/%s/g%d/", sessionID, generation)
}

// Replace 逐个入库文档后整体重建索引。单个文档失败只记录在报告中，不影响其他文档；
// 全部失败时索引被清空。文件集合与当前索引相同时不做任何事。
func (s *CorpusService) Replace(ctx context.Context, sess *session.Session, docs []DocumentUpload) (*CorpusReport, error) {
	if len(docs) == 0 {
		return nil, errors.New("no documents provided")
	}
	if sess.Index == nil {
		return nil, errors.New("session has no document index")
	}

	key := corpusKey(docs)
	if key == sess.CorpusKey() && sess.HasCorpus() {
		log.Infof("[CorpusService] 会话 %s 的文档集合未变化，跳过重建", sess.ID)
		return &CorpusReport{
			Generation: sess.Index.Generation(),
			Sources:    sess.Index.Sources(),
			ChunkCount: sess.Index.Len(),
			Unchanged:  true,
			Documents:  []DocumentReport{},
		}, nil
	}

	oldGen := sess.Index.Generation()
	nextGen := oldGen + 1
	report := &CorpusReport{Documents: make([]DocumentReport, 0, len(docs))}
	var chunks []model.DocumentChunk

	for _, doc := range docs {
		rep := DocumentReport{SourceID: doc.Name}
		if s.store != nil {
			object := archivePrefix(sess.ID, nextGen) + path.Base(doc.Name)
			if err := s.store.PutFile(ctx, object, doc.Path, doc.ContentType); err != nil {
				log.Warnf("[CorpusService] 归档文档 %s 失败: %v", doc.Name, err)
			} else {
				rep.Archived = object
			}
		}

		res, err := s.ingester.Ingest(ctx, doc.Path, doc.Name)
		if res != nil {
			rep.Stages = res.Stages
			rep.Pages = res.Pages
			rep.Status = res.Status()
		}
		if err != nil {
			rep.Status = pipeline.StatusFailed
			rep.Error = err.Error()
			log.Warnf("[CorpusService] 文档 %s 入库失败: %v", doc.Name, err)
		} else {
			rep.Chunks = len(res.Chunks)
			chunks = append(chunks, res.Chunks...)
		}
		metrics.ObserveIngestion(string(rep.Status))
		report.Documents = append(report.Documents, rep)
	}

	start := time.Now()
	if err := sess.Index.Rebuild(ctx, chunks); err != nil {
		return report, err
	}
	metrics.ObserveIndexRebuild(time.Since(start))
	sess.SetCorpusKey(key)

	if s.store != nil && oldGen > 0 {
		if err := s.store.RemovePrefix(ctx, archivePrefix(sess.ID, oldGen)); err != nil {
			log.Warnf("[CorpusService] 清理旧一代归档失败: %v", err)
		}
	}

	report.Generation = sess.Index.Generation()
	report.Sources = sess.Index.Sources()
	report.ChunkCount = sess.Index.Len()
	log.Infof("[CorpusService] 会话 %s 索引重建完成, 第 %d 代, 文档 %d 个, 切块 %d 个",
		sess.ID, report.Generation, len(report.Sources), report.ChunkCount)
	return report, nil
}

// List 返回当前已索引的文档，配置了对象存储时附带临时下载链接。
func (s *CorpusService) List(ctx context.Context, sess *session.Session) []DocumentInfo {
	if sess.Index == nil {
		return []DocumentInfo{}
	}
	sources := sess.Index.Sources()
	gen := sess.Index.Generation()
	out := make([]DocumentInfo, 0, len(sources))
	for _, src := range sources {
		info := DocumentInfo{SourceID: src}
		if s.store != nil {
			u, err := s.store.PresignedURL(ctx, archivePrefix(sess.ID, gen)+path.Base(src), presignExpiry)
			if err != nil {
				log.Warnf("[CorpusService] 生成下载链接失败: %v", err)
			} else {
				info.DownloadURL = u
			}
		}
		out = append(out, info)
	}
	return out
}

// Forget 删除会话的全部归档，会话关闭时调用。
func (s *CorpusService) Forget(ctx context.Context, sessionID string) {
	if s.store == nil {
		return
	}
	if err := s.store.RemovePrefix(ctx, fmt.Sprintf("sessions/%s/", sessionID)); err != nil {
		log.Warnf("[CorpusService] 删除会话 %s 的归档失败: %v", sessionID, err)
	}
}
