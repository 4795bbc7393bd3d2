// Package pipeline 定义了文档入库的分阶段流程：OCR、文本提取与切块。
package pipeline

import (
	"context"
	"errors"
	"os"
	"querybot-go/internal/config"
	"querybot-go/internal/model"
	"querybot-go/pkg/log"
	"querybot-go/pkg/ocr"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Stage 是入库流程中的一个阶段。
type Stage string

const (
	StageOCR     Stage = "ocr"
	StageExtract Stage = "extract"
	StageChunk   Stage = "chunk"
)

// StageStatus 是阶段的执行结果。degraded 表示失败后已回退，流程继续。
type StageStatus string

const (
	StatusOK       StageStatus = "ok"
	StatusDegraded StageStatus = "degraded"
	StatusSkipped  StageStatus = "skipped"
	StatusFailed   StageStatus = "failed"
)

// StageReport 记录单个阶段的结果。
type StageReport struct {
	Stage  Stage       `json:"stage"`
	Status StageStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
	Err    error       `json:"-"`
}

// IngestResult 是单个文档的入库结果。失败时 Chunks 为空，Stages 仍记录到失败为止的各阶段。
type IngestResult struct {
	SourceID string                `json:"sourceId"`
	Pages    int                   `json:"pages"`
	Chunks   []model.DocumentChunk `json:"-"`
	Stages   []StageReport         `json:"stages"`
}

// Status 汇总各阶段的结果：任一阶段失败为 failed，有回退为 degraded，否则为 ok。
func (r *IngestResult) Status() StageStatus {
	status := StatusOK
	for _, s := range r.Stages {
		switch s.Status {
		case StatusFailed:
			return StatusFailed
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

func (r *IngestResult) add(stage Stage, status StageStatus, err error) {
	rep := StageReport{Stage: stage, Status: status, Err: err}
	if err != nil {
		rep.Detail = err.Error()
	}
	r.Stages = append(r.Stages, rep)
}

// Ingestor 将单个文档转换为切块。
type Ingestor struct {
	normalizer   ocr.Normalizer
	primary      PageExtractor
	fallback     PageExtractor
	chunkSize    int
	chunkOverlap int
}

// NewIngestor 创建 Ingestor。normalizer 与 fallback 可以为 nil。
func NewIngestor(normalizer ocr.Normalizer, primary, fallback PageExtractor, cfg config.RetrievalConfig) *Ingestor {
	return &Ingestor{
		normalizer:   normalizer,
		primary:      primary,
		fallback:     fallback,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
	}
}

// Ingest 依次执行 OCR、提取与切块。
// 两个提取器都没有得到文本时返回包装 model.ErrEmptyDocument 的 *model.IngestionError，
// 切块后为空时返回包装 model.ErrNoContent 的 *model.IngestionError。
func (in *Ingestor) Ingest(ctx context.Context, path, sourceID string) (*IngestResult, error) {
	result := &IngestResult{SourceID: sourceID}
	log.Infof("[Ingestor] 开始处理文档: %s", sourceID)

	// 1. OCR 规范化，失败时使用原文件
	src := path
	if in.normalizer == nil {
		result.add(StageOCR, StatusSkipped, nil)
	} else {
		out, err := in.normalizer.Normalize(ctx, path)
		switch {
		case errors.Is(err, ocr.ErrSkipped):
			result.add(StageOCR, StatusSkipped, nil)
		case err != nil:
			log.Warnf("[Ingestor] 步骤1: OCR 失败，使用原文件, 文档: %s, Error: %v", sourceID, err)
			result.add(StageOCR, StatusDegraded, err)
		default:
			log.Infof("[Ingestor] 步骤1: OCR 完成, 文档: %s", sourceID)
			result.add(StageOCR, StatusOK, nil)
			src = out
			defer os.Remove(out)
		}
	}

	// 2. 提取文本：结构化提取优先，失败或无文本时回退
	pages, err := in.extract(ctx, src, sourceID, result)
	if err != nil {
		return result, err
	}
	result.Pages = len(pages)

	// 3. 按页切块
	for i, page := range pages {
		for _, text := range splitText(page, in.chunkSize, in.chunkOverlap) {
			result.Chunks = append(result.Chunks, model.DocumentChunk{
				ID:         uuid.NewString(),
				Text:       text,
				SourceID:   sourceID,
				PageNumber: i + 1,
			})
		}
	}
	if len(result.Chunks) == 0 {
		log.Warnf("[Ingestor] 步骤3: 未生成任何切块, 文档: %s", sourceID)
		result.add(StageChunk, StatusFailed, model.ErrNoContent)
		return result, &model.IngestionError{SourceID: sourceID, Stage: string(StageChunk), Err: model.ErrNoContent}
	}
	result.add(StageChunk, StatusOK, nil)
	log.Infof("[Ingestor] 步骤3: 切块完成, 文档: %s, 页数: %d, 切块数: %d", sourceID, len(pages), len(result.Chunks))
	return result, nil
}

func (in *Ingestor) extract(ctx context.Context, src, sourceID string, result *IngestResult) ([]string, error) {
	pages, err := in.primary.ExtractPages(ctx, src)
	if err == nil && hasText(pages) {
		log.Infof("[Ingestor] 步骤2: 结构化提取成功, 文档: %s, 字符数: %d", sourceID, textLen(pages))
		result.add(StageExtract, StatusOK, nil)
		return pages, nil
	}
	if err == nil {
		err = errors.New("primary extractor returned no text")
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.add(StageExtract, StatusFailed, ctxErr)
		return nil, &model.IngestionError{SourceID: sourceID, Stage: string(StageExtract), Err: ctxErr}
	}

	if in.fallback != nil {
		log.Warnf("[Ingestor] 步骤2: 结构化提取不可用, 回退到版面无关提取, 文档: %s, 原因: %v", sourceID, err)
		fbPages, fbErr := in.fallback.ExtractPages(ctx, src)
		if fbErr == nil && hasText(fbPages) {
			result.add(StageExtract, StatusDegraded, err)
			return fbPages, nil
		}
		if fbErr != nil {
			err = errors.Join(err, fbErr)
		}
	}

	log.Warnf("[Ingestor] 步骤2: 未能提取到任何文本, 文档: %s, Error: %v", sourceID, err)
	result.add(StageExtract, StatusFailed, err)
	return nil, &model.IngestionError{SourceID: sourceID, Stage: string(StageExtract), Err: model.ErrEmptyDocument}
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

func textLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += utf8.RuneCountInString(p)
	}
	return n
}
