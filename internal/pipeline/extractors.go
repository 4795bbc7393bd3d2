package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"querybot-go/pkg/pdftext"
	"querybot-go/pkg/tika"
	"strings"
)

// PageExtractor 按页提取文档文本，下标 i 对应第 i+1 页。
type PageExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]string, error)
}

// StructuredExtractor 读取 PDF 嵌入的文本层；纯文本文件整体作为一页。
type StructuredExtractor struct{}

func (StructuredExtractor) ExtractPages(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取文本文件失败: %w", err)
		}
		return []string{string(data)}, nil
	}
	return pdftext.ExtractPages(path)
}

// TikaExtractor 通过 Tika 服务器做版面无关的提取，可处理扫描件与 Office 文档。
type TikaExtractor struct {
	Client *tika.Client
}

func (t TikaExtractor) ExtractPages(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()
	return t.Client.ExtractPages(ctx, f, filepath.Base(path))
}
