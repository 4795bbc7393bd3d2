// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"querybot-go/internal/config"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL   string
	ocrStrategy string
	httpClient  *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL:   strings.TrimRight(cfg.ServerURL, "/"),
		ocrStrategy: cfg.OCRStrategy,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// ExtractPages 以 XHTML 形式调用 Tika，并按 <div class="page"> 拆分为逐页文本。
// 返回切片的下标 i 对应第 i+1 页；非分页格式整体作为第 1 页。
func (c *Client) ExtractPages(ctx context.Context, fileReader io.Reader, fileName string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", fileReader)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Content-Type", detectMimeType(fileName))
	if c.ocrStrategy != "" {
		req.Header.Set("X-Tika-PDFOcrStrategy", c.ocrStrategy)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	return parsePages(resp.Body)
}

// parsePages 解析 Tika 输出的 XHTML。
func parsePages(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("解析 Tika 响应失败: %w", err)
	}

	var pages []string
	doc.Find("div.page").Each(func(_ int, s *goquery.Selection) {
		pages = append(pages, pageText(s))
	})
	if len(pages) == 0 {
		pages = append(pages, pageText(doc.Find("body")))
	}
	return pages, nil
}

// pageText 逐段收集文本，段落之间以换行分隔。
func pageText(s *goquery.Selection) string {
	var parts []string
	blocks := s.Find("p, h1, h2, h3, h4, h5, h6, li, td, pre")
	if blocks.Length() == 0 {
		return strings.TrimSpace(s.Text())
	}
	blocks.Each(func(_ int, b *goquery.Selection) {
		if t := strings.TrimSpace(b.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n")
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
