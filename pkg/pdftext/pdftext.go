// Package pdftext 使用 ledongthuc/pdf 按页提取 PDF 中嵌入的文本层。
package pdftext

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF 表示文件不是 PDF，调用方应改用其他提取器。
var ErrNotPDF = errors.New("not a pdf document")

// ExtractPages 返回每一页的纯文本，下标 i 对应第 i+1 页。
// 解析库在遇到损坏文件时可能 panic，这里统一转换为错误。
func ExtractPages(path string) (pages []string, err error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil, ErrNotPDF
	}

	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开 PDF 失败: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("提取第 %d 页文本失败: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
