// Package ocr 通过 ocrmypdf 为扫描版 PDF 补充文本层。
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"querybot-go/internal/config"
	"strings"
)

// ErrSkipped 表示该文件不需要或无法进行 OCR，调用方应直接使用原文件。
var ErrSkipped = errors.New("ocr skipped")

// Normalizer 将源文件转换为带文本层的新文件，返回新文件路径。
type Normalizer interface {
	Normalize(ctx context.Context, path string) (string, error)
}

// CommandNormalizer 调用 ocrmypdf 命令行。
type CommandNormalizer struct {
	cfg config.OCRConfig
}

// NewNormalizer 创建 ocrmypdf 调用器。
func NewNormalizer(cfg config.OCRConfig) *CommandNormalizer {
	if cfg.Command == "" {
		cfg.Command = "ocrmypdf"
	}
	return &CommandNormalizer{cfg: cfg}
}

// Normalize 在源文件旁生成 <name>.ocr.pdf。未启用或非 PDF 时返回 ErrSkipped。
func (n *CommandNormalizer) Normalize(ctx context.Context, path string) (string, error) {
	if !n.cfg.Enabled {
		return "", ErrSkipped
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "", ErrSkipped
	}

	if n.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".ocr.pdf"
	args := append(append([]string{}, n.cfg.Args...), path, out)
	cmd := exec.CommandContext(ctx, n.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return "", fmt.Errorf("ocrmypdf 执行失败: %w: %s", err, msg)
	}
	return out, nil
}
