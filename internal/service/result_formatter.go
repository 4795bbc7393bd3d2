package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"querybot-go/internal/model"
	"strings"
	"time"
)

const noResultsText = "No results found."

// ResultFormatter 把查询结果渲染为对话预览与导出文件。两者都是纯函数。
type ResultFormatter struct {
	previewLimit int
}

// NewResultFormatter 创建格式化器，limit<=0 时使用 10。
func NewResultFormatter(limit int) *ResultFormatter {
	if limit <= 0 {
		limit = 10
	}
	return &ResultFormatter{previewLimit: limit}
}

// Preview 使用默认行数上限渲染预览。
func (f *ResultFormatter) Preview(result *model.QueryResult) string {
	return PreviewTable(result, f.previewLimit)
}

// PreviewTable 渲染最多 limit 行的 markdown 表格，超出时附加截断说明。
func PreviewTable(result *model.QueryResult, limit int) string {
	if result.Len() == 0 {
		return noResultsText
	}
	if limit <= 0 {
		limit = 10
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(escapeCells(result.Columns), " | ") + " |\n")
	seps := make([]string, len(result.Columns))
	for i := range seps {
		seps[i] = "---"
	}
	b.WriteString("| " + strings.Join(seps, " | ") + " |\n")

	shown := result.Rows
	if len(shown) > limit {
		shown = shown[:limit]
	}
	for _, row := range shown {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		b.WriteString("| " + strings.Join(escapeCells(cells), " | ") + " |\n")
	}
	if len(result.Rows) > limit {
		fmt.Fprintf(&b, "\n_Showing first %d of %d rows._", limit, len(result.Rows))
	}
	return strings.TrimRight(b.String(), "\n")
}

// ToExport 把完整结果序列化为带表头的 CSV，NULL 写为空串，无数据时返回 nil。
func ToExport(result *model.QueryResult) ([]byte, error) {
	if result.Len() == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(result.Columns); err != nil {
		return nil, err
	}
	for _, row := range result.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			if v != nil {
				record[i] = formatCell(v)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.DateTime)
	default:
		return fmt.Sprint(x)
	}
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "|", `\|`)
		out[i] = strings.ReplaceAll(c, "\n", " ")
	}
	return out
}
