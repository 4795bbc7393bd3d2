package pipeline

import (
	"strings"
	"unicode"
)

// splitText 将文本按 chunkSize 个字符切分，相邻切块重叠 chunkOverlap 个字符。
// 切点尽量落在窗口内最后一个空白处，首尾空白被去掉，空白切块被丢弃。
func splitText(text string, chunkSize, chunkOverlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastSpace(runes, start+chunkOverlap+1, end); cut > 0 {
			end = cut
		}

		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			chunks = append(chunks, s)
		}
		if end == len(runes) {
			break
		}
		next := end - chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastSpace 返回 [from, to) 中最后一个空白字符之后的位置，找不到时返回 -1。
func lastSpace(runes []rune, from, to int) int {
	for i := to - 1; i >= from; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return -1
}
