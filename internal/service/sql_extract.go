package service

import (
	"regexp"
	"strings"
)

const thinkEnd = "</think>"

// SQLExtractor 是从模型输出中提取 SQL 的一种策略，未命中时返回 false。
type SQLExtractor struct {
	Name    string
	Extract func(text string) (string, bool)
}

var (
	fencedSQLPattern   = regexp.MustCompile("(?is)```sql\\s*(.*?)\\s*```")
	prefixedSQLPattern = regexp.MustCompile(`(?is)SQL query:\s*(SELECT .*?;)`)
	bareSelectPattern  = regexp.MustCompile(`(?is)\b(SELECT\b.*?;)`)
)

func regexpExtractor(name string, re *regexp.Regexp) SQLExtractor {
	return SQLExtractor{
		Name: name,
		Extract: func(text string) (string, bool) {
			m := re.FindStringSubmatch(text)
			if m == nil {
				return "", false
			}
			return strings.TrimSpace(m[1]), true
		},
	}
}

// 按优先级排列的提取策略，最后一项总会命中。
var (
	FencedBlockExtractor = regexpExtractor("fenced", fencedSQLPattern)
	PrefixedExtractor    = regexpExtractor("prefixed", prefixedSQLPattern)
	BareSelectExtractor  = regexpExtractor("bare_select", bareSelectPattern)
	RawTextExtractor     = SQLExtractor{
		Name: "raw",
		Extract: func(text string) (string, bool) {
			return strings.TrimSpace(text), true
		},
	}

	DefaultSQLExtractors = []SQLExtractor{
		FencedBlockExtractor,
		PrefixedExtractor,
		BareSelectExtractor,
		RawTextExtractor,
	}
)

// stripThink 去掉第一个 </think> 及其之前的推理内容。
func stripThink(text string) string {
	if i := strings.Index(text, thinkEnd); i >= 0 {
		return text[i+len(thinkEnd):]
	}
	return text
}

// ExtractSQL 去掉推理块后依次尝试 DefaultSQLExtractors。
func ExtractSQL(raw string) string {
	sql, _ := ExtractSQLWith(raw, DefaultSQLExtractors)
	return sql
}

// ExtractSQLWith 使用给定策略提取 SQL，同时返回命中的策略名。
func ExtractSQLWith(raw string, extractors []SQLExtractor) (string, string) {
	text := stripThink(raw)
	for _, ex := range extractors {
		if sql, ok := ex.Extract(text); ok {
			return sql, ex.Name
		}
	}
	return strings.TrimSpace(text), ""
}
