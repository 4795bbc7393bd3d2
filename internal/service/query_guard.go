package service

import (
	"fmt"
	"querybot-go/internal/model"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// 校验规则名，同时作为指标标签。
const (
	RuleEmpty            = "empty"
	RuleForbiddenKeyword = "forbidden_keyword"
	RuleNotSelect        = "not_select"
	RuleStacked          = "stacked_statements"
	RuleRestrictedColumn = "restricted_column"
	RuleMalformed        = "malformed"
	RuleUnknownRole      = "unknown_role"
)

// forbiddenSubstrings 在大写语句中出现即拒绝，不论位置。
var forbiddenSubstrings = []string{"DROP", "TRUNCATE", "GRANT", "REVOKE", "SHUTDOWN"}

// forbiddenWords 作为独立单词出现时拒绝，避免误伤 created_at、update_time 这类列名。
var forbiddenWords = regexp.MustCompile(`\b(DELETE|INSERT|UPDATE|ALTER|CREATE|REPLACE|RENAME|LOCK|UNLOCK|CALL|LOAD|HANDLER|KILL|OUTFILE|DUMPFILE)\b`)

var (
	identPattern = regexp.MustCompile("(?:`[^`]+`|[A-Za-z_][A-Za-z0-9_$]*)(?:\\s*\\.\\s*(?:`[^`]+`|[A-Za-z_][A-Za-z0-9_$]*|\\*))*")
	aliasPattern = regexp.MustCompile("(?i)\\s+AS\\s+(?:`[^`]+`|[A-Za-z_][A-Za-z0-9_$]*)\\s*$")
)

// ApprovedQuery 是通过校验的 SQL，只能由 QueryGuard.Approve 构造。
type ApprovedQuery struct {
	sql  string
	role model.Role
}

// SQL 返回已通过校验的语句。
func (q ApprovedQuery) SQL() string { return q.sql }

// Role 返回校验时使用的角色。
func (q ApprovedQuery) Role() model.Role { return q.role }

// QueryGuard 校验生成的 SQL，只放行单条、不含受限列的 SELECT。
type QueryGuard struct {
	policy *model.RolePolicy
}

// NewQueryGuard 创建校验器。
func NewQueryGuard(policy *model.RolePolicy) *QueryGuard {
	return &QueryGuard{policy: policy}
}

// Approve 校验通过时返回可执行的 ApprovedQuery。
func (g *QueryGuard) Approve(sql string, role model.Role) (ApprovedQuery, model.ValidationResult) {
	res := g.Validate(sql, role)
	if !res.Allowed {
		return ApprovedQuery{}, res
	}
	return ApprovedQuery{sql: strings.TrimSpace(sql), role: role}, res
}

// Validate 按顺序执行校验规则，第一条不通过的规则决定结果。无副作用。
func (g *QueryGuard) Validate(sql string, role model.Role) model.ValidationResult {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return reject(RuleEmpty, "empty query")
	}

	upper := strings.ToUpper(trimmed)
	for _, kw := range forbiddenSubstrings {
		if strings.Contains(upper, kw) {
			return reject(RuleForbiddenKeyword, fmt.Sprintf("forbidden keyword %s", kw))
		}
	}
	if m := forbiddenWords.FindString(upper); m != "" {
		return reject(RuleForbiddenKeyword, fmt.Sprintf("forbidden keyword %s", m))
	}

	if !strings.HasPrefix(upper, "SELECT") {
		return reject(RuleNotSelect, "only SELECT allowed")
	}

	stripped, ok := normalizeSQL(trimmed)
	if !ok {
		return reject(RuleMalformed, "unterminated string, identifier or comment")
	}
	if i := strings.Index(stripped, ";"); i >= 0 {
		if rest := strings.Trim(stripped[i+1:], "; \t\r\n"); rest != "" {
			return reject(RuleStacked, "multiple statements are not allowed")
		}
	}

	if !g.policy.Known(role) {
		return reject(RuleUnknownRole, fmt.Sprintf("role %q has no column policy", role))
	}
	restricted := g.policy.RestrictedColumns(role)
	if len(restricted) == 0 {
		return model.ValidationResult{Allowed: true}
	}
	for _, item := range projectionItems(stripped) {
		if isStar(item) {
			return reject(RuleRestrictedColumn, fmt.Sprintf(
				"SELECT * would expose restricted column %q for role %q; list the columns explicitly",
				firstSorted(restricted), role))
		}
		for _, col := range projectionColumns(item) {
			if _, ok := restricted[col]; ok {
				return reject(RuleRestrictedColumn, fmt.Sprintf("column %q is restricted for role %q", col, role))
			}
		}
	}
	return model.ValidationResult{Allowed: true}
}

func reject(rule, reason string) model.ValidationResult {
	return model.ValidationResult{Allowed: false, Rule: rule, Reason: reason}
}

// normalizeSQL 生成只用于校验的语句副本：注释替换为空格，字符串字面量只保留引号，
// 反引号标识符内的非单词字符替换为下划线。/*! */ 可执行注释的内容按正文处理。
// 字面量、标识符或注释未闭合时 ok 为 false。
func normalizeSQL(sql string) (string, bool) {
	var b strings.Builder
	runes := []rune(sql)
	n := len(runes)
	inExec := false
	for i := 0; i < n; i++ {
		r := runes[i]
		switch {
		case r == '\'' || r == '"':
			end, ok := literalEnd(runes, i)
			if !ok {
				return "", false
			}
			b.WriteRune(r)
			b.WriteRune(r)
			i = end
		case r == '`':
			b.WriteRune('`')
			j := i + 1
			for ; j < n; j++ {
				if runes[j] == '`' {
					if j+1 < n && runes[j+1] == '`' {
						b.WriteRune('_')
						j++
						continue
					}
					break
				}
				b.WriteRune(identRune(runes[j]))
			}
			if j >= n {
				return "", false
			}
			b.WriteRune('`')
			i = j
		case r == '#' || isDashComment(runes, i):
			for i < n && runes[i] != '\n' {
				i++
			}
			b.WriteRune(' ')
			if i < n {
				b.WriteRune('\n')
			}
		case r == '/' && i+1 < n && runes[i+1] == '*':
			if i+2 < n && runes[i+2] == '!' {
				if inExec {
					return "", false
				}
				inExec = true
				i += 2
				for i+1 < n && runes[i+1] >= '0' && runes[i+1] <= '9' {
					i++
				}
				b.WriteRune(' ')
				continue
			}
			end := commentEnd(runes, i+2)
			if end < 0 {
				return "", false
			}
			b.WriteRune(' ')
			i = end + 1
		case inExec && r == '*' && i+1 < n && runes[i+1] == '/':
			inExec = false
			b.WriteRune(' ')
			i++
		default:
			b.WriteRune(r)
		}
	}
	if inExec {
		return "", false
	}
	return b.String(), true
}

// literalEnd 返回从 start 开始的字面量的闭合引号下标，支持反斜杠转义与双写引号。
func literalEnd(runes []rune, start int) (int, bool) {
	q := runes[start]
	for j := start + 1; j < len(runes); j++ {
		switch runes[j] {
		case '\\':
			j++
		case q:
			if j+1 < len(runes) && runes[j+1] == q {
				j++
				continue
			}
			return j, true
		}
	}
	return 0, false
}

// isDashComment 判断 i 处是否为 "-- " 注释。MySQL 要求第二个横线后跟空白或控制字符，
// 否则 a--b 是减去负数。
func isDashComment(runes []rune, i int) bool {
	if runes[i] != '-' || i+1 >= len(runes) || runes[i+1] != '-' {
		return false
	}
	return i+2 >= len(runes) || unicode.IsSpace(runes[i+2]) || unicode.IsControl(runes[i+2])
}

func commentEnd(runes []rune, from int) int {
	for j := from; j+1 < len(runes); j++ {
		if runes[j] == '*' && runes[j+1] == '/' {
			return j
		}
	}
	return -1
}

func identRune(r rune) rune {
	if r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r) {
		return r
	}
	return '_'
}

// projectionItems 返回语句中所有 SELECT（包括子查询）的投影项。
func projectionItems(sql string) []string {
	upper := asciiUpper(sql)
	var items []string
	for i := 0; i < len(upper); i++ {
		if !keywordAt(upper, i, "SELECT") {
			continue
		}
		items = append(items, splitTopLevel(projectionAt(sql, upper, i+len("SELECT")))...)
	}
	return items
}

// projectionAt 从 start 开始截取到同层 FROM、闭括号或语句结尾为止。
func projectionAt(sql, upper string, start int) string {
	depth := 0
	for i := start; i < len(upper); i++ {
		switch upper[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return sql[start:i]
			}
			depth--
		case ';':
			if depth == 0 {
				return sql[start:i]
			}
		default:
			if depth == 0 && keywordAt(upper, i, "FROM") {
				return sql[start:i]
			}
		}
	}
	return sql[start:]
}

// asciiUpper 只转换 ASCII 字母，保证与原串的字节下标一致。
func asciiUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func keywordAt(upper string, i int, kw string) bool {
	if !strings.HasPrefix(upper[i:], kw) {
		return false
	}
	if i > 0 && isWordByte(upper[i-1]) {
		return false
	}
	end := i + len(kw)
	return end >= len(upper) || !isWordByte(upper[end])
}

func isWordByte(b byte) bool {
	return b == '_' || b == '$' || b == '`' || b >= 0x80 || unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b))
}

// splitTopLevel 按不在括号内的逗号切分。
func splitTopLevel(s string) []string {
	var parts []string
	depth, last := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[last:i]))
				last = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[last:]); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}

func isStar(item string) bool {
	item = strings.TrimSpace(item)
	if item == "*" || strings.HasSuffix(strings.ToUpper(item), "DISTINCT *") {
		return true
	}
	for _, tok := range identPattern.FindAllString(item, -1) {
		if strings.HasSuffix(strings.ReplaceAll(tok, " ", ""), ".*") {
			return true
		}
	}
	return false
}

// projectionColumns 返回投影项中引用的列名：小写、去掉反引号与表名限定，忽略结尾的别名。
func projectionColumns(item string) []string {
	item = aliasPattern.ReplaceAllString(item, "")
	var cols []string
	for _, tok := range identPattern.FindAllString(item, -1) {
		parts := strings.Split(tok, ".")
		name := strings.TrimSpace(parts[len(parts)-1])
		name = strings.ToLower(strings.Trim(name, "`"))
		if name != "" && name != "*" {
			cols = append(cols, name)
		}
	}
	return cols
}

func firstSorted(set map[string]struct{}) string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names[0]
}
