package model

import (
	"fmt"
	"strings"
	"time"
)

// QueryKind 是问题分类结果，只有两种取值。
type QueryKind int

const (
	// KindUnstructured 表示问题应由文档检索回答。
	KindUnstructured QueryKind = iota
	// KindStructured 表示问题应由数据库查询回答。
	KindStructured
)

func (k QueryKind) String() string {
	if k == KindStructured {
		return "structured"
	}
	return "unstructured"
}

// ParseQueryKind 解析配置或模型输出中的分类名称。
func ParseQueryKind(s string) (QueryKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structured":
		return KindStructured, nil
	case "unstructured":
		return KindUnstructured, nil
	}
	return KindUnstructured, fmt.Errorf("unknown query kind %q", s)
}

// Role 是登录用户的角色，如 hr、employee。
type Role string

// RolePolicy 保存每个角色不可查询的列，加载后不可变。
type RolePolicy struct {
	restricted map[Role]map[string]struct{}
}

// NewRolePolicy 根据角色到受限列的映射创建策略，列名不区分大小写。
func NewRolePolicy(restricted map[string][]string) *RolePolicy {
	p := &RolePolicy{restricted: make(map[Role]map[string]struct{}, len(restricted))}
	for role, cols := range restricted {
		set := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			set[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
		}
		p.restricted[Role(strings.ToLower(role))] = set
	}
	return p
}

// RestrictedColumns 返回角色的受限列集合，未知角色返回空集合。
func (p *RolePolicy) RestrictedColumns(role Role) map[string]struct{} {
	if p == nil {
		return nil
	}
	return p.restricted[Role(strings.ToLower(string(role)))]
}

// Known 判断角色是否在策略中声明过。
func (p *RolePolicy) Known(role Role) bool {
	if p == nil {
		return false
	}
	_, ok := p.restricted[Role(strings.ToLower(string(role)))]
	return ok
}

// ValidationResult 是 SQL 校验结果。Allowed 为 false 时 Reason 说明原因。
type ValidationResult struct {
	Allowed bool   `json:"allowed"`
	Rule    string `json:"rule,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// QueryResult 是一次查询返回的行，Columns 与查询投影顺序一致。
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len 返回行数，nil 安全。
func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// QueryAttempt 记录一次结构化问答的全过程，只保存在会话缓存中。
// Result 仅在 Err 为空且校验通过时非空。
type QueryAttempt struct {
	Question     string           `json:"question"`
	GeneratedSQL string           `json:"generatedSql"`
	Validation   ValidationResult `json:"validation"`
	Result       *QueryResult     `json:"result,omitempty"`
	Err          error            `json:"-"`
	Duration     time.Duration    `json:"duration"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// Succeeded 判断该次查询是否成功返回了结果。
func (a *QueryAttempt) Succeeded() bool {
	return a != nil && a.Err == nil && a.Validation.Allowed && a.Result != nil
}
