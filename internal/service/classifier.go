// Package service 包含了查询引擎的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"querybot-go/internal/config"
	"querybot-go/internal/model"
	"querybot-go/pkg/llm"
	"querybot-go/pkg/log"
	"querybot-go/pkg/metrics"
	"strings"
)

const classifierPrompt = `You decide how a question should be answered.
Reply with exactly one word: "structured" if the question needs data from the relational database
(counts, lists, aggregates, lookups of records), or "unstructured" if it should be answered from
uploaded documents (policies, manuals, free text).

Question: How many employees joined in 2023?
Answer: structured

Question: What is the average salary per department?
Answer: structured

Question: What does the leave policy say about carry-over days?
Answer: unstructured

Question: Summarize the onboarding guide.
Answer: unstructured

Question: %s
Answer:`

// Verdict 是分类结果。FellBack 为 true 时 Kind 来自配置的回退策略，Cause 说明原因。
type Verdict struct {
	Kind     model.QueryKind
	FellBack bool
	Cause    error
}

// QueryClassifier 把问题分为结构化与非结构化两类。
type QueryClassifier struct {
	llmClient   llm.Client
	fallback    model.QueryKind
	temperature float64
}

// NewQueryClassifier 创建分类器。无法解析的回退配置按 unstructured 处理。
func NewQueryClassifier(llmClient llm.Client, cfg config.ClassifierConfig) *QueryClassifier {
	fallback, err := model.ParseQueryKind(cfg.Fallback)
	if err != nil {
		log.Warnf("[QueryClassifier] 回退分类配置无效 (%q)，使用 unstructured", cfg.Fallback)
		fallback = model.KindUnstructured
	}
	return &QueryClassifier{llmClient: llmClient, fallback: fallback, temperature: cfg.Temperature}
}

// Fallback 返回模型失败时采用的分类。
func (c *QueryClassifier) Fallback() model.QueryKind {
	return c.fallback
}

// Classify 调用模型分类。模型不可用或输出无法解析时不返回错误，
// 而是采用回退分类并在 Verdict 中记录 *model.ClassificationError。
func (c *QueryClassifier) Classify(ctx context.Context, question string) Verdict {
	out, err := c.llmClient.Complete(ctx, fmt.Sprintf(classifierPrompt, question), c.temperature)
	if err != nil {
		return c.fallBack(&model.ClassificationError{Err: err})
	}
	kind, ok := parseVerdict(out)
	if !ok {
		return c.fallBack(&model.ClassificationError{Output: out})
	}
	metrics.ObserveClassification(kind.String(), false)
	return Verdict{Kind: kind}
}

func (c *QueryClassifier) fallBack(cause error) Verdict {
	log.Warnf("[QueryClassifier] 分类失败，回退为 %s: %v", c.fallback, cause)
	metrics.ObserveClassification(c.fallback.String(), true)
	return Verdict{Kind: c.fallback, FellBack: true, Cause: cause}
}

// parseVerdict 取模型输出中去掉思考块后的第一个词。
func parseVerdict(out string) (model.QueryKind, bool) {
	out = stripThink(out)
	fields := strings.FieldsFunc(strings.ToLower(out), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	if len(fields) == 0 {
		return model.KindUnstructured, false
	}
	kind, err := model.ParseQueryKind(fields[0])
	if err != nil {
		return model.KindUnstructured, false
	}
	return kind, true
}
