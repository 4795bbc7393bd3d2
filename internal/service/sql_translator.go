package service

import (
	"context"
	"fmt"
	"querybot-go/internal/model"
	"querybot-go/pkg/llm"
	"querybot-go/pkg/log"
	"strings"
)

const translatorPrompt = `You are an expert MySQL assistant.
Generate one SQL query that answers the user's question against the database schema below.
Maintain context from previous questions when appropriate.
The query must be a single read-only SELECT statement that is valid and executable against the schema.
Respond with exactly one fenced code block tagged sql and no other prose.

Database Schema:
%s

Conversation History:
%s

Current Question: %s

Your response:`

// SQLTranslator 把自然语言问题翻译为 SQL，返回模型原始输出。
type SQLTranslator struct {
	llmClient   llm.Client
	temperature float64
}

// NewSQLTranslator 创建 SQL 翻译器。
func NewSQLTranslator(llmClient llm.Client, temperature float64) *SQLTranslator {
	return &SQLTranslator{llmClient: llmClient, temperature: temperature}
}

// Translate 以完整 DDL、最近对话与当前问题构建提示词并调用模型。
func (t *SQLTranslator) Translate(ctx context.Context, question string, schema model.SchemaSnapshot, history []model.ConversationTurn) (string, error) {
	prompt := fmt.Sprintf(translatorPrompt, schema.DDL, renderHistory(history), question)
	raw, err := t.llmClient.Complete(ctx, prompt, t.temperature)
	if err != nil {
		log.Errorf("[SQLTranslator] 调用模型失败: %v", err)
		return "", err
	}
	return raw, nil
}

// renderHistory 把对话渲染为 "role: content" 行。
func renderHistory(turns []model.ConversationTurn) string {
	if len(turns) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}
	return strings.Join(lines, "\n")
}
