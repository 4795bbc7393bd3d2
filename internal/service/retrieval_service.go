package service

import (
	"context"
	"fmt"
	"querybot-go/internal/index"
	"querybot-go/internal/model"
	"querybot-go/internal/session"
	"querybot-go/pkg/llm"
	"querybot-go/pkg/log"
	"strings"
)

const (
	noRelevantInfoText = "No relevant information found in the document."
	dontKnowText       = "I don't know."
	maxSnippetLen      = 1000
)

const answerRules = `You are an expert document assistant. Answer the question based ONLY on the numbered context below.
If the answer is not in the context, say you don't know. Do not make up answers.`

// Answer 是检索问答的结果。Text 已附带来源列表。
type Answer struct {
	Text    string                `json:"text"`
	Sources []model.SourceRef     `json:"sources"`
	Chunks  []model.DocumentChunk `json:"-"`
}

// RetrievalAnswerer 基于会话文档索引回答问题并标注来源。
type RetrievalAnswerer struct {
	llmClient   llm.Client
	params      index.SearchParams
	temperature float64
}

// NewRetrievalAnswerer 创建检索问答器。
func NewRetrievalAnswerer(llmClient llm.Client, params index.SearchParams, temperature float64) *RetrievalAnswerer {
	return &RetrievalAnswerer{llmClient: llmClient, params: params, temperature: temperature}
}

// Retrieve 只做 MMR 检索，不调用模型。
func (r *RetrievalAnswerer) Retrieve(ctx context.Context, sess *session.Session, question string) ([]model.DocumentChunk, error) {
	if !sess.HasCorpus() {
		return nil, model.ErrNoCorpus
	}
	return sess.Index.Search(ctx, question, r.params)
}

// Search 以 k 覆盖默认返回数量做检索，k<=0 时使用默认值。
func (r *RetrievalAnswerer) Search(ctx context.Context, sess *session.Session, query string, k int) ([]model.DocumentChunk, error) {
	if !sess.HasCorpus() {
		return nil, model.ErrNoCorpus
	}
	params := r.params
	if k > 0 {
		params.K = k
	}
	return sess.Index.Search(ctx, query, params)
}

// Answer 检索相关切块并让模型只依据这些内容作答。
// 索引为空返回 model.ErrNoCorpus；检索无结果时不调用模型。
func (r *RetrievalAnswerer) Answer(ctx context.Context, sess *session.Session, question string) (*Answer, error) {
	chunks, err := r.Retrieve(ctx, sess, question)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		log.Infof("[RetrievalAnswerer] 会话 %s 未检索到相关内容", sess.ID)
		return &Answer{Text: noRelevantInfoText, Sources: []model.SourceRef{}}, nil
	}

	history, err := sess.Conversation.Window(ctx)
	if err != nil {
		log.Warnf("[RetrievalAnswerer] 读取对话记录失败: %v", err)
		history = nil
	}

	out, err := r.llmClient.Chat(ctx, composeMessages(buildContextText(chunks), history, question), &llm.GenerationParams{Temperature: &r.temperature})
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(stripThink(out))
	if text == "" {
		text = dontKnowText
	}

	sources := dedupSources(chunks)
	return &Answer{Text: appendSources(text, sources), Sources: sources, Chunks: chunks}, nil
}

// buildContextText 生成带编号的上下文块 "[i] (source p.N) text"。
func buildContextText(chunks []model.DocumentChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		snippet := c.Text
		if r := []rune(snippet); len(r) > maxSnippetLen {
			snippet = string(r[:maxSnippetLen]) + "…"
		}
		label := c.SourceID
		if label == "" {
			label = "unknown"
		}
		if c.PageNumber > 0 {
			fmt.Fprintf(&b, "[%d] (%s p.%d) %s\n", i+1, label, c.PageNumber, snippet)
		} else {
			fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, label, snippet)
		}
	}
	return b.String()
}

func composeMessages(contextText string, history []model.ConversationTurn, question string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: answerRules + "\n\nContext:\n" + contextText})
	for _, t := range history {
		msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: question})
	return msgs
}

// dedupSources 按首次出现顺序返回不重复的来源。
func dedupSources(chunks []model.DocumentChunk) []model.SourceRef {
	seen := make(map[model.SourceRef]struct{})
	out := make([]model.SourceRef, 0, len(chunks))
	for _, c := range chunks {
		ref := model.SourceRef{SourceID: c.SourceID, PageNumber: c.PageNumber}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

func appendSources(text string, sources []model.SourceRef) string {
	if len(sources) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nSources:")
	for _, s := range sources {
		b.WriteString("\n- " + s.String())
	}
	return b.String()
}
