// Package llm provides a client for OpenAI-compatible chat completion backends.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"querybot-go/internal/config"
	"querybot-go/internal/model"
	"querybot-go/pkg/log"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以单条 user 消息调用模型，返回完整回复文本。
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)
	// Chat 以 role-based 消息与可选生成参数调用模型。
	Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
	events *zap.Logger
}

// NewClient creates a new LLM client. 若配置了 event_log_path，每次调用的 prompt 与回复以 JSON 行追加到该文件。
func NewClient(cfg config.LLMConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		events: newEventLogger(cfg.EventLogPath),
	}
}

// newEventLogger 构造写入 {"event","timestamp","text"} 行的 logger。
func newEventLogger(path string) *zap.Logger {
	if path == "" {
		return zap.NewNop()
	}
	sink, _, err := zap.Open(path)
	if err != nil {
		log.Warnf("[LLMClient] 无法打开事件日志 %s: %v", path, err)
		return zap.NewNop()
	}
	encCfg := zapcore.EncoderConfig{
		MessageKey: "event",
		TimeKey:    "timestamp",
		EncodeTime: zapcore.ISO8601TimeEncoder,
	}
	return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, zapcore.InfoLevel))
}

// Complete implements Client.
func (c *openAICompatibleClient) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	t := temperature
	return c.Chat(ctx, []Message{{Role: "user", Content: prompt}}, &GenerationParams{Temperature: &t})
}

// Chat implements Client.
func (c *openAICompatibleClient) Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   false,
	}
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.TopP = gen.TopP
		reqBody.MaxTokens = gen.MaxTokens
	}
	if reqBody.MaxTokens == nil && c.cfg.MaxTokens > 0 {
		m := c.cfg.MaxTokens
		reqBody.MaxTokens = &m
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	c.events.Info("llm_start", zap.String("text", renderMessages(messages)))

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[LLMClient] 调用 chat API 失败, error: %v", err)
		return "", &model.ModelUnavailableError{Err: fmt.Errorf("failed to call chat api: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Errorf("[LLMClient] chat API 返回非 200 状态码: %s", resp.Status)
		return "", &model.ModelUnavailableError{Err: fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))}
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &model.ModelUnavailableError{Err: fmt.Errorf("failed to decode chat response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return "", &model.ModelUnavailableError{Err: fmt.Errorf("chat api returned no choices")}
	}

	content := chatResp.Choices[0].Message.Content
	c.events.Info("llm_end", zap.String("text", content))
	log.Debugf("[LLMClient] 模型返回 %d 字符", len(content))
	return content, nil
}

// renderMessages 将消息拼接为单段文本用于事件日志。
func renderMessages(messages []Message) string {
	if len(messages) == 1 {
		return messages[0].Content
	}
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
