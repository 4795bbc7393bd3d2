package session

import (
	"context"
	"querybot-go/internal/model"
	"querybot-go/internal/repository"
)

// ConversationContext 是会话的对话记录视图。记录只追加，下游只看到最近 window 条。
type ConversationContext struct {
	sessionID string
	store     repository.ConversationRepository
	window    int
}

// NewConversationContext 创建对话上下文，window<=0 时使用 4。
func NewConversationContext(sessionID string, store repository.ConversationRepository, window int) *ConversationContext {
	if window <= 0 {
		window = 4
	}
	return &ConversationContext{sessionID: sessionID, store: store, window: window}
}

// Append 追加一条或多条对话。
func (c *ConversationContext) Append(ctx context.Context, turns ...model.ConversationTurn) error {
	return c.store.Append(ctx, c.sessionID, turns...)
}

// Window 返回最近 window 条对话，按时间顺序。
func (c *ConversationContext) Window(ctx context.Context) ([]model.ConversationTurn, error) {
	turns, err := c.store.History(ctx, c.sessionID)
	if err != nil {
		return nil, err
	}
	if len(turns) > c.window {
		turns = turns[len(turns)-c.window:]
	}
	return turns, nil
}

// Turns 返回全部已保存的对话。
func (c *ConversationContext) Turns(ctx context.Context) ([]model.ConversationTurn, error) {
	return c.store.History(ctx, c.sessionID)
}

// Clear 删除会话的对话记录。
func (c *ConversationContext) Clear(ctx context.Context) error {
	return c.store.Delete(ctx, c.sessionID)
}
