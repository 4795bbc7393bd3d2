// Package model 包含了应用的数据模型定义。
package model

import "time"

// TurnRole 标识一条对话消息的发送方。
type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
)

// ConversationTurn 代表会话中的单条对话消息，写入后不再修改。
type ConversationTurn struct {
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn 以当前时间创建一条对话消息。
func NewTurn(role TurnRole, content string) ConversationTurn {
	return ConversationTurn{Role: role, Content: content, Timestamp: time.Now()}
}
