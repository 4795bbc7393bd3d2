// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"querybot-go/internal/model"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ConversationRepository 定义了会话对话记录的操作接口。记录只追加，不修改。
type ConversationRepository interface {
	Append(ctx context.Context, sessionID string, turns ...model.ConversationTurn) error
	History(ctx context.Context, sessionID string) ([]model.ConversationTurn, error)
	Delete(ctx context.Context, sessionID string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
	maxTurns    int
	ttl         time.Duration
}

// NewConversationRepository 创建一个基于 Redis 列表的 ConversationRepository。
// 每个会话最多保留 maxTurns 条，超出部分从最旧的开始淘汰。
func NewConversationRepository(redisClient *redis.Client, maxTurns int, ttl time.Duration) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, maxTurns: maxTurns, ttl: ttl}
}

func conversationKey(sessionID string) string {
	return fmt.Sprintf("querybot:conversation:%s", sessionID)
}

// Append 在一个事务管道中追加消息、裁剪长度并刷新过期时间。
func (r *redisConversationRepository) Append(ctx context.Context, sessionID string, turns ...model.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation turn: %w", err)
		}
		values = append(values, b)
	}

	key := conversationKey(sessionID)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if r.maxTurns > 0 {
			pipe.LTrim(ctx, key, int64(-r.maxTurns), -1)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append conversation history: %w", err)
	}
	return nil
}

// History 按时间顺序返回会话的全部对话记录。
func (r *redisConversationRepository) History(ctx context.Context, sessionID string) ([]model.ConversationTurn, error) {
	items, err := r.redisClient.LRange(ctx, conversationKey(sessionID), 0, -1).Result()
	if err == redis.Nil {
		return []model.ConversationTurn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	turns := make([]model.ConversationTurn, 0, len(items))
	for _, item := range items {
		var t model.ConversationTurn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (r *redisConversationRepository) Delete(ctx context.Context, sessionID string) error {
	return r.redisClient.Del(ctx, conversationKey(sessionID)).Err()
}

type memoryConversationRepository struct {
	mu       sync.RWMutex
	maxTurns int
	turns    map[string][]model.ConversationTurn
}

// NewMemoryConversationRepository 创建进程内的 ConversationRepository，未配置 Redis 时使用。
func NewMemoryConversationRepository(maxTurns int) ConversationRepository {
	return &memoryConversationRepository{maxTurns: maxTurns, turns: make(map[string][]model.ConversationTurn)}
}

func (r *memoryConversationRepository) Append(_ context.Context, sessionID string, turns ...model.ConversationTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := append(r.turns[sessionID], turns...)
	if r.maxTurns > 0 && len(all) > r.maxTurns {
		all = append([]model.ConversationTurn(nil), all[len(all)-r.maxTurns:]...)
	}
	r.turns[sessionID] = all
	return nil
}

func (r *memoryConversationRepository) History(_ context.Context, sessionID string) ([]model.ConversationTurn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ConversationTurn, len(r.turns[sessionID]))
	copy(out, r.turns[sessionID])
	return out, nil
}

func (r *memoryConversationRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.turns, sessionID)
	return nil
}
