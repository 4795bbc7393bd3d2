package session

import (
	"context"
	"querybot-go/internal/index"
	"querybot-go/internal/model"
	"querybot-go/internal/repository"
	"querybot-go/pkg/log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IndexFactory 为新会话创建独立的向量索引。
type IndexFactory func(sessionID string) index.VectorIndex

// Manager 以 uuid 为键管理所有活跃会话。
type Manager struct {
	schemaRepo       repository.SchemaRepository
	conversationRepo repository.ConversationRepository
	newIndex         IndexFactory
	window           int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager 创建会话管理器。
func NewManager(schemaRepo repository.SchemaRepository, conversationRepo repository.ConversationRepository, newIndex IndexFactory, window int) *Manager {
	return &Manager{
		schemaRepo:       schemaRepo,
		conversationRepo: conversationRepo,
		newIndex:         newIndex,
		window:           window,
		sessions:         make(map[string]*Session),
	}
}

// Create 为登录用户创建新会话。
func (m *Manager) Create(username string, role model.Role) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		CreatedAt: time.Now(),
	}
	s.Schema = NewSchemaCache(m.schemaRepo, s)
	s.Conversation = NewConversationContext(s.ID, m.conversationRepo, m.window)
	if m.newIndex != nil {
		s.Index = m.newIndex(s.ID)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	log.Infof("[SessionManager] 为用户 %s 创建会话 %s，角色 %s", username, s.ID, role)
	return s
}

// Get 按 id 查找会话。
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close 关闭并移除会话，会话不存在时为空操作。
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	log.Infof("[SessionManager] 关闭会话 %s", id)
	return s.Close(ctx)
}

// CloseAll 关闭所有会话，服务退出时调用。
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil {
			log.Warnf("[SessionManager] 关闭会话 %s 失败: %v", id, err)
		}
	}
}

// Info 是管理接口展示的会话摘要。
type Info struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Role       model.Role `json:"role"`
	CreatedAt  time.Time  `json:"createdAt"`
	Connected  bool       `json:"connected"`
	Database   string     `json:"database,omitempty"`
	Sources    []string   `json:"sources"`
	ChunkCount int        `json:"chunkCount"`
}

// List 返回所有会话的摘要，按创建时间排序。
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		info := Info{
			ID:        s.ID,
			Username:  s.Username,
			Role:      s.Role,
			CreatedAt: s.CreatedAt,
			Connected: s.IsConnected(),
			Database:  s.DatabaseName(),
			Sources:   []string{},
		}
		if s.Index != nil {
			info.Sources = s.Index.Sources()
			info.ChunkCount = s.Index.Len()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
