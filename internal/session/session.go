// Package session 保存单个用户会话的全部状态：数据库连接、结构缓存、对话与文档索引。
package session

import (
	"context"
	"querybot-go/internal/index"
	"querybot-go/internal/model"
	"querybot-go/pkg/database"
	"querybot-go/pkg/log"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Session 是一个用户会话，不同会话之间不共享任何状态。
type Session struct {
	ID        string
	Username  string
	Role      model.Role
	CreatedAt time.Time

	Schema       *SchemaCache
	Conversation *ConversationContext
	Index        index.VectorIndex

	// stmtMu 保证同一会话同一时刻只有一条语句在执行。
	stmtMu sync.Mutex

	mu          sync.RWMutex
	db          *gorm.DB
	params      database.ConnectParams
	connectedAt time.Time
	lastAttempt *model.QueryAttempt
	lastResult  *model.QueryResult
	corpusKey   string
}

// Connect 打开到目标数据库的连接，替换已有连接并使结构缓存失效。
// 连接失败时返回 *model.ConnectionError，原有连接保持不变。
func (s *Session) Connect(ctx context.Context, p database.ConnectParams, timeout time.Duration) error {
	db, err := database.OpenMySQL(ctx, p, timeout)
	if err != nil {
		return &model.ConnectionError{Addr: p.Addr(), Err: err}
	}
	s.Attach(db, p)
	log.Infof("[Session] 会话 %s 已连接数据库 %s/%s", s.ID, p.Addr(), p.Database)
	return nil
}

// Attach 使用已打开的连接，供测试与命令行复用。
func (s *Session) Attach(db *gorm.DB, p database.ConnectParams) {
	p.Password = ""
	s.mu.Lock()
	old := s.db
	s.db = db
	s.params = p
	s.connectedAt = time.Now()
	s.mu.Unlock()

	if old != nil && old != db {
		if err := database.Close(old); err != nil {
			log.Warnf("[Session] 关闭旧连接失败: %v", err)
		}
	}
	s.invalidateSchema()
}

func (s *Session) invalidateSchema() {
	if s.Schema != nil {
		s.Schema.Invalidate()
	}
}

// Disconnect 关闭连接并清空结构缓存，未连接时为空操作。
func (s *Session) Disconnect() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.params = database.ConnectParams{}
	s.mu.Unlock()

	s.invalidateSchema()
	if db == nil {
		return nil
	}
	log.Infof("[Session] 会话 %s 已断开数据库连接", s.ID)
	return database.Close(db)
}

// IsConnected 判断会话当前是否持有数据库连接。
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// ConnectionInfo 返回当前连接参数（不含密码）。
func (s *Session) ConnectionInfo() (database.ConnectParams, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params, s.db != nil
}

// DatabaseName 返回当前连接的库名。
func (s *Session) DatabaseName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.Database
}

// WithConn 在持有语句锁的情况下执行 fn。未连接时返回 model.ErrNotConnected。
func (s *Session) WithConn(ctx context.Context, fn func(db *gorm.DB) error) error {
	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()

	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return model.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(db)
}

// LastAttempt 返回最近一次结构化查询记录。
func (s *Session) LastAttempt() *model.QueryAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAttempt
}

// SetLastAttempt 记录最近一次结构化查询，成功时同时替换可导出的结果。
func (s *Session) SetLastAttempt(a *model.QueryAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAttempt = a
	if a.Succeeded() {
		s.lastResult = a.Result
	}
}

// LastResult 返回最近一次成功查询的结果，用于导出。失败的查询不会覆盖它。
func (s *Session) LastResult() *model.QueryResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

// CorpusKey 返回当前已索引文档集合的标识。
func (s *Session) CorpusKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.corpusKey
}

// SetCorpusKey 在索引重建成功后记录新的文档集合标识。
func (s *Session) SetCorpusKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corpusKey = key
}

// HasCorpus 判断会话是否有可检索的文档。
func (s *Session) HasCorpus() bool {
	return s.Index != nil && s.Index.Len() > 0
}

// Close 释放会话持有的连接与索引。
func (s *Session) Close(ctx context.Context) error {
	err := s.Disconnect()
	if s.Index != nil && s.Index.Len() > 0 {
		if clearErr := s.Index.Clear(ctx); clearErr != nil {
			log.Warnf("[Session] 清理会话 %s 的索引失败: %v", s.ID, clearErr)
		}
	}
	if s.Conversation != nil {
		if delErr := s.Conversation.Clear(ctx); delErr != nil {
			log.Warnf("[Session] 清理会话 %s 的对话记录失败: %v", s.ID, delErr)
		}
	}
	return err
}
