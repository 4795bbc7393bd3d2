package session

import (
	"context"
	"fmt"
	"querybot-go/internal/model"
	"querybot-go/internal/repository"
	"querybot-go/pkg/log"
	"sync"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// conn 是 SchemaCache 访问数据库所需的会话能力。
type conn interface {
	WithConn(ctx context.Context, fn func(db *gorm.DB) error) error
	DatabaseName() string
}

// SchemaCache 懒加载并缓存当前连接的数据库结构。每次连接最多内省一次，
// 同一会话上并发的未命中合并为一次内省。
type SchemaCache struct {
	repo  repository.SchemaRepository
	conn  conn
	group singleflight.Group

	mu       sync.RWMutex
	snapshot *model.SchemaSnapshot
	epoch    uint64
}

// NewSchemaCache 创建一个空的结构缓存。
func NewSchemaCache(repo repository.SchemaRepository, c conn) *SchemaCache {
	return &SchemaCache{repo: repo, conn: c}
}

// Get 返回缓存的结构快照，未命中时内省数据库。
// 未连接时返回 model.ErrNotConnected，内省失败返回 *model.MetadataError。
func (c *SchemaCache) Get(ctx context.Context) (model.SchemaSnapshot, error) {
	c.mu.RLock()
	if c.snapshot != nil {
		snap := *c.snapshot
		c.mu.RUnlock()
		return snap, nil
	}
	epoch := c.epoch
	c.mu.RUnlock()

	// 内省不随发起者取消，等待中的调用方各自响应自己的 ctx。
	ch := c.group.DoChan(fmt.Sprintf("schema-%d", epoch), func() (interface{}, error) {
		ictx := context.WithoutCancel(ctx)
		var snap model.SchemaSnapshot
		err := c.conn.WithConn(ictx, func(db *gorm.DB) error {
			var err error
			snap, err = c.repo.Introspect(ictx, db)
			return err
		})
		if err != nil {
			return nil, err
		}
		snap.Database = c.conn.DatabaseName()

		c.mu.Lock()
		if c.epoch == epoch {
			c.snapshot = &snap
		}
		c.mu.Unlock()
		log.Infof("[SchemaCache] 已加载数据库 %s 的结构，共 %d 张表", snap.Database, len(snap.Tables))
		return snap, nil
	})
	select {
	case <-ctx.Done():
		return model.SchemaSnapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.SchemaSnapshot{}, res.Err
		}
		return res.Val.(model.SchemaSnapshot), nil
	}
}

// Invalidate 清空缓存，下一次 Get 会重新内省。进行中的内省结果不会再写入缓存。
func (c *SchemaCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	c.epoch++
}

// Cached 判断当前是否已有缓存快照。
func (c *SchemaCache) Cached() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot != nil
}
