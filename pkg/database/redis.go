package database

import (
	"context"
	"fmt"
	"querybot-go/internal/config"
	"querybot-go/pkg/log"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedis 创建 Redis 客户端并测试连通性。
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", cfg.Addr, err)
	}

	log.Infof("Redis 客户端连接成功: %s", cfg.Addr)
	return rdb, nil
}
