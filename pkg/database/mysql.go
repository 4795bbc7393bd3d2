// Package database 负责创建到目标 MySQL 与 Redis 的连接。
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectParams 是连接目标数据库所需的参数，只在连接时使用，不做持久化。
type ConnectParams struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// Addr 返回 host:port。
func (p ConnectParams) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// DSN 构造带连接超时的 DSN，读写超时交给调用方的 context 控制。
func (p ConnectParams) DSN(timeout time.Duration) string {
	cfg := gomysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = p.Addr()
	cfg.DBName = p.Database
	cfg.Timeout = timeout
	cfg.ParseTime = true
	cfg.Loc = time.Local
	return cfg.FormatDSN()
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	}
}

// OpenMySQL 为单个会话打开 MySQL 连接。连接池只保留一个连接，保证同一时刻只有一条语句在执行。
func OpenMySQL(ctx context.Context, p ConnectParams, timeout time.Duration) (*gorm.DB, error) {
	if p.Port == 0 {
		p.Port = 3306
	}
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       p.DSN(timeout),
		SkipInitializeWithVersion: true,
	}), gormConfig())
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// FromConn 在已有的 *sql.DB 上构造 gorm 句柄，供测试与 CLI 复用。
func FromConn(conn *sql.DB) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      conn,
		SkipInitializeWithVersion: true,
	}), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to wrap sql connection: %w", err)
	}
	return db, nil
}

// Close 关闭底层连接。
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
