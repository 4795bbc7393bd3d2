// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"querybot-go/internal/app"
	"querybot-go/internal/config"
	"querybot-go/internal/handler"
	"querybot-go/internal/middleware"
	"querybot-go/pkg/log"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to config.yaml")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 装配存储、模型客户端与业务服务
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.Build(initCtx, cfg)
	cancelInit()
	if err != nil {
		log.Fatal("服务装配失败", err)
	}

	// 4. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 5. 注册路由
	handler.RegisterRoutes(r, handler.Deps{
		Auth:      application.Auth,
		Sessions:  application.Sessions,
		Router:    application.Router,
		Retriever: application.Retriever,
		Corpus:    application.Corpus,
		Database:  cfg.Database,
		UploadDir: cfg.Server.UploadDir,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 关闭所有会话的数据库连接与索引，再关闭外部客户端。
	application.Close()
	log.Info("服务已优雅关闭")
}
