package handler

import (
	"net/http"
	"querybot-go/internal/config"
	"querybot-go/internal/middleware"
	"querybot-go/internal/service"
	"querybot-go/internal/session"
	"querybot-go/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Deps 汇总注册路由所需的服务。
type Deps struct {
	Auth      *service.AuthService
	Sessions  *session.Manager
	Router    *service.HybridRouter
	Retriever *service.RetrievalAnswerer
	Corpus    *service.CorpusService
	Database  config.DatabaseConfig
	UploadDir string
}

// RegisterRoutes 在 r 上注册全部 API 路由。
func RegisterRoutes(r *gin.Engine, d Deps) {
	authHandler := NewAuthHandler(d.Auth)
	dbHandler := NewDBHandler(d.Database)
	chatHandler := NewChatHandler(d.Router, d.Auth)
	docHandler := NewDocumentHandler(d.Corpus, d.UploadDir)
	searchHandler := NewSearchHandler(d.Retriever)
	exportHandler := NewExportHandler()
	conversationHandler := NewConversationHandler()
	adminHandler := NewAdminHandler(d.Sessions, d.Auth)

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/login", authHandler.Login)
		apiV1.GET("/chat/ws/:token", chatHandler.Handle)

		authed := apiV1.Group("/")
		authed.Use(middleware.AuthMiddleware(d.Auth))
		{
			authed.POST("/auth/logout", authHandler.Logout)

			authed.POST("/db/connect", dbHandler.Connect)
			authed.POST("/db/disconnect", dbHandler.Disconnect)
			authed.GET("/db/schema", dbHandler.Schema)
			authed.POST("/db/schema/refresh", dbHandler.RefreshSchema)

			authed.POST("/chat/ask", chatHandler.Ask)
			authed.GET("/conversation", conversationHandler.GetConversation)
			authed.GET("/export", exportHandler.Export)

			authed.POST("/documents", docHandler.Upload)
			authed.GET("/documents", docHandler.List)
			authed.GET("/search", searchHandler.Search)
		}

		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(d.Auth), middleware.AdminAuthMiddleware())
		{
			admin.GET("/sessions", adminHandler.ListSessions)
			admin.DELETE("/sessions/:id", adminHandler.CloseSession)
		}
	}
}
