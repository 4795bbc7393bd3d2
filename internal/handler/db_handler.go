package handler

import (
	"net/http"
	"querybot-go/internal/config"
	"querybot-go/pkg/database"
	"querybot-go/pkg/log"
	"time"

	"github.com/gin-gonic/gin"
)

// DBHandler 管理会话的数据库连接与结构信息。
type DBHandler struct {
	defaults config.DatabaseConfig
}

// NewDBHandler 创建 DBHandler，defaults 用于补全连接表单中缺省的字段。
func NewDBHandler(defaults config.DatabaseConfig) *DBHandler {
	return &DBHandler{defaults: defaults}
}

// ConnectRequest 是连接表单。空字段使用配置中的默认值。
type ConnectRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// SchemaView 是返回给前端的结构信息。
type SchemaView struct {
	Database  string    `json:"database"`
	Tables    []string  `json:"tables"`
	DDL       string    `json:"ddl"`
	Metadata  string    `json:"metadata"`
	FetchedAt time.Time `json:"fetchedAt"`
}

func (h *DBHandler) params(req ConnectRequest) database.ConnectParams {
	p := database.ConnectParams{
		Host:     req.Host,
		Port:     req.Port,
		User:     req.User,
		Password: req.Password,
		Database: req.Database,
	}
	if p.Host == "" {
		p.Host = h.defaults.Host
	}
	if p.Port == 0 {
		p.Port = h.defaults.Port
	}
	if p.User == "" {
		p.User = h.defaults.User
	}
	if p.Database == "" {
		p.Database = h.defaults.Name
	}
	return p
}

// Connect 为当前会话建立连接，替换已有连接。
func (h *DBHandler) Connect(c *gin.Context) {
	sess, found := mustSession(c)
	if !found {
		return
	}
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid connection form")
		return
	}
	p := h.params(req)
	if p.Database == "" {
		fail(c, http.StatusBadRequest, "database name is required")
		return
	}

	if err := sess.Connect(c.Request.Context(), p, h.defaults.ConnectTimeout); err != nil {
		log.Warnf("[DBHandler] 会话 %s 连接 %s 失败: %v", sess.ID, p.Addr(), err)
		failErr(c, err)
		return
	}
	ok(c, "connected", gin.H{"host": p.Host, "port": p.Port, "user": p.User, "database": p.Database})
}

// Disconnect 关闭当前会话的连接。
func (h *DBHandler) Disconnect(c *gin.Context) {
	sess, found := mustSession(c)
	if !found {
		return
	}
	if err := sess.Disconnect(); err != nil {
		log.Warnf("[DBHandler] 关闭会话 %s 的连接失败: %v", sess.ID, err)
	}
	ok(c, "disconnected", nil)
}

// Schema 返回缓存的结构信息，首次访问时内省。
func (h *DBHandler) Schema(c *gin.Context) {
	sess, found := mustSession(c)
	if !found {
		return
	}
	snap, err := sess.Schema.Get(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "success", SchemaView{
		Database:  snap.Database,
		Tables:    snap.Tables,
		DDL:       snap.DDL,
		Metadata:  snap.Metadata,
		FetchedAt: snap.FetchedAt,
	})
}

// RefreshSchema 丢弃缓存后重新内省。
func (h *DBHandler) RefreshSchema(c *gin.Context) {
	sess, found := mustSession(c)
	if !found {
		return
	}
	sess.Schema.Invalidate()
	h.Schema(c)
}
