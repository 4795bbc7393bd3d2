package handler

import (
	"encoding/json"
	"net/http"
	"querybot-go/internal/service"
	"querybot-go/internal/session"
	"querybot-go/pkg/log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
)

// ChatHandler 负责问答请求，支持普通 HTTP 与 WebSocket 两种通道。
type ChatHandler struct {
	router *service.HybridRouter
	auth   *service.AuthService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(router *service.HybridRouter, auth *service.AuthService) *ChatHandler {
	return &ChatHandler{router: router, auth: auth}
}

// AskRequest 是一次提问。
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// Ask 处理一次 HTTP 提问。即使出错也返回路由器生成的提示文本。
func (h *ChatHandler) Ask(c *gin.Context) {
	sess, found := mustSession(c)
	if !found {
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		fail(c, http.StatusBadRequest, "question is required")
		return
	}

	resp, err := h.router.Ask(c.Request.Context(), sess, strings.TrimSpace(req.Question))
	status := statusFor(err)
	message := "success"
	if err != nil {
		message = err.Error()
	}
	c.JSON(status, gin.H{"code": status, "message": message, "data": resp})
}

// wsMessage 是 WebSocket 通道上发送给客户端的消息。
type wsMessage struct {
	Type      string            `json:"type"`
	Response  *service.Response `json:"response,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Handle 处理一个 WebSocket 连接。token 放在路径中，客户端每条消息是一个问题，
// 可以是纯文本或 {"question": "..."}。每个问题依次回复 answer（或 error）与 completion。
func (h *ChatHandler) Handle(c *gin.Context) {
	sess, claims, err := h.auth.Resolve(c.Param("token"))
	if err != nil {
		fail(c, http.StatusUnauthorized, "invalid or expired session")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("[ChatHandler] WebSocket 连接已建立，用户: %s, 会话: %s", claims.Username, sess.ID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("[ChatHandler] 从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		question := parseQuestion(message)
		if question == "" {
			if err := writeWS(conn, wsMessage{Type: "error", Error: "question is required"}); err != nil {
				return
			}
			continue
		}
		if err := h.answer(c, conn, sess, question); err != nil {
			log.Warnf("[ChatHandler] 写入 WebSocket 失败: %v", err)
			return
		}
	}
}

func (h *ChatHandler) answer(c *gin.Context, conn *websocket.Conn, sess *session.Session, question string) error {
	resp, err := h.router.Ask(c.Request.Context(), sess, question)
	msg := wsMessage{Type: "answer", Response: resp}
	if err != nil {
		msg.Type = "error"
		msg.Error = err.Error()
	}
	if err := writeWS(conn, msg); err != nil {
		return err
	}
	return writeWS(conn, wsMessage{Type: "completion"})
}

func parseQuestion(message []byte) string {
	text := strings.TrimSpace(string(message))
	if strings.HasPrefix(text, "{") {
		var req AskRequest
		if err := json.Unmarshal(message, &req); err == nil {
			return strings.TrimSpace(req.Question)
		}
	}
	return text
}

func writeWS(conn *websocket.Conn, msg wsMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}
