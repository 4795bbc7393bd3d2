package handler

import (
	"net/http"
	"querybot-go/internal/service"
	"querybot-go/pkg/log"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SearchHandler 提供不经过模型的原始检索接口。
type SearchHandler struct {
	retriever *service.RetrievalAnswerer
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(retriever *service.RetrievalAnswerer) *SearchHandler {
	return &SearchHandler{retriever: retriever}
}

// Search 返回 MMR 选出的切块。
func (h *SearchHandler) Search(c *gin.Context) {
	sess, found := mustSession(c)
	if !found {
		return
	}
	query := c.Query("query")
	if query == "" {
		log.Warnf("[SearchHandler] 搜索请求失败: query 参数为空")
		fail(c, http.StatusBadRequest, "query is required")
		return
	}
	k, err := strconv.Atoi(c.DefaultQuery("k", "0"))
	if err != nil || k < 0 {
		k = 0
	}

	results, err := h.retriever.Search(c.Request.Context(), sess, query, k)
	if err != nil {
		log.Warnf("[SearchHandler] 会话 %s 检索失败: %v", sess.ID, err)
		failErr(c, err)
		return
	}
	log.Infof("[SearchHandler] 检索成功, query: '%s', 返回 %d 条结果", query, len(results))
	ok(c, "success", results)
}
