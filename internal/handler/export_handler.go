package handler

import (
	"fmt"
	"net/http"
	"querybot-go/internal/service"
	"querybot-go/pkg/log"
	"time"

	"github.com/gin-gonic/gin"
)

// ExportHandler 导出最近一次成功查询的完整结果。
type ExportHandler struct{}

// NewExportHandler 创建一个新的 ExportHandler。
func NewExportHandler() *ExportHandler {
	return &ExportHandler{}
}

// Export 以 CSV 附件返回最近一次成功查询的全部行。
func (h *ExportHandler) Export(c *gin.Context) {
	sess, found := mustSession(c)
	if !found {
		return
	}
	result := sess.LastResult()
	if result == nil {
		fail(c, http.StatusNotFound, "no query result to export")
		return
	}
	data, err := service.ToExport(result)
	if err != nil {
		log.Errorf("[ExportHandler] 生成 CSV 失败: %v", err)
		fail(c, http.StatusInternalServerError, "failed to build export")
		return
	}
	if data == nil {
		fail(c, http.StatusNotFound, "last query returned no rows")
		return
	}

	name := fmt.Sprintf("query_result_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}
