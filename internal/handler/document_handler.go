package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"querybot-go/internal/service"
	"querybot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责会话文档集合的上传与查看。
type DocumentHandler struct {
	corpus    *service.CorpusService
	uploadDir string
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。uploadDir 为空时使用系统临时目录。
func NewDocumentHandler(corpus *service.CorpusService, uploadDir string) *DocumentHandler {
	return &DocumentHandler{corpus: corpus, uploadDir: uploadDir}
}

// Upload 接收 multipart 表单中的全部 files 字段，并用它们整体替换会话的文档集合。
func (h *DocumentHandler) Upload(c *gin.Context) {
	sess, found := mustSession(c)
	if !found {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, "multipart form with files is required")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		fail(c, http.StatusBadRequest, "at least one file is required")
		return
	}

	dir, err := os.MkdirTemp(h.uploadDir, "querybot-upload-*")
	if err != nil {
		log.Errorf("[DocumentHandler] 创建临时目录失败: %v", err)
		fail(c, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer os.RemoveAll(dir)

	seen := make(map[string]struct{}, len(files))
	docs := make([]service.DocumentUpload, 0, len(files))
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if name == "." || name == string(filepath.Separator) {
			fail(c, http.StatusBadRequest, "invalid file name")
			return
		}
		if _, dup := seen[name]; dup {
			fail(c, http.StatusBadRequest, "duplicate file name: "+name)
			return
		}
		seen[name] = struct{}{}

		dst := filepath.Join(dir, name)
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			log.Errorf("[DocumentHandler] 保存上传文件 %s 失败: %v", name, err)
			fail(c, http.StatusInternalServerError, "failed to store upload")
			return
		}
		docs = append(docs, service.DocumentUpload{Name: name, Path: dst, ContentType: fh.Header.Get("Content-Type")})
	}

	log.Infof("[DocumentHandler] 会话 %s 上传 %d 个文档，开始重建索引", sess.ID, len(docs))
	report, err := h.corpus.Replace(c.Request.Context(), sess, docs)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": report})
		return
	}
	ok(c, "documents indexed", report)
}

// List 返回当前会话已索引的文档。
func (h *DocumentHandler) List(c *gin.Context) {
	sess, found := mustSession(c)
	if !found {
		return
	}
	ok(c, "success", h.corpus.List(c.Request.Context(), sess))
}
