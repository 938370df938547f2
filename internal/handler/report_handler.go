package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"medifusion-go/internal/service"
	"medifusion-go/internal/session"
	"medifusion-go/pkg/log"
	"medifusion-go/pkg/report"
	"medifusion-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// ReportArchive 是报告归档的存储，由 *storage.ReportArchive 实现。
type ReportArchive interface {
	Upload(ctx context.Context, objectName string, data []byte) (string, error)
}

// ReportHandler 负责把缓存的诊断导出为 PDF。
type ReportHandler struct {
	sessions *session.Manager
	archive  ReportArchive
	fileName string
	now      func() time.Time
}

// NewReportHandler 创建一个新的 ReportHandler。archive 为 nil 时不支持归档。
func NewReportHandler(sessions *session.Manager, archive ReportArchive, fileName string) *ReportHandler {
	if fileName == "" {
		fileName = report.DefaultFileName
	}
	return &ReportHandler{sessions: sessions, archive: archive, fileName: fileName, now: time.Now}
}

// Download 生成 PDF 报告。默认以附件形式返回文件；
// archive=1 时上传到对象存储并返回带时效的下载链接。
func (h *ReportHandler) Download(c *gin.Context) {
	id := clientID(c)
	d, err := service.LoadCachedDiagnosis(c.Request.Context(), h.sessions.Store(id))
	if errors.Is(err, service.ErrNoDiagnosis) {
		failure(c, http.StatusNotFound, "No diagnosis available")
		return
	}
	if err != nil {
		log.Error("Download report: 读取缓存诊断失败", err)
		failure(c, http.StatusInternalServerError, "session store unavailable")
		return
	}

	now := h.now()
	var buf bytes.Buffer
	if err := report.Render(&buf, report.Layout(*d, now)); err != nil {
		log.Error("Download report: 生成 PDF 失败", err)
		failure(c, http.StatusInternalServerError, "Failed to generate report")
		return
	}

	if c.Query("archive") != "1" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.fileName))
		c.Data(http.StatusOK, "application/pdf", buf.Bytes())
		return
	}

	if h.archive == nil {
		failure(c, http.StatusServiceUnavailable, "Report archive is not configured")
		return
	}
	url, err := h.archive.Upload(c.Request.Context(), storage.ObjectName(id, h.fileName, now), buf.Bytes())
	if err != nil {
		log.Error("Download report: 归档失败", err)
		failure(c, http.StatusBadGateway, "Failed to archive report")
		return
	}
	success(c, "success", gin.H{"url": url, "fileName": h.fileName})
}
