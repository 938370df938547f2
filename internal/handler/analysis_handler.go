package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"medifusion-go/internal/model"
	"medifusion-go/internal/service"
	"medifusion-go/internal/session"
	"medifusion-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// maxAttachmentBytes 是单个症状附件的大小上限。
const maxAttachmentBytes = 10 << 20

var errAttachmentTooLarge = errors.New("attachment exceeds 10 MB")

// AnalysisHandler 负责症状分析的 REST 接口。
// 只有 Submit 会创建工作流，其余接口都是只读查询。
type AnalysisHandler struct {
	analyses *service.AnalysisRegistry
	sessions *session.Manager
}

// NewAnalysisHandler 创建一个新的 AnalysisHandler。
func NewAnalysisHandler(analyses *service.AnalysisRegistry, sessions *session.Manager) *AnalysisHandler {
	return &AnalysisHandler{analyses: analyses, sessions: sessions}
}

// SubmitRequest 是 JSON 形式的提交请求体。
type SubmitRequest struct {
	Symptoms string `json:"symptoms"`
}

// Submit 提交症状。支持 JSON {"symptoms": "..."} 或 multipart 表单（symptoms + 可选的 file）。
// 返回提交后的快照，通常处于 processing 状态，之后通过 GET 或 /predict 获取进度。
func (h *AnalysisHandler) Submit(c *gin.Context) {
	sub, err := bindSubmission(c)
	if err != nil {
		log.Warnf("Submit: Invalid request payload, error: %v", err)
		failure(c, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.analyses.Get(clientID(c)).Submit(c.Request.Context(), sub)
	if err != nil {
		respondSubmitError(c, err)
		return
	}
	success(c, "success", snap)
}

// Get 返回当前快照。没有提交过的客户端得到 Idle。
func (h *AnalysisHandler) Get(c *gin.Context) {
	wf, ok := h.analyses.Peek(clientID(c))
	if !ok {
		success(c, "success", service.Snapshot{State: service.StateIdle})
		return
	}
	success(c, "success", wf.Snapshot())
}

// Cancel 卸载工作流，停止轮询。
func (h *AnalysisHandler) Cancel(c *gin.Context) {
	h.analyses.Release(clientID(c))
	success(c, "success", service.Snapshot{State: service.StateIdle})
}

// Last 返回缓存的最近一次诊断结果。
func (h *AnalysisHandler) Last(c *gin.Context) {
	d, err := service.LoadCachedDiagnosis(c.Request.Context(), h.sessions.Store(clientID(c)))
	if errors.Is(err, service.ErrNoDiagnosis) {
		failure(c, http.StatusNotFound, "No diagnosis available")
		return
	}
	if err != nil {
		log.Error("Last: 读取缓存诊断失败", err)
		failure(c, http.StatusInternalServerError, "session store unavailable")
		return
	}
	success(c, "success", model.RenderDiagnosis(*d))
}

func respondSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptySymptoms), errors.Is(err, model.ErrUnsupportedAttachment):
		failure(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrWorkflowClosed):
		failure(c, http.StatusConflict, err.Error())
	default:
		log.Error("Submit: 提交失败", err)
		failure(c, http.StatusInternalServerError, "Failed to submit symptoms")
	}
}

func bindSubmission(c *gin.Context) (service.Submission, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return service.Submission{}, fmt.Errorf("invalid JSON body: %w", err)
		}
		return service.Submission{Symptoms: req.Symptoms}, nil
	}

	sub := service.Submission{Symptoms: c.PostForm("symptoms")}
	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return sub, nil
	}
	if err != nil {
		return sub, fmt.Errorf("invalid multipart body: %w", err)
	}
	if fh.Size > maxAttachmentBytes {
		return sub, errAttachmentTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return sub, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxAttachmentBytes+1))
	if err != nil {
		return sub, fmt.Errorf("read attachment: %w", err)
	}
	if len(data) > maxAttachmentBytes {
		return sub, errAttachmentTooLarge
	}

	// 浏览器无法识别类型时会发送 application/octet-stream，交给 Validate 按内容嗅探
	contentType := fh.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		contentType = ""
	}
	sub.Attachment = &model.Attachment{
		FileName:    fh.Filename,
		ContentType: contentType,
		Data:        data,
	}
	return sub, nil
}
