package handler

import (
	"net/http"
	"strconv"

	"medifusion-go/internal/service"

	"github.com/gin-gonic/gin"
)

// HistoryHandler 处理历史问诊记录相关的 API 请求。
type HistoryHandler struct {
	service service.HistoryService
}

// NewHistoryHandler 创建一个新的 HistoryHandler。
func NewHistoryHandler(service service.HistoryService) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// GetHistory 处理获取历史问诊记录的请求。可选的 limit 参数只返回最近的几条。
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			failure(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	history, err := h.service.History(c.Request.Context(), clientID(c), limit)
	if err != nil {
		backendFailure(c, err, "Failed to retrieve consultation history")
		return
	}
	success(c, "success", history)
}
