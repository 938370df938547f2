package handler

import (
	"net/http"
	"strconv"

	"medifusion-go/internal/model"
	"medifusion-go/internal/service"
	"medifusion-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// MedicineHandler 负责服药提醒的 API 请求。
type MedicineHandler struct {
	service service.MedicineService
}

// NewMedicineHandler 创建一个新的 MedicineHandler。
func NewMedicineHandler(service service.MedicineService) *MedicineHandler {
	return &MedicineHandler{service: service}
}

// List 返回当前用户的全部提醒。
func (h *MedicineHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), clientID(c))
	if err != nil {
		backendFailure(c, err, "Failed to load medicines")
		return
	}
	if items == nil {
		items = []model.Medicine{}
	}
	success(c, "success", items)
}

// Create 新增一条提醒。
func (h *MedicineHandler) Create(c *gin.Context) {
	var req model.MedicineInput
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Create medicine: Invalid request payload, error: %v", err)
		failure(c, http.StatusBadRequest, "name, dosage and reminder_time are required")
		return
	}
	if err := req.Validate(); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.service.Create(c.Request.Context(), clientID(c), req)
	if err != nil {
		backendFailure(c, err, "Failed to add medicine")
		return
	}
	success(c, "Medicine added", m)
}

// Delete 删除一条提醒。
func (h *MedicineHandler) Delete(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		failure(c, http.StatusBadRequest, "无效的提醒 ID")
		return
	}
	if err := h.service.Delete(c.Request.Context(), clientID(c), id); err != nil {
		backendFailure(c, err, "Failed to delete medicine")
		return
	}
	success(c, "Medicine deleted", nil)
}
