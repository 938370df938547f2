package handler

import (
	"errors"

	"medifusion-go/internal/doctor"
	"medifusion-go/internal/service"
	"medifusion-go/internal/session"
	"medifusion-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DoctorHandler 负责按专科和邮编查找医生。
type DoctorHandler struct {
	directory *doctor.Directory
	sessions  *session.Manager
}

// NewDoctorHandler 创建一个新的 DoctorHandler。
func NewDoctorHandler(directory *doctor.Directory, sessions *session.Manager) *DoctorHandler {
	return &DoctorHandler{directory: directory, sessions: sessions}
}

// Find 处理 GET /api/v1/doctors?specialist=&pincode=。
// 未指定 specialist 时使用缓存诊断中的推荐专科，仍为空则按全科医生查找。
func (h *DoctorHandler) Find(c *gin.Context) {
	specialist := c.Query("specialist")
	if specialist == "" {
		d, err := service.LoadCachedDiagnosis(c.Request.Context(), h.sessions.Store(clientID(c)))
		switch {
		case err == nil:
			specialist = d.RecommendedSpecialist
		case !errors.Is(err, service.ErrNoDiagnosis):
			log.Warnf("Find doctors: 读取缓存诊断失败, error: %v", err)
		}
	}
	success(c, "success", h.directory.Find(specialist, c.Query("pincode")))
}
