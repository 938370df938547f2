package handler

import (
	"errors"
	"net/http"

	"medifusion-go/internal/model"
	"medifusion-go/internal/service"
	"medifusion-go/internal/session"
	"medifusion-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理会话（登录、注册、登出、访客模式）和个人资料相关的 API 请求。
type UserHandler struct {
	userService service.UserService
	medicines   service.MedicineService
	analyses    *service.AnalysisRegistry
	sessions    *session.Manager
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService, medicines service.MedicineService, analyses *service.AnalysisRegistry, sessions *session.Manager) *UserHandler {
	return &UserHandler{
		userService: userService,
		medicines:   medicines,
		analyses:    analyses,
		sessions:    sessions,
	}
}

// LandingResponse 是落地页的状态。
type LandingResponse struct {
	Authenticated bool                 `json:"authenticated"`
	Guest         bool                 `json:"guest"`
	Diagnosis     *model.DiagnosisView `json:"diagnosis"`
}

// Landing 返回落地页需要的状态：是否登录、是否访客，以及缓存的最近一次诊断。
func (h *UserHandler) Landing(c *gin.Context) {
	id := clientID(c)
	status, err := h.userService.Status(c.Request.Context(), id)
	if err != nil {
		log.Error("Landing: 读取会话状态失败", err)
		failure(c, http.StatusInternalServerError, "session store unavailable")
		return
	}

	resp := LandingResponse{Authenticated: status.Authenticated, Guest: status.Guest}
	d, err := service.LoadCachedDiagnosis(c.Request.Context(), h.sessions.Store(id))
	switch {
	case err == nil:
		view := model.RenderDiagnosis(*d)
		resp.Diagnosis = &view
	case !errors.Is(err, service.ErrNoDiagnosis):
		log.Warnf("Landing: 读取缓存诊断失败, client: %s, error: %v", id, err)
	}
	success(c, "success", resp)
}

// Login 处理用户登录请求。
func (h *UserHandler) Login(c *gin.Context) {
	var req model.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		failure(c, http.StatusBadRequest, "Email and password are required")
		return
	}

	if err := h.userService.Login(c.Request.Context(), clientID(c), req); err != nil {
		backendFailure(c, err, "Login failed")
		return
	}
	log.Infof("User '%s' logged in successfully", req.Username)
	success(c, "Login successful", nil)
}

// Signup 处理用户注册请求，注册成功即视为已登录。
func (h *UserHandler) Signup(c *gin.Context) {
	var req model.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Signup: Invalid request payload, error: %v", err)
		failure(c, http.StatusBadRequest, "Email and password are required")
		return
	}

	if err := h.userService.Signup(c.Request.Context(), clientID(c), req); err != nil {
		backendFailure(c, err, "Signup failed")
		return
	}
	log.Infof("User '%s' signed up successfully", req.Email)
	success(c, "Signup successful", nil)
}

// Logout 删除 token，同时卸载该客户端所有的分析工作流并丢弃服药提醒缓存。
func (h *UserHandler) Logout(c *gin.Context) {
	id := clientID(c)
	if err := h.userService.Logout(c.Request.Context(), id); err != nil {
		log.Error("Logout: Failed to logout", err)
		failure(c, http.StatusInternalServerError, "登出失败")
		return
	}
	h.analyses.ReleaseClient(id)
	h.medicines.Forget(id)
	success(c, "登出成功", nil)
}

// EnterGuest 进入访客模式。
func (h *UserHandler) EnterGuest(c *gin.Context) {
	h.userService.EnterGuest(clientID(c))
	success(c, "success", service.SessionStatus{Guest: true})
}

// ExitGuest 退出访客模式。
func (h *UserHandler) ExitGuest(c *gin.Context) {
	h.userService.ExitGuest(clientID(c))
	success(c, "success", nil)
}

// GetProfile 获取当前登录用户的个人信息，附带 BMI。
func (h *UserHandler) GetProfile(c *gin.Context) {
	profile, err := h.userService.GetProfile(c.Request.Context(), clientID(c))
	if err != nil {
		backendFailure(c, err, "Failed to load profile")
		return
	}
	success(c, "success", profile)
}

// UpdateProfile 更新个人资料，只发送非空字段。
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req model.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	profile, err := h.userService.UpdateProfile(c.Request.Context(), clientID(c), req)
	if err != nil {
		backendFailure(c, err, "Failed to update profile")
		return
	}
	success(c, "Profile updated", profile)
}
