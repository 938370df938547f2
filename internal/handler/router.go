package handler

import (
	"medifusion-go/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Handlers 汇总了所有路由用到的控制器。
type Handlers struct {
	Users     *UserHandler
	Analysis  *AnalysisHandler
	Predict   *PredictHandler
	Doctors   *DoctorHandler
	Reports   *ReportHandler
	History   *HistoryHandler
	Medicines *MedicineHandler
}

// RegisterRoutes 注册所有路由。r 必须已经挂载 ClientIdentity 中间件。
func RegisterRoutes(r *gin.Engine, h Handlers) {
	// 落地页：公开访问
	r.GET(middleware.LandingPath, h.Users.Landing)

	// 分析页面 (WebSocket)，需要登录
	r.GET("/predict", middleware.RequireSession(), h.Predict.Handle)

	apiV1 := r.Group("/api/v1")
	{
		// 会话路由组，无需认证
		sessionGroup := apiV1.Group("/session")
		{
			sessionGroup.POST("/login", h.Users.Login)
			sessionGroup.POST("/signup", h.Users.Signup)
			sessionGroup.POST("/logout", h.Users.Logout)
			sessionGroup.POST("/guest", h.Users.EnterGuest)
			sessionGroup.DELETE("/guest", h.Users.ExitGuest)
		}

		// 落地页上的功能：登录用户或访客均可使用
		open := apiV1.Group("/")
		open.Use(middleware.RequireSessionOrGuest())
		{
			open.POST("/analysis", h.Analysis.Submit)
			open.GET("/analysis", h.Analysis.Get)
			open.DELETE("/analysis", h.Analysis.Cancel)
			open.GET("/analysis/last", h.Analysis.Last)
			open.GET("/report", h.Reports.Download)
			open.GET("/doctors", h.Doctors.Find)
		}

		// 需要登录的路由
		authed := apiV1.Group("/")
		authed.Use(middleware.RequireSession())
		{
			authed.GET("/history", h.History.GetHistory)
			authed.GET("/profile", h.Users.GetProfile)
			authed.PUT("/profile", h.Users.UpdateProfile)
			authed.GET("/medicines", h.Medicines.List)
			authed.POST("/medicines", h.Medicines.Create)
			authed.DELETE("/medicines/:id", h.Medicines.Delete)
		}
	}
}
