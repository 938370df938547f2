// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medifusion-go/internal/config"
	"medifusion-go/internal/doctor"
	"medifusion-go/internal/handler"
	"medifusion-go/internal/middleware"
	"medifusion-go/internal/service"
	"medifusion-go/internal/session"
	"medifusion-go/pkg/apiclient"
	"medifusion-go/pkg/database"
	"medifusion-go/pkg/kafka"
	"medifusion-go/pkg/log"
	"medifusion-go/pkg/storage"
	"medifusion-go/pkg/store"
	"medifusion-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化 Redis（每个浏览器的本地存储）
	database.InitRedis(cfg.Redis)
	defer database.CloseRedis()
	kv := store.NewRedis(database.RDB, cfg.Redis.KeyPrefix)
	sessions := session.NewManager(kv)

	// 4. 可选的外部组件：Kafka 事件和 MinIO 报告归档
	var events service.EventPublisher = kafka.NopPublisher{}
	var closeEvents func() error
	if p := kafka.NewPublisher(cfg.Kafka); p != nil {
		events = p
		closeEvents = p.Close
		log.Infof("分析事件将发布到 Kafka topic: %s", cfg.Kafka.Topic)
	}

	var archive handler.ReportArchive
	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	a, err := storage.NewReportArchive(initCtx, cfg.MinIO)
	cancelInit()
	if err != nil {
		log.Errorf("MinIO 初始化失败，报告归档不可用: %v", err)
	} else if a != nil {
		archive = a
	}

	directory, err := doctor.Load()
	if err != nil {
		log.Fatalf("加载医生名录失败: %v", err)
	}

	// 5. 初始化 Service (依赖注入)
	api := apiclient.New(cfg.Backend.BaseURL, cfg.Backend.Timeout())
	clientTokens := token.NewClientTokenManager(cfg.Client.Secret, cfg.Client.ExpireHours)
	pollOpts := service.PollOptions{
		Interval:    cfg.Analysis.PollInterval(),
		MaxAttempts: cfg.Analysis.MaxAttempts,
		WaitSeconds: cfg.Analysis.ServerWaitSeconds,
	}
	analyses := service.NewAnalysisRegistry(func(clientID string) *service.AnalysisWorkflow {
		return service.NewAnalysisWorkflow(clientID, api.WithTokens(sessions.Get(clientID)), sessions.Store(clientID), events, pollOpts)
	})
	userService := service.NewUserService(api, sessions)
	historyService := service.NewHistoryService(api, sessions)
	medicineService := service.NewMedicineService(api, sessions)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.ClientIdentity(clientTokens, sessions, cfg.Client), middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	handler.RegisterRoutes(r, handler.Handlers{
		Users:     handler.NewUserHandler(userService, medicineService, analyses, sessions),
		Analysis:  handler.NewAnalysisHandler(analyses, sessions),
		Predict:   handler.NewPredictHandler(analyses),
		Doctors:   handler.NewDoctorHandler(directory, sessions),
		Reports:   handler.NewReportHandler(sessions, archive, cfg.Report.FileName),
		History:   handler.NewHistoryHandler(historyService),
		Medicines: handler.NewMedicineHandler(medicineService),
	})

	// 定期回收空闲的共享工作流
	stopJanitor := make(chan struct{})
	if ttl := cfg.Analysis.IdleTTL(); ttl > 0 {
		go func() {
			ticker := time.NewTicker(ttl / 2)
			defer ticker.Stop()
			for {
				select {
				case <-stopJanitor:
					return
				case <-ticker.C:
					if n := analyses.EvictIdle(ttl); n > 0 {
						log.Infof("回收了 %d 个空闲的分析工作流", n)
					}
				}
			}
		}()
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s, 后端: %s", srv.Addr, api.BaseURL())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止所有轮询，再关闭事件发布
	close(stopJanitor)
	analyses.CloseAll()
	if closeEvents != nil {
		if err := closeEvents(); err != nil {
			log.Errorf("关闭 Kafka 发布者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
