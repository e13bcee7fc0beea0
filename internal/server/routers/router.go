package routers

import (
	"github.com/gin-gonic/gin"

	"vop/internal/server/handlers/audio"
	"vop/internal/server/handlers/jobs"
	"vop/internal/server/handlers/order"
	"vop/internal/server/middlewares"
	"vop/pkg/config"
	"vop/pkg/logger"
)

// SetupRoutes 配置所有路由，使用 Route Group 分类
func SetupRoutes(
	cfg config.ServerConfig,
	orderHandler *order.OrderHandler,
	audioHandler *audio.AudioHandler,
	jobHandler *jobs.JobHandler,
	log logger.Logger,
) *gin.Engine {
	r := gin.New()

	r.Use(middlewares.CORS())
	r.Use(middlewares.Logger(log))
	r.Use(middlewares.ErrorHandler(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "apiserver",
			"message": "Service is running",
		})
	})

	v1 := r.Group("/api/v1")
	{
		// 同步客户端（agent）接口
		agent := v1.Group("", middlewares.AgentAuth(cfg.APIToken))
		{
			agent.PUT("/orders", orderHandler.Upsert)
			agent.POST("/orders/:id/messages", orderHandler.InsertMessage)
			agent.GET("/orders/:id/messages", orderHandler.ListMessages)
			agent.POST("/orders/:id/process", orderHandler.Process)
			agent.POST("/audio", audioHandler.Upload)
			agent.GET("/audio/:id", audioHandler.Download)
		}

		// 外部调度器接口
		scheduler := v1.Group("/jobs", middlewares.SchedulerAuth(cfg.SchedulerToken))
		{
			scheduler.POST("/process", jobHandler.Process)
		}
	}

	return r
}
