package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"vop/internal/jobqueue"
	"vop/internal/model"
	"vop/internal/notifier"
	"vop/internal/server/blob"
	"vop/internal/server/entity"
	audiohandler "vop/internal/server/handlers/audio"
	jobshandler "vop/internal/server/handlers/jobs"
	orderhandler "vop/internal/server/handlers/order"
	"vop/internal/server/repo/rpmessage"
	"vop/internal/server/repo/rporder"
	"vop/internal/server/routers"
	"vop/internal/server/services/svorder"
	"vop/pkg/config"
	"vop/pkg/idgen"
	redisx "vop/pkg/infra/redis"
	"vop/pkg/logger"
)

var (
	configPath = flag.String("config", "./config/apiserver.yaml", "配置文件路径")
	machineID  = flag.Int64("machine-id", 0, "任务 ID 生成器机器号 (0-99)")
)

func main() {
	flag.Parse()

	log.Println("========================================")
	log.Println("  VOP API Server Starting...")
	log.Println("========================================")

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	// 2. 初始化 Logger
	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// 3. 连接 MySQL 并迁移
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect mysql: %v", err)
	}
	if err := db.AutoMigrate(&entity.Order{}, &entity.Message{}, &jobqueue.Job{}); err != nil {
		log.Fatalf("Failed to migrate tables: %v", err)
	}

	// 4. Redis 通知（可选，连不上只降级不退出）
	var pubsub *redisx.PubSub
	if cfg.Redis.Addr != "" {
		pubsub, err = redisx.NewPubSub(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis unavailable, completion events disabled: %v", err)
			pubsub = nil
		} else {
			defer pubsub.Close()
		}
	}

	// 5. 组装任务队列与批处理器
	queue := jobqueue.NewQueue(db, idgen.NewGenerator(*machineID))
	sender := notifier.NewHTTPSender(cfg.Notify.BaseURL, cfg.Notify.Token, cfg.Notify.Timeout)
	processor := jobqueue.NewProcessor(db, cfg.Queue.MaxAttempts, zapLogger)
	processor.Register(model.JobTypeSendSupplierOrder, jobqueue.SendSupplierOrderHandler(sender, pubsub, zapLogger))

	// 6. 组装存储与服务
	blobStore, err := blob.NewFSStore(cfg.Server.BlobDir)
	if err != nil {
		log.Fatalf("Failed to init blob store: %v", err)
	}
	orderService := svorder.NewOrderService(
		rporder.NewOrderRepository(db),
		rpmessage.NewMessageRepository(db),
		queue,
		zapLogger,
	)

	// 7. 路由（Redis 不可用时 waiter 保持 nil，Smart-Wait 降级为纯异步）
	var waiter orderhandler.CompletionWaiter
	if pubsub != nil {
		waiter = pubsub
	}
	engine := routers.SetupRoutes(
		cfg.Server,
		orderhandler.NewOrderHandler(orderService, waiter, zapLogger),
		audiohandler.NewAudioHandler(blobStore, zapLogger),
		jobshandler.NewJobHandler(processor, cfg.Queue.BatchLimit, zapLogger),
		zapLogger,
	)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	// 8. 优雅停机
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, gracefully shutting down...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	case err := <-serverErrChan:
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Println("API server stopped")
}
