package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vop/internal/agent"
	"vop/internal/agent/audio"
	"vop/internal/agent/localstore"
	"vop/internal/agent/parsing"
	"vop/internal/agent/remote"
	"vop/pkg/clockx"
	"vop/pkg/config"
	"vop/pkg/eventbus"
	"vop/pkg/logger"
)

var (
	configPath = flag.String("config", "./config/agent.yaml", "配置文件路径")
)

func main() {
	flag.Parse()

	log.Println("========================================")
	log.Println("  VOP Sync Agent Starting...")
	log.Println("========================================")

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateAgent(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	// 2. 初始化 Logger
	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// 3. 打开本地存储
	store, err := localstore.Open(cfg.Agent.LocalDBPath)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}

	// 4. 组装协作方客户端
	remoteCli := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout)
	parser := parsing.NewHTTPParser(cfg.Parse.BaseURL, cfg.Parse.Token, cfg.Parse.Timeout)
	transcriber := audio.NewHTTPTranscriber(cfg.Parse.BaseURL, cfg.Parse.Token, cfg.Parse.Timeout)

	bus := eventbus.New()
	defer bus.Close()

	// 5. 创建引擎
	engine := agent.NewEngine(
		cfg.Agent, cfg.Queue,
		clockx.Real(),
		store, remoteCli, parser, transcriber, bus, zapLogger,
	)

	// 6. 周期性对账（重连检测的保底）
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(cfg.Agent.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if stats, err := engine.Sync(ctx); err != nil {
					zapLogger.Warnf(ctx, "[Agent] periodic sync failed: %v", err)
				} else if stats.MessagesSynced > 0 || stats.OrdersSynced > 0 {
					zapLogger.Infof(ctx, "[Agent] periodic sync flushed %d orders, %d messages",
						stats.OrdersSynced, stats.MessagesSynced)
				}
			}
		}
	}()

	log.Println("Agent started. Press Ctrl+C to shutdown.")

	// 7. 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Println("========================================")
	log.Printf("  Received signal: %v\n", sig)
	log.Println("  Shutting down Agent...")
	log.Println("========================================")

	// 8. 优雅关闭：停对账、排空命令队列、关本地存储
	cancel()
	if err := engine.Close(); err != nil {
		log.Printf("Engine close error: %v", err)
	}

	fmt.Println("========================================")
	fmt.Println("  Agent exited gracefully")
	fmt.Println("========================================")
}
