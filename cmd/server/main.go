package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/llmcouncil/backend/config"
	"github.com/llmcouncil/backend/internal/eventbus"
	"github.com/llmcouncil/backend/internal/handler"
	"github.com/llmcouncil/backend/internal/pkg/database"
	"github.com/llmcouncil/backend/internal/pkg/llm"
	"github.com/llmcouncil/backend/internal/repository"
	"github.com/llmcouncil/backend/internal/router"
	"github.com/llmcouncil/backend/internal/service"
	"github.com/llmcouncil/backend/internal/service/council"
	"github.com/llmcouncil/backend/internal/subscriber"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化 Repository
	convRepo := repository.NewConversationRepository(db)
	personaRepo := repository.NewPersonaRepository(db)
	leaderboardRepo := repository.NewLeaderboardRepository(db)
	usageRepo := repository.NewTurnUsageRepository(db)

	// 模型网关与议会
	gateway, err := llm.NewGateway(cfg)
	if err != nil {
		log.Fatalf("Failed to create model gateway: %v", err)
	}
	if cfg.LLM.APIKey == "" {
		klog.Warningf("未配置 LLM API Key，模型调用将失败")
	}
	catalog := llm.NewCatalog(cfg)
	pricing := council.OverridePricing{Base: catalog, Overrides: cfg.Council.Pricing}
	councilRunner := council.New(gateway, pricing, council.OptionsFromConfig(cfg))

	// 初始化 Service
	personaService := service.NewPersonaService(personaRepo)
	leaderboardService := service.NewLeaderboardService(leaderboardRepo, personaService)
	usageService := service.NewTurnUsageService(usageRepo)
	conversationService := service.NewConversationService(cfg, convRepo)
	catalogService := service.NewModelCatalogService(cfg, catalog)

	// 轮次结束后异步更新排行榜与用量
	turnBus := eventbus.NewTurnEventBus()
	subscriber.NewTurnEventSubscriber(leaderboardService, usageService).Register(turnBus)
	turnService := service.NewTurnService(conversationService, convRepo, councilRunner, pricing, turnBus)

	// 初始化 Handler
	configHandler := handler.NewConfigHandler(catalogService)
	conversationHandler := handler.NewConversationHandler(conversationService, turnService, usageService)
	personaHandler := handler.NewPersonaHandler(personaService)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService)

	// 设置路由
	r := router.Setup(cfg, configHandler, conversationHandler, personaHandler, leaderboardHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}
	go func() {
		log.Printf("Server starting on port %s...", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	klog.V(6).Info("服务关闭中...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		klog.Errorf("Server shutdown failed: %v", err)
	}
	// 等待排行榜与用量写入完成
	turnBus.Wait()
}
