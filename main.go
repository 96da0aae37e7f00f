package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chat_web/internal/api"
	"chat_web/internal/assistant"
	"chat_web/internal/events"
	"chat_web/internal/logger"
	"chat_web/internal/models"
	"chat_web/internal/moderation"
	"chat_web/internal/relay"
	"chat_web/internal/repository"
	"chat_web/internal/service"
	"chat_web/internal/storage"
	"chat_web/internal/utils"
	"chat_web/pkg/config"
)

func main() {
	// 載入應用程式配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logr.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化資料庫連接
	db, err := storage.NewPostgresDB(cfg.DB)
	if err != nil {
		logr.Fatal("Failed to initialize database", zap.Error(err))
	}
	// 確保在程序結束時關閉數據庫連接
	defer db.Close()

	// 自動遷移資料庫結構
	if err := db.AutoMigrate(&models.Message{}); err != nil {
		logr.Fatal("Failed to auto migrate database", zap.Error(err))
	}

	// 初始化 repositories
	repos := repository.NewRepositories(db, cfg.Store.Timeout)

	gateway, err := newModerationGateway(cfg.Moderation, logr.Named("moderation"))
	if err != nil {
		logr.Fatal("Failed to initialize moderation", zap.Error(err))
	}

	publisher := newPublisher(cfg.Kafka, logr.Named("events"))
	defer publisher.Close()

	// 初始化 services
	services := service.NewServices(service.Dependencies{
		Repos:            repos,
		Moderator:        gateway,
		Assistant:        newAssistant(cfg.Assistant, logr.Named("assistant")),
		Events:           publisher,
		HistorySize:      cfg.Assistant.HistorySize,
		MaxContentLength: cfg.Chat.MaxContentLength,
		Limits: service.ClientLimits{
			SendBuffer:    cfg.Chat.SendBuffer,
			RatePerSecond: cfg.Chat.RatePerSecond,
			RateBurst:     cfg.Chat.RateBurst,
		},
		Log: logr,
	})

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		rl := relay.New(rdb, cfg.Redis.Prefix, services.Router, logr.Named("relay"))
		services.Router.SetRelay(rl)
		go func() {
			if err := rl.Run(ctx); err != nil {
				logr.Error("relay stopped", zap.Error(err))
			}
		}()
	}

	// 設置 Gin 路由
	gin.SetMode(gin.ReleaseMode)
	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(logr.Named("http")))
	api.SetupRoutes(r, services, utils.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TTL), logr)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	// 啟動伺服器
	go func() {
		logr.Info("server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("Failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown", zap.Error(err))
	}
	// Shutdown 不會關閉已升級的 WebSocket，先斷開所有連線再等待進行中的 AI 回覆
	services.Router.Close()
	services.Pipeline.Close()
}

func newModerationGateway(cfg config.ModerationConfig, log *zap.Logger) (*moderation.Gateway, error) {
	fallback, err := moderation.NewFallback(moderation.DefaultTerms)
	if err != nil {
		return nil, err
	}

	var provider moderation.Provider
	if cfg.APIKey != "" {
		provider = moderation.NewHTTPProvider(cfg.BaseURL, cfg.APIKey, &http.Client{})
	} else {
		log.Info("moderation api key not set, using local fallback only")
	}

	return moderation.NewGateway(provider, fallback, moderation.GatewayConfig{
		Timeout:      cfg.Timeout,
		MaxFailures:  cfg.MaxFailures,
		BreakerReset: cfg.BreakerReset,
	}, log), nil
}

func newAssistant(cfg config.AssistantConfig, log *zap.Logger) *assistant.Assistant {
	var generator assistant.Generator
	if cfg.APIKey != "" {
		generator = assistant.NewHTTPGenerator(assistant.HTTPGeneratorConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}, &http.Client{})
	} else {
		log.Info("assistant api key not set, replies use canned fallbacks")
	}

	return assistant.New(generator, assistant.Config{
		Timeout:      cfg.Timeout,
		MaxFailures:  cfg.MaxFailures,
		BreakerReset: cfg.BreakerReset,
	}, log)
}

func newPublisher(cfg config.KafkaConfig, log *zap.Logger) events.Publisher {
	if !cfg.Enabled {
		return events.NopPublisher{}
	}
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic, log)
}
