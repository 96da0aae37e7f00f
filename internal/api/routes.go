package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chat_web/internal/api/handlers"
	"chat_web/internal/middleware"
	"chat_web/internal/service"
	"chat_web/internal/utils"
)

func SetupRoutes(r *gin.Engine, services *service.Services, tokens *utils.TokenManager, log *zap.Logger) {
	// 初始化 handlers
	messageHandler := handlers.NewMessageHandler(services.Conversations, log.Named("http"))
	wsHandler := handlers.NewWebSocketHandler(services.WebSocket)

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "找不到該路徑",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket 連接點，瀏覽器以 token query 參數帶入身分
	r.GET("/ws", middleware.AuthMiddleware(tokens), wsHandler.HandleWebSocket)

	// API 路由群組
	api := r.Group("/api")

	// 公開路由
	{
		// 基本的健康檢查
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	// 需要驗證的路由
	authorized := api.Group("/")
	authorized.Use(middleware.AuthMiddleware(tokens))
	{
		messages := authorized.Group("/messages")
		{
			messages.GET("/:contact_id", messageHandler.GetMessages)       // 獲取對話紀錄並標為已讀
			messages.GET("/:contact_id/unread", messageHandler.GetUnread) // 未讀數量
		}
	}
}
