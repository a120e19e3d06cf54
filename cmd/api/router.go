package api

import (
	"net/http"

	"raid-mail-agent/internal/auth/delivery"
	authUsecase "raid-mail-agent/internal/auth/usecase"
	conversationDelivery "raid-mail-agent/internal/conversation/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, conversationHandler *conversationDelivery.ConversationHandler, deviceHandler *delivery.DeviceHandler, settingsHandler *SettingsHandler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Thread routes (protected)
		threads := api.Group("/threads")
		threads.Use(delivery.AuthMiddleware(authUsecase))
		{
			threads.GET("", conversationHandler.ListThreads)
			threads.GET("/:id", conversationHandler.GetThread)
			threads.POST("/:id/reset", conversationHandler.ResetThread)
			threads.POST("/:id/process", conversationHandler.ProcessThread)
		}

		// Application routes (protected)
		applications := api.Group("/applications")
		applications.Use(delivery.AuthMiddleware(authUsecase))
		{
			applications.GET("", conversationHandler.ListApplications)
			applications.POST("/search", conversationHandler.SearchApplications)
			applications.GET("/:email", conversationHandler.GetApplication)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(delivery.AuthMiddleware(authUsecase))
		{
			fcm.POST("/register", deviceHandler.RegisterFCMToken)
			fcm.DELETE("/:token", deviceHandler.UnregisterFCMToken)
		}

		// Settings routes (protected) - Runtime configuration
		settings := api.Group("/settings/ai")
		settings.Use(delivery.AuthMiddleware(authUsecase))
		{
			settings.GET("", settingsHandler.GetSettings)
			settings.PUT("/ollama", settingsHandler.UpdateOllamaSettings)
			settings.POST("/ollama/test", settingsHandler.TestOllamaConnection)
		}
	}
}
