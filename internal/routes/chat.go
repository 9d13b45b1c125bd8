package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/placehive/placehive-backend/internal/handlers"
	"github.com/placehive/placehive-backend/internal/middleware"
)

func RegisterChatRoutes(r gin.IRouter) {
	chat := r.Group("/chat")
	chat.Use(middleware.AuthMiddleware(), middleware.ChatRateLimit())
	{
		chat.GET("/conversations", handlers.GetConversations)
		chat.GET("/conversations/:placeId/:partnerId", handlers.OpenConversation)
		chat.POST("/conversations/:placeId/:partnerId/read", handlers.MarkConversationRead)
		chat.POST("/messages", handlers.SendMessage)
		chat.DELETE("/reply-target", handlers.ClearReplyTarget)

		chat.POST("/recording/start", handlers.StartRecording)
		chat.POST("/recording/stop", handlers.StopRecording)
		chat.POST("/recording/cancel", handlers.CancelRecording)
	}
}
