package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/placehive/placehive-backend/internal/handlers"
	"github.com/placehive/placehive-backend/internal/middleware"
)

func RegisterUploadRoutes(r gin.IRouter) {
	upload := r.Group("/upload")
	upload.Use(middleware.AuthMiddleware(), middleware.UploadRateLimit())
	{
		upload.POST("", handlers.UploadFile)
	}
}
