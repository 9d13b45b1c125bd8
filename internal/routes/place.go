package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/placehive/placehive-backend/internal/handlers"
	"github.com/placehive/placehive-backend/internal/middleware"
)

func RegisterPlaceRoutes(r gin.IRouter) {
	places := r.Group("/places")
	places.Use(middleware.OptionalAuthMiddleware())
	{
		places.GET("", handlers.SearchPlaces)
		places.GET("/:placeId", handlers.GetPlace)
		places.GET("/:placeId/products", handlers.GetPlaceProducts)

		authed := places.Group("/:placeId")
		authed.Use(middleware.AuthMiddleware())
		{
			authed.POST("/follow", handlers.FollowPlace)
			authed.DELETE("/follow", handlers.UnfollowPlace)
		}
	}

	me := r.Group("/me")
	me.Use(middleware.AuthMiddleware())
	{
		me.GET("/places", handlers.GetMyPlaces)
	}
}
