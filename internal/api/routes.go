package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes.
func SetupRoutes(router *gin.Engine, handler *Handler, registry *prometheus.Registry) {
	router.GET("/health", handler.HealthCheck)

	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		content := v1.Group("/content")
		{
			content.POST("", handler.CreateContent)
			content.GET("/:id", handler.GetContent)
			content.DELETE("/:id", handler.DeleteContent)
		}

		v1.GET("/authors/:id/content", handler.ListAuthorContent)

		feed := v1.Group("/feed")
		{
			feed.GET("/:userID", handler.GetFeed)
			feed.GET("/:userID/pull", handler.GetFeedByPull)
		}

		v1.GET("/search", handler.Search)
	}
}
