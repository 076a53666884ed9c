package router

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/llmcouncil/backend/config"
	"github.com/llmcouncil/backend/internal/handler"
)

// streamPaths SSE 响应不能被 gzip 缓冲
const streamPaths = `^/api/conversations/[^/]+/message/stream$`

func Setup(
	cfg *config.Config,
	configHandler *handler.ConfigHandler,
	conversationHandler *handler.ConversationHandler,
	personaHandler *handler.PersonaHandler,
	leaderboardHandler *handler.LeaderboardHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{streamPaths})))

	r.GET("/", configHandler.Health)

	api := r.Group("/api")
	{
		api.GET("/health", configHandler.Health)
		api.GET("/config", configHandler.GetConfig)
		api.GET("/models", configHandler.ListModels)

		conversations := api.Group("/conversations")
		{
			conversations.GET("", conversationHandler.List)
			conversations.POST("", conversationHandler.Create)
			conversations.GET("/:id", conversationHandler.Get)
			conversations.DELETE("/:id", conversationHandler.Delete)
			conversations.PATCH("/:id/settings", conversationHandler.UpdateSettings)
			conversations.DELETE("/:id/messages/:index", conversationHandler.DeleteMessage)
			conversations.POST("/:id/message", conversationHandler.SendMessage)
			conversations.POST("/:id/message/stream", conversationHandler.StreamMessage)
			conversations.GET("/:id/costs", conversationHandler.Costs)
		}

		personas := api.Group("/personas")
		{
			personas.GET("", personaHandler.List)
			personas.POST("", personaHandler.Save)
			personas.DELETE("/:name", personaHandler.Delete)
		}

		api.GET("/leaderboard", leaderboardHandler.List)
	}

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Status(http.StatusNotFound)
	})

	return r
}
