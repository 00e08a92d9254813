package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/docintel/internal/backend/handler"
	"github.com/cuongbtq/docintel/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, auth AuthConfig) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := deps.Store.Ping(ctx); err != nil {
			deps.Logger.Error("Health check failed", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "service": "docintel-backend-stub"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "docintel-backend-stub"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handler.NewJobHandler(deps)

	api := r.Group("")
	api.Use(AuthMiddleware(auth, deps.Logger))
	{
		api.POST("/pdf/analyze", h.SubmitPdfAnalysis)
		api.GET("/pdf/analyze/:id/status", h.JobStatus(domain.JobTypePdfAnalysis, false))

		api.POST("/video/generate", h.SubmitVideoGeneration)
		api.GET("/video/:id/status", h.JobStatus(domain.JobTypeVideoGeneration, false))

		// the progress route reports unknown ids in the envelope
		api.POST("/youtube/analyze", h.SubmitYoutubeAnalysis)
		api.GET("/youtube/progress/:id", h.JobStatus(domain.JobTypeYoutubeAnalysis, true))

		api.POST("/chat/query", h.ChatQuery)
		api.GET("/chat/:id/status", h.JobStatus(domain.JobTypeChatFollowup, false))

		api.GET("/jobs", h.ListJobs)
	}

	return r
}
