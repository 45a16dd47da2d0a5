package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modsentry/moderation-api/internal/config"
	"github.com/modsentry/moderation-api/internal/httpapi/handlers"
	"github.com/modsentry/moderation-api/internal/httpapi/middleware"
	"github.com/modsentry/moderation-api/internal/moderation"
	"github.com/modsentry/moderation-api/internal/quota"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewRouter(db *gorm.DB, cfg config.Config, limiter middleware.Counter, svc *moderation.Service, blobs moderation.BlobStore, tracker *quota.Tracker, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, svc, blobs, log)

	r.GET("/ping", h.Ping)

	api := r.Group("/")
	api.Use(middleware.RateLimit(limiter, cfg.RateLimitPerMinute, log))
	api.Use(middleware.AuthRequired(db))

	// history (auth only; reads do not spend quota)
	api.GET("/requests", h.ListRequests)
	api.GET("/requests/:id", h.GetRequest)

	// moderation (quota admission applies)
	mod := api.Group("/")
	mod.Use(middleware.QuotaRequired(tracker))
	mod.POST("/text", h.ModerateText)
	mod.POST("/image", h.ModerateImage)

	return r
}
