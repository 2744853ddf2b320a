package api

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/youruser/collageapp/internal/app"
)

// RegisterRoutes mounts the collage API under /api.
func RegisterRoutes(r *gin.Engine, a *app.App) {
	h := NewHandler(a)
	api := r.Group("/api")
	{
		api.GET("/health", health)
		api.GET("/templates", templates)
		api.POST("/collage", h.composeOnce)

		api.POST("/sessions", h.createSession)
		api.GET("/sessions/:id", h.getSession)
		api.DELETE("/sessions/:id", h.deleteSession)
		api.POST("/sessions/:id/compose", h.composeSession)
		api.GET("/sessions/:id/image", h.sessionImage)
		api.POST("/sessions/:id/save", h.saveSession)
		api.POST("/sessions/:id/share", h.shareSession)

		api.GET("/shares/:token", h.getShare)
		api.GET("/shares/:token/qr", h.shareQR)
	}
}

// NewRouter returns an engine with recovery, request logging and the API.
func NewRouter(a *app.App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.Logger))
	RegisterRoutes(r, a)
	return r
}

func requestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond))
	}
}
