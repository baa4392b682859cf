package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/paperchat/internal/api/assistant"
	"github.com/liliang-cn/paperchat/internal/api/middleware"
	"github.com/liliang-cn/paperchat/internal/api/papers"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
	// MaxUploadBytes bounds multipart memory; larger parts spill to disk
	MaxUploadBytes int64
}

// SetupRouter sets up the Gin router
func SetupRouter(
	papersHandler *papers.Handler,
	assistantHandler *assistant.Handler,
	cfg RouterConfig,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowOrigins))
	if cfg.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Auth(cfg.APIKey))

	// Papers and conversations are scoped to the caller
	papersGroup := apiGroup.Group("/papers")
	papersGroup.Use(middleware.RequireUser())
	papersHandler.RegisterRoutes(papersGroup)

	assistantHandler.RegisterRoutes(apiGroup.Group("/assistant"))

	return r
}
