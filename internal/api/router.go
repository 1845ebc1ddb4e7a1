// internal/api/router.go
package api

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/senushidinara/DreamStruct/internal/config"
	"github.com/senushidinara/DreamStruct/internal/di"
	"github.com/senushidinara/DreamStruct/internal/services"
	"github.com/senushidinara/DreamStruct/internal/utils"
)

// RouterConfig holds the router's environment.
type RouterConfig struct {
	StaticDir          string
	TemplatesDir       string
	DebugMode          bool
	RateLimitPerMinute int
}

// SetupRouter builds the router from the services registered in the DI
// container. The WebSocket manager is registered back under di.WebSocket.
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	sessionService, err := di.Resolve[*services.SessionService](container, di.Session)
	if err != nil {
		return nil, err
	}
	exportService, err := di.Resolve[*services.ExportService](container, di.Export)
	if err != nil {
		return nil, err
	}
	galleryService, err := di.Resolve[*services.GalleryService](container, di.Gallery)
	if err != nil {
		return nil, err
	}
	llmService, err := di.Resolve[*services.LLMService](container, di.LLM)
	if err != nil {
		return nil, err
	}
	metrics, _ := di.Lookup[*utils.DesignMetrics](container, di.Metrics)

	handler := NewHandler(sessionService, exportService, galleryService, llmService, metrics)
	container.Register(di.WebSocket, handler.WS)

	return NewRouter(handler, RouterConfig{
		StaticDir:          cfg.StaticDir,
		TemplatesDir:       cfg.TemplatesDir,
		DebugMode:          cfg.DebugMode,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}), nil
}

// NewRouter registers every route on a fresh engine.
func NewRouter(handler *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(requestIDMiddleware())
	r.Use(metricsMiddleware(handler.Metrics))
	r.Use(corsMiddleware())

	if cfg.StaticDir != "" {
		r.Static("/static", cfg.StaticDir)
	}
	if cfg.TemplatesDir != "" {
		pattern := filepath.Join(cfg.TemplatesDir, "*.html")
		if matches, _ := filepath.Glob(pattern); len(matches) > 0 {
			r.LoadHTMLGlob(pattern)
			handler.htmlTemplates = true
		} else if _, err := os.Stat(cfg.TemplatesDir); err == nil {
			utils.GetLogger().Warnf("no templates in %s, serving JSON index", cfg.TemplatesDir)
		}
	}

	limiter := NewRateLimiter()
	modelCalls := RateLimitByIP(limiter, cfg.RateLimitPerMinute, time.Minute)
	// sessions live in memory until restart; creation gets its own budget
	sessionCreates := RateLimitByIP(NewRateLimiter(), cfg.RateLimitPerMinute, time.Minute)

	r.GET("/", handler.IndexPage)
	r.GET("/health", handler.Health)

	r.GET("/ws/sessions/:id", handler.SessionWebSocket)

	api := r.Group("/api")
	{
		api.GET("/themes", handler.GetThemes)
		api.POST("/simulation", handler.Simulate)
		api.GET("/metrics", handler.GetMetrics)
		api.GET("/ws/status", handler.GetWebSocketStatus)

		sessionsGroup := api.Group("/sessions")
		{
			sessionsGroup.GET("", handler.ListSessions)
			sessionsGroup.POST("", sessionCreates, handler.CreateSession)
			sessionsGroup.GET("/:id", handler.GetSession)
			sessionsGroup.DELETE("/:id", handler.ResetSession)
			sessionsGroup.POST("/:id/generate", modelCalls, handler.Generate)
			sessionsGroup.POST("/:id/analyze", modelCalls, handler.Analyze)
			sessionsGroup.GET("/:id/scene", handler.GetScene)
			sessionsGroup.GET("/:id/export", handler.ExportSession)
		}

		galleryGroup := api.Group("/gallery")
		{
			galleryGroup.GET("", handler.ListGallery)
			galleryGroup.GET("/:id", handler.GetGalleryEntry)
		}

		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.GET("/models", handler.GetLLMModels)
			llmGroup.PUT("/config", sameOriginOnly(), handler.UpdateLLMConfig)
		}
	}

	return r
}
