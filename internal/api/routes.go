package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/HKCalvinYau/wati-automation/internal/auth"
	"github.com/HKCalvinYau/wati-automation/internal/config"
	"github.com/HKCalvinYau/wati-automation/internal/logger"
	"github.com/HKCalvinYau/wati-automation/internal/websocket"
	"github.com/gin-gonic/gin"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config    *config.Config
	Hub       *websocket.Hub              // 为空时不注册 /ws/templates
	Validator *auth.EditorTokenValidator  // 为空时写操作不校验
	Health    *HealthController
	Templates *TemplateController
	Legacy    *LegacyController
	Catalog   *CatalogController
	Backups   *BackupController // 为空时不注册备份路由
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true

	// 中间件
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Get().WithField("request_id", c.GetString(RequestIDKey)).
			Errorf("panic recovered: %v", recovered)
		AbortWithError(c, http.StatusInternalServerError, "internal server error", "")
	}))
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(SecurityHeadersMiddleware())
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware())
	}
	if cfg.RateLimit.Enabled {
		router.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	router.Use(ErrorHandlerMiddleware())

	// 健康检查
	if deps.Health != nil {
		router.GET("/health", deps.Health.Check)
	}

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler)

	// 模板变更推送
	if deps.Hub != nil {
		router.GET("/ws/templates", websocket.WebSocketHandler(deps.Hub, cfg.CORS.AllowedOrigins))
	}

	editor := auth.EditorAuthMiddleware(deps.Validator, Error)

	// API v1 路由组
	v1 := router.Group("/api/v1", NoCacheMiddleware())
	{
		templates := v1.Group("/templates")
		{
			templates.GET("", deps.Templates.List)
			templates.GET("/:id", deps.Templates.Get)
			templates.POST("", editor, deps.Templates.Create)
			templates.PUT("/:id", editor, deps.Templates.Upsert)
			templates.PATCH("/:id", editor, deps.Templates.Patch)
			templates.DELETE("/:id", editor, deps.Templates.Delete)
			templates.PUT("/:id/images", editor, deps.Templates.SetImages)
			templates.POST("/:id/usage", deps.Templates.IncrementUsage)
		}

		v1.GET("/categories", deps.Catalog.Categories)
		v1.GET("/statistics", deps.Catalog.Statistics)

		// 备份管理路由
		if deps.Backups != nil {
			backups := v1.Group("/backups", editor)
			{
				backups.POST("", deps.Backups.CreateBackup)
				backups.GET("", deps.Backups.ListBackups)
				backups.POST("/:filename/restore", deps.Backups.RestoreBackup)
				backups.DELETE("/:filename", deps.Backups.DeleteBackup)
			}
		}
	}

	// 旧前端使用的路径
	legacy := router.Group("/api", NoCacheMiddleware())
	{
		legacy.GET("/get-templates.php", deps.Legacy.GetTemplates)
		legacy.POST("/save-template.php", editor, deps.Legacy.CreateTemplate)
		legacy.PUT("/save-template.php", editor, deps.Legacy.UpdateTemplate)
		legacy.DELETE("/save-template.php", editor, deps.Legacy.DeleteTemplate)
		legacy.POST("/save-template-simple.php", editor, deps.Legacy.SaveSimple)
		legacy.POST("/save-template-images.php", editor, deps.Legacy.SaveImages)
		legacy.POST("/increment-usage.php", deps.Legacy.IncrementUsage)
	}

	router.NoMethod(func(c *gin.Context) {
		Error(c, http.StatusMethodNotAllowed, "method not allowed",
			fmt.Sprintf("%s is not supported on %s", c.Request.Method, c.Request.URL.Path))
	})

	// 未匹配的 API 路由返回 JSON 404,其余路径尝试静态文件
	staticHandler := newStaticHandler(cfg.Server.StaticDir)
	router.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		isAPI := strings.HasPrefix(path, "/api/") || path == "/api"
		if !isAPI && staticHandler != nil && staticHandler.serve(c) {
			return
		}
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}

// staticHandler 提供前端静态文件
type staticHandler struct {
	root string
	fs   http.Handler
}

func newStaticHandler(dir string) *staticHandler {
	if dir == "" {
		return nil
	}
	return &staticHandler{root: dir, fs: http.FileServer(http.Dir(dir))}
}

// serve 文件存在时输出并返回 true
func (h *staticHandler) serve(c *gin.Context) bool {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		return false
	}

	name := filepath.Join(h.root, filepath.FromSlash(filepath.Clean("/"+c.Request.URL.Path)))
	info, err := os.Stat(name)
	if err != nil {
		return false
	}
	if info.IsDir() {
		if _, err := os.Stat(filepath.Join(name, "index.html")); err != nil {
			return false
		}
	}

	c.Status(http.StatusOK)
	h.fs.ServeHTTP(c.Writer, c.Request)
	return true
}
