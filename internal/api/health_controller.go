package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/database"
	"github.com/HKCalvinYau/wati-automation/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthController 健康检查控制器
type HealthController struct {
	store store.TemplateStore
	db    *gorm.DB
	redis redis.UniversalClient
}

// NewHealthController 创建健康检查控制器,db 与 redis 可为空
func NewHealthController(s store.TemplateStore, db *gorm.DB, rdb redis.UniversalClient) *HealthController {
	return &HealthController{
		store: s,
		db:    db,
		redis: rdb,
	}
}

// Check 健康检查
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	// 模板存储可读
	if doc, err := c.store.Load(reqCtx); err != nil {
		status = "unhealthy"
		checks["store"] = "unhealthy: " + err.Error()
	} else {
		checks["store"] = "healthy"
		checks["templates"] = strconv.Itoa(doc.Metadata.TotalTemplates)
	}

	// 检查数据库连接
	if c.db != nil {
		if err := database.CheckHealth(reqCtx, c.db); err != nil {
			status = "unhealthy"
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	// Redis 只是使用统计副本,不可用时降级
	if c.redis != nil {
		if err := c.redis.Ping(reqCtx).Err(); err != nil {
			if status == "healthy" {
				status = "degraded"
			}
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(ctx, httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}
