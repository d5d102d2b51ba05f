package api

import (
	"net/http"
	"strconv"

	"github.com/HKCalvinYau/wati-automation/internal/service"
	"github.com/gin-gonic/gin"
)

// CatalogController 分类与统计
type CatalogController struct {
	categoryService   service.CategoryService
	statisticsService service.StatisticsService
}

// NewCatalogController 创建分类与统计控制器
func NewCatalogController(categoryService service.CategoryService, statisticsService service.StatisticsService) *CatalogController {
	return &CatalogController{
		categoryService:   categoryService,
		statisticsService: statisticsService,
	}
}

// Categories 分类列表
// @Summary      分类列表
// @Description  目录中的分类附带模板数量,未登记但被使用的分类排在最后
// @Tags         分类
// @Produce      json
// @Success      200  {object}  Response{data=[]service.Category}
// @Failure      500  {object}  ErrorResponse
// @Router       /categories [get]
func (c *CatalogController) Categories(ctx *gin.Context) {
	categories, err := c.categoryService.List(ctx.Request.Context())
	if err != nil {
		HandleServiceError(ctx, "failed to list categories", err)
		return
	}
	Success(ctx, categories)
}

// Statistics 使用统计
// @Summary      模板统计
// @Tags         统计
// @Produce      json
// @Param        top query int false "热门模板数量" default(10)
// @Success      200  {object}  Response{data=service.TemplateStatistics}
// @Failure      400  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /statistics [get]
func (c *CatalogController) Statistics(ctx *gin.Context) {
	top := 0
	if raw := ctx.Query("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			Error(ctx, http.StatusBadRequest, "invalid query parameters", "top must be a non-negative integer")
			return
		}
		top = n
	}

	stats, err := c.statisticsService.GetStatistics(ctx.Request.Context(), top)
	if err != nil {
		HandleServiceError(ctx, "failed to get statistics", err)
		return
	}
	Success(ctx, stats)
}
