package api

import (
	"net/http"
	"strconv"

	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/HKCalvinYau/wati-automation/internal/service"
	"github.com/HKCalvinYau/wati-automation/internal/utils"
	"github.com/gin-gonic/gin"
)

// TemplateController 模板控制器
type TemplateController struct {
	queryService    service.QueryService
	templateService service.TemplateService
}

// NewTemplateController 创建模板控制器
func NewTemplateController(queryService service.QueryService, templateService service.TemplateService) *TemplateController {
	return &TemplateController{
		queryService:    queryService,
		templateService: templateService,
	}
}

// ImagesRequest 替换图片请求
type ImagesRequest struct {
	Images []model.Image `json:"images"`
}

// List 列出模板
// @Summary      获取模板列表
// @Description  按分类、状态、关键词过滤并分页; metadata.categories 始终统计全部模板
// @Tags         模板管理
// @Produce      json
// @Param        category query string false "分类代码, all 表示不过滤"
// @Param        status query string false "状态"
// @Param        search query string false "关键词,不区分大小写"
// @Param        limit query int false "每页数量, 0 表示不分页"
// @Param        offset query int false "偏移"
// @Success      200  {object}  Response{data=service.TemplateListResponse}
// @Failure      400  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /templates [get]
func (c *TemplateController) List(ctx *gin.Context) {
	var filter service.TemplateFilter
	if err := ctx.ShouldBindQuery(&filter); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}

	response, err := c.queryService.List(ctx.Request.Context(), filter)
	if err != nil {
		HandleServiceError(ctx, "failed to list templates", err)
		return
	}

	Success(ctx, response)
}

// Get 获取模板
// @Summary      获取模板详情
// @Tags         模板管理
// @Produce      json
// @Param        id path string true "模板 ID"
// @Success      200  {object}  Response{data=model.Template}
// @Failure      404  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /templates/{id} [get]
func (c *TemplateController) Get(ctx *gin.Context) {
	id := ctx.Param("id")

	// 验证模板 ID 格式
	if err := utils.ValidateTemplateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid template id", err.Error())
		return
	}

	template, err := c.queryService.Get(ctx.Request.Context(), id)
	if err != nil {
		HandleServiceError(ctx, "failed to get template", err)
		return
	}

	Success(ctx, template)
}

// Create 创建模板
// @Summary      创建模板
// @Description  id 由 code 生成,重复时追加 _1、_2 后缀
// @Tags         模板管理
// @Accept       json
// @Produce      json
// @Param        request body model.Template true "模板信息"
// @Success      201  {object}  Response{data=model.Template}
// @Failure      400  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /templates [post]
// @Security     BearerAuth
func (c *TemplateController) Create(ctx *gin.Context) {
	var req model.Template
	if err := ctx.ShouldBindJSON(&req); err != nil {
		// 由 ErrorHandlerMiddleware 写回
		_ = ctx.Error(WrapError(err, http.StatusBadRequest, "invalid request"))
		return
	}

	template, err := c.templateService.CreateWithUniqueID(ctx.Request.Context(), &req)
	if err != nil {
		HandleServiceError(ctx, "failed to create template", err)
		return
	}

	SuccessWithMessage(ctx, http.StatusCreated, "template created", template)
}

// Upsert 整体替换模板,不存在时新建
// @Summary      保存模板
// @Tags         模板管理
// @Accept       json
// @Produce      json
// @Param        id path string true "模板 ID"
// @Param        request body model.Template true "模板信息"
// @Success      200  {object}  Response{data=model.Template}
// @Success      201  {object}  Response{data=model.Template}
// @Failure      400  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /templates/{id} [put]
// @Security     BearerAuth
func (c *TemplateController) Upsert(ctx *gin.Context) {
	id := ctx.Param("id")

	var req model.Template
	if err := ctx.ShouldBindJSON(&req); err != nil {
		// 由 ErrorHandlerMiddleware 写回
		_ = ctx.Error(WrapError(err, http.StatusBadRequest, "invalid request"))
		return
	}
	if req.ID != "" && req.ID != id {
		Error(ctx, http.StatusBadRequest, "invalid request", "body id does not match path id")
		return
	}
	req.ID = id

	template, created, err := c.templateService.UpsertFull(ctx.Request.Context(), &req)
	if err != nil {
		HandleServiceError(ctx, "failed to save template", err)
		return
	}

	if created {
		SuccessWithMessage(ctx, http.StatusCreated, "template created", template)
		return
	}
	SuccessWithMessage(ctx, http.StatusOK, "template updated", template)
}

// Patch 局部更新
// @Summary      局部更新模板
// @Description  只覆盖请求中出现的字段; upsert=true 时不存在则新建
// @Tags         模板管理
// @Accept       json
// @Produce      json
// @Param        id path string true "模板 ID"
// @Param        upsert query bool false "不存在时新建"
// @Param        request body service.TemplatePatch true "需要更新的字段"
// @Success      200  {object}  Response{data=model.Template}
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /templates/{id} [patch]
// @Security     BearerAuth
func (c *TemplateController) Patch(ctx *gin.Context) {
	id := ctx.Param("id")

	opts := service.MergeOptions{}
	if raw := ctx.Query("upsert"); raw != "" {
		upsert, err := strconv.ParseBool(raw)
		if err != nil {
			Error(ctx, http.StatusBadRequest, "invalid query parameters", err.Error())
			return
		}
		opts.CreateIfMissing = upsert
	}

	var patch service.TemplatePatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		// 由 ErrorHandlerMiddleware 写回
		_ = ctx.Error(WrapError(err, http.StatusBadRequest, "invalid request"))
		return
	}

	template, err := c.templateService.MergeFields(ctx.Request.Context(), id, &patch, opts)
	if err != nil {
		HandleServiceError(ctx, "failed to update template", err)
		return
	}

	SuccessWithMessage(ctx, http.StatusOK, "template updated", template)
}

// Delete 删除模板
// @Summary      删除模板
// @Tags         模板管理
// @Produce      json
// @Param        id path string true "模板 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /templates/{id} [delete]
// @Security     BearerAuth
func (c *TemplateController) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := c.templateService.Delete(ctx.Request.Context(), id); err != nil {
		HandleServiceError(ctx, "failed to delete template", err)
		return
	}

	SuccessWithMessage(ctx, http.StatusOK, "template deleted", nil)
}

// SetImages 替换图片列表
// @Summary      保存模板图片
// @Tags         模板管理
// @Accept       json
// @Produce      json
// @Param        id path string true "模板 ID"
// @Param        request body ImagesRequest true "图片列表"
// @Success      200  {object}  Response{data=service.ImagesResult}
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id}/images [put]
// @Security     BearerAuth
func (c *TemplateController) SetImages(ctx *gin.Context) {
	var req ImagesRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		// 由 ErrorHandlerMiddleware 写回
		_ = ctx.Error(WrapError(err, http.StatusBadRequest, "invalid request"))
		return
	}

	result, err := c.templateService.SetImages(ctx.Request.Context(), ctx.Param("id"), req.Images)
	if err != nil {
		HandleServiceError(ctx, "failed to save template images", err)
		return
	}

	SuccessWithMessage(ctx, http.StatusOK, "images saved", result)
}

// IncrementUsage 使用次数加一
// @Summary      记录模板使用
// @Tags         模板管理
// @Produce      json
// @Param        id path string true "模板 ID"
// @Success      200  {object}  Response{data=service.UsageResult}
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id}/usage [post]
func (c *TemplateController) IncrementUsage(ctx *gin.Context) {
	result, err := c.templateService.IncrementUsage(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		HandleServiceError(ctx, "failed to increment usage", err)
		return
	}

	SuccessWithMessage(ctx, http.StatusOK, "usage recorded", result)
}
