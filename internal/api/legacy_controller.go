package api

import (
	"net/http"

	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/HKCalvinYau/wati-automation/internal/service"
	"github.com/HKCalvinYau/wati-automation/internal/utils"
	"github.com/gin-gonic/gin"
)

// LegacyController 兼容旧前端调用的 *.php 路径
type LegacyController struct {
	queryService    service.QueryService
	templateService service.TemplateService
}

// NewLegacyController 创建兼容控制器
func NewLegacyController(queryService service.QueryService, templateService service.TemplateService) *LegacyController {
	return &LegacyController{
		queryService:    queryService,
		templateService: templateService,
	}
}

// legacyUpdateRequest PUT save-template.php 的请求体,id 放在请求体中
type legacyUpdateRequest struct {
	ID string `json:"id"`
	service.TemplatePatch
}

// legacyImagesRequest save-template-images.php 的请求体
type legacyImagesRequest struct {
	TemplateID string        `json:"templateId"`
	Images     []model.Image `json:"images"`
}

// legacyUsageRequest increment-usage.php 的请求体
type legacyUsageRequest struct {
	TemplateID string `json:"templateId"`
}

// GetTemplates GET /api/get-templates.php
func (c *LegacyController) GetTemplates(ctx *gin.Context) {
	var filter service.TemplateFilter
	if err := ctx.ShouldBindQuery(&filter); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}

	response, err := c.queryService.List(ctx.Request.Context(), filter)
	if err != nil {
		HandleServiceError(ctx, "獲取資料失敗", err)
		return
	}

	writeJSON(ctx, http.StatusOK, Response{Success: true, Data: response})
}

// CreateTemplate POST /api/save-template.php,严格校验后新建
func (c *LegacyController) CreateTemplate(ctx *gin.Context) {
	var req model.Template
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "無效的 JSON 數據", err.Error())
		return
	}

	template, err := c.templateService.CreateWithUniqueID(ctx.Request.Context(), &req)
	if err != nil {
		HandleServiceError(ctx, "保存失敗", err)
		return
	}

	writeJSON(ctx, http.StatusOK, LegacyTemplateResponse{
		Success:  true,
		Message:  "模板保存成功",
		Template: template,
	})
}

// UpdateTemplate PUT /api/save-template.php,合并请求体中出现的字段
func (c *LegacyController) UpdateTemplate(ctx *gin.Context) {
	var req legacyUpdateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "無效的 JSON 數據", err.Error())
		return
	}
	if req.ID == "" {
		Error(ctx, http.StatusBadRequest, "缺少模板 ID", utils.ErrEmptyID.Error())
		return
	}

	template, err := c.templateService.MergeFields(ctx.Request.Context(), req.ID, &req.TemplatePatch, service.MergeOptions{})
	if err != nil {
		HandleServiceError(ctx, "更新失敗", err)
		return
	}

	writeJSON(ctx, http.StatusOK, LegacyTemplateResponse{
		Success:  true,
		Message:  "模板更新成功",
		Template: template,
	})
}

// DeleteTemplate DELETE /api/save-template.php?id=<id>
func (c *LegacyController) DeleteTemplate(ctx *gin.Context) {
	id := ctx.Query("id")
	if id == "" {
		Error(ctx, http.StatusBadRequest, "缺少模板 ID", utils.ErrEmptyID.Error())
		return
	}

	if err := c.templateService.Delete(ctx.Request.Context(), id); err != nil {
		HandleServiceError(ctx, "刪除失敗", err)
		return
	}

	writeJSON(ctx, http.StatusOK, Response{Success: true, Message: "模板刪除成功"})
}

// SaveSimple POST /api/save-template-simple.php
func (c *LegacyController) SaveSimple(ctx *gin.Context) {
	var req service.SimpleSaveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "無效的 JSON 數據", err.Error())
		return
	}

	result, err := c.templateService.SaveSimple(ctx.Request.Context(), &req)
	if err != nil {
		HandleServiceError(ctx, "保存失敗", err)
		return
	}

	message := "模板更新成功"
	if result.Created {
		message = "模板新增成功"
	}
	SuccessWithMessage(ctx, http.StatusOK, message, result)
}

// SaveImages POST /api/save-template-images.php
func (c *LegacyController) SaveImages(ctx *gin.Context) {
	var req legacyImagesRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "無效的 JSON 數據", err.Error())
		return
	}
	if req.TemplateID == "" {
		Error(ctx, http.StatusBadRequest, "缺少模板ID", utils.ErrEmptyID.Error())
		return
	}

	result, err := c.templateService.SetImages(ctx.Request.Context(), req.TemplateID, req.Images)
	if err != nil {
		HandleServiceError(ctx, "圖片保存失敗", err)
		return
	}

	SuccessWithMessage(ctx, http.StatusOK, "圖片保存成功", result)
}

// IncrementUsage POST /api/increment-usage.php
func (c *LegacyController) IncrementUsage(ctx *gin.Context) {
	var req legacyUsageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "無效的 JSON 數據", err.Error())
		return
	}
	if req.TemplateID == "" {
		Error(ctx, http.StatusBadRequest, "缺少模板ID", utils.ErrEmptyID.Error())
		return
	}

	result, err := c.templateService.IncrementUsage(ctx.Request.Context(), req.TemplateID)
	if err != nil {
		HandleServiceError(ctx, "更新失敗", err)
		return
	}

	SuccessWithMessage(ctx, http.StatusOK, "使用次數更新成功", result)
}
