package api

import (
	"net/http"

	"github.com/HKCalvinYau/wati-automation/internal/service"
	"github.com/gin-gonic/gin"
)

// BackupController 备份控制器
type BackupController struct {
	backupService *service.BackupService
}

// NewBackupController 创建备份控制器
func NewBackupController(backupService *service.BackupService) *BackupController {
	return &BackupController{
		backupService: backupService,
	}
}

// RestoreResult 恢复结果
type RestoreResult struct {
	Filename       string `json:"filename"`
	TotalTemplates int    `json:"totalTemplates"`
	LastUpdated    string `json:"lastUpdated"`
}

// CreateBackup 创建备份
// @Summary      创建模板快照
// @Description  把当前模板集合打包为 tar.gz
// @Tags         系统管理
// @Produce      json
// @Success      201  {object}  Response{data=service.BackupInfo}
// @Failure      500  {object}  ErrorResponse
// @Router       /backups [post]
// @Security     BearerAuth
func (c *BackupController) CreateBackup(ctx *gin.Context) {
	backupPath, err := c.backupService.CreateBackup(ctx.Request.Context())
	if err != nil {
		HandleServiceError(ctx, "failed to create backup", err)
		return
	}

	backups, err := c.backupService.ListBackups(ctx.Request.Context())
	if err != nil {
		HandleServiceError(ctx, "failed to list backups", err)
		return
	}

	// 找到刚创建的备份
	for i := range backups {
		if backups[i].Path == backupPath {
			SuccessWithMessage(ctx, http.StatusCreated, "backup created", backups[i])
			return
		}
	}
	Error(ctx, http.StatusInternalServerError, "backup created but not found", backupPath)
}

// ListBackups 列出所有备份
// @Summary      列出所有备份
// @Tags         系统管理
// @Produce      json
// @Success      200  {object}  Response{data=[]service.BackupInfo}
// @Failure      500  {object}  ErrorResponse
// @Router       /backups [get]
// @Security     BearerAuth
func (c *BackupController) ListBackups(ctx *gin.Context) {
	backups, err := c.backupService.ListBackups(ctx.Request.Context())
	if err != nil {
		HandleServiceError(ctx, "failed to list backups", err)
		return
	}

	Success(ctx, backups)
}

// RestoreBackup 恢复备份
// @Summary      恢复模板快照
// @Description  用快照整体替换当前模板集合
// @Tags         系统管理
// @Produce      json
// @Param        filename path string true "备份文件名"
// @Success      200  {object}  Response{data=RestoreResult}
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /backups/{filename}/restore [post]
// @Security     BearerAuth
func (c *BackupController) RestoreBackup(ctx *gin.Context) {
	filename := ctx.Param("filename")

	doc, err := c.backupService.RestoreBackup(ctx.Request.Context(), filename)
	if err != nil {
		HandleServiceError(ctx, "failed to restore backup", err)
		return
	}

	SuccessWithMessage(ctx, http.StatusOK, "backup restored", RestoreResult{
		Filename:       filename,
		TotalTemplates: doc.Metadata.TotalTemplates,
		LastUpdated:    doc.Metadata.LastUpdated,
	})
}

// DeleteBackup 删除备份
// @Summary      删除备份
// @Tags         系统管理
// @Produce      json
// @Param        filename path string true "备份文件名"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /backups/{filename} [delete]
// @Security     BearerAuth
func (c *BackupController) DeleteBackup(ctx *gin.Context) {
	if err := c.backupService.DeleteBackup(ctx.Request.Context(), ctx.Param("filename")); err != nil {
		HandleServiceError(ctx, "failed to delete backup", err)
		return
	}

	SuccessWithMessage(ctx, http.StatusOK, "backup deleted", nil)
}
