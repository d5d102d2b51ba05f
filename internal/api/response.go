package api

import (
	"net/http"

	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/gin-gonic/gin"
)

// Response 统一响应格式
// @Description 统一响应格式,包含成功标记、消息和数据
type Response struct {
	Success bool        `json:"success" example:"true"`
	Message string      `json:"message,omitempty" example:"success"` // 响应消息
	Data    interface{} `json:"data,omitempty"`                      // 响应数据
}

// ErrorResponse 错误响应格式
// @Description 错误响应格式,包含错误消息和错误详情
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Message string `json:"message" example:"invalid request"`           // 错误消息
	Detail  string `json:"detail,omitempty" example:"validation failed"` // 错误详情(可选)
}

// LegacyTemplateResponse save-template.php 的响应,模板放在顶层 template 字段
type LegacyTemplateResponse struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Template *model.Template `json:"template,omitempty"`
}

// writeJSON 输出缩进 4 空格、不转义 HTML 与 Unicode 的 JSON
func writeJSON(c *gin.Context, status int, v interface{}) {
	data, err := model.MarshalPretty(v)
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	SuccessWithMessage(c, http.StatusOK, "success", data)
}

// SuccessWithMessage 带消息的成功响应
func SuccessWithMessage(c *gin.Context, status int, message string, data interface{}) {
	writeJSON(c, status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string, detail string) {
	statusCode := http.StatusInternalServerError
	if code >= 400 && code < 600 {
		statusCode = code
	}

	writeJSON(c, statusCode, ErrorResponse{
		Success: false,
		Message: message,
		Detail:  detail,
	})
}

// AbortWithError 错误响应并终止后续处理
func AbortWithError(c *gin.Context, code int, message string, detail string) {
	Error(c, code, message, detail)
	c.Abort()
}
