package api

import (
	"errors"
	"net/http"

	"github.com/HKCalvinYau/wati-automation/internal/logger"
	"github.com/HKCalvinYau/wati-automation/internal/service"
	"github.com/HKCalvinYau/wati-automation/internal/store"
	"github.com/HKCalvinYau/wati-automation/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件,处理 handler 通过 c.Error 留下的错误
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			return
		}
		HandleServiceError(c, "internal server error", err)
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// StatusForError 服务错误对应的 HTTP 状态码
func StatusForError(err error) int {
	var validationErr *utils.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, service.ErrBackupNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HandleServiceError 按错误类型写回错误响应
func HandleServiceError(c *gin.Context, message string, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Get().WithFields(logrus.Fields{
			"request_id": c.GetString(RequestIDKey),
			"path":       c.Request.URL.Path,
		}).WithError(err).Error(message)
	}

	switch status {
	case http.StatusNotFound:
		message = "template not found"
		if errors.Is(err, service.ErrBackupNotFound) {
			message = "backup not found"
		}
	case http.StatusBadRequest:
		message = "invalid request"
	case http.StatusConflict:
		message = "duplicate template id"
	}
	Error(c, status, message, err.Error())
}
