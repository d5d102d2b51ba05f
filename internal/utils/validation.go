package utils

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/HKCalvinYau/wati-automation/internal/model"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// 与 SQL 存储的列宽一致
const (
	MaxIDLength       = 64
	MaxCategoryLength = 32
)

// ValidateTemplateID 验证模板 ID 格式
func ValidateTemplateID(id string) error {
	// 1. 检查是否为空
	if id == "" {
		return ErrEmptyID
	}

	// 2. 检查长度
	if len(id) > MaxIDLength {
		return ErrIDTooLong
	}

	// 3. 只允许字母、数字、连字符、下划线
	if !idPattern.MatchString(id) {
		return ErrInvalidIDFormat
	}

	return nil
}

// ValidateCode 验证模板代码,规则与 ID 相同
func ValidateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return ErrEmptyCode
	}
	if err := ValidateTemplateID(code); err != nil {
		return &ValidationError{Code: "INVALID_CODE", Field: "code", Message: "code " + err.Error()}
	}
	return nil
}

// ValidateCategory 验证分类代码,未登记的分类原样保留,只检查非空与长度
func ValidateCategory(category string) error {
	trimmed := strings.TrimSpace(category)
	if trimmed == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(trimmed) > MaxCategoryLength {
		return ErrCategoryTooLong
	}
	return nil
}

// ValidateStatus 验证状态,为空时允许
func ValidateStatus(status model.Status) error {
	if status == "" || status.Valid() {
		return nil
	}
	return ErrInvalidStatus
}

// RequireText 要求多语言文本的 zh 值非空
func RequireText(text model.LocalizedText, field string) error {
	if strings.TrimSpace(text[model.LangZh]) == "" {
		return &ValidationError{Code: "MISSING_ZH", Field: field, Message: field + ".zh is required"}
	}
	return nil
}

// ValidateStrictTemplate 严格校验: code、category、title.zh、content.zh 必填
func ValidateStrictTemplate(t *model.Template) error {
	if err := ValidateCode(t.Code); err != nil {
		return err
	}
	if err := ValidateCategory(t.Category); err != nil {
		return err
	}
	if err := RequireText(t.Title, "title"); err != nil {
		return err
	}
	if err := RequireText(t.Content, "content"); err != nil {
		return err
	}
	return ValidateStatus(t.Status)
}

// TrimAndValidate 清理并验证字符串
func TrimAndValidate(s string, maxLen int) (string, error) {
	// 1. 去除首尾空白字符
	trimmed := strings.TrimSpace(s)

	// 2. 检查是否为空
	if trimmed == "" {
		return "", ErrEmptyString
	}

	// 3. 检查长度
	if maxLen > 0 && utf8.RuneCountInString(trimmed) > maxLen {
		return "", ErrStringTooLong
	}

	return trimmed, nil
}

// TrimOptional 可选字段,空白视为未提供
func TrimOptional(s string, maxLen int) (string, error) {
	trimmed, err := TrimAndValidate(s, maxLen)
	if errors.Is(err, ErrEmptyString) {
		return "", nil
	}
	return trimmed, err
}

// 错误定义
var (
	ErrEmptyID         = &ValidationError{Code: "EMPTY_ID", Field: "id", Message: "id cannot be empty"}
	ErrInvalidIDFormat = &ValidationError{Code: "INVALID_ID_FORMAT", Field: "id", Message: "id contains invalid characters"}
	ErrIDTooLong       = &ValidationError{Code: "ID_TOO_LONG", Field: "id", Message: "id exceeds maximum length"}
	ErrEmptyCode       = &ValidationError{Code: "EMPTY_CODE", Field: "code", Message: "code cannot be empty"}
	ErrCodeTooLong     = &ValidationError{Code: "CODE_TOO_LONG", Field: "code", Message: "code exceeds maximum length"}
	ErrEmptyCategory   = &ValidationError{Code: "EMPTY_CATEGORY", Field: "category", Message: "category cannot be empty"}
	ErrCategoryTooLong = &ValidationError{Code: "CATEGORY_TOO_LONG", Field: "category", Message: "category exceeds maximum length"}
	ErrInvalidStatus   = &ValidationError{Code: "INVALID_STATUS", Field: "status", Message: "status must be one of active, draft, inactive"}
	ErrEmptyString     = &ValidationError{Code: "EMPTY_STRING", Message: "string cannot be empty"}
	ErrStringTooLong   = &ValidationError{Code: "STRING_TOO_LONG", Message: "string exceeds maximum length"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError 创建验证错误
func NewValidationError(code, field, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: message}
}
