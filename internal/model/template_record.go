package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// 与下方 gorm 列宽一致
const (
	recordKeyWidth      = 64
	recordCategoryWidth = 32
	recordStatusWidth   = 16
	recordTitleWidth    = 255
)

// TemplateRecord SQL 存储中的模板行
// 对应原 WordPress 主题中以自定义文章类型保存的模板
type TemplateRecord struct {
	ID       string    `gorm:"primaryKey;type:varchar(64)"`
	Position int       `gorm:"type:int;not null;index"` // 在集合中的顺序
	Code     string    `gorm:"type:varchar(64);index"`
	Category string    `gorm:"type:varchar(32);index"`
	Status   string    `gorm:"type:varchar(16);index"`
	TitleZh  string    `gorm:"type:varchar(255)"`
	Data     string    `gorm:"type:text;not null"` // 序列化后的 Template
	SavedAt  time.Time `gorm:"not null"`
}

// TableName 指定表名
func (TemplateRecord) TableName() string {
	return "wati_templates"
}

// Validate 验证模板行,超出列宽的值在写入前拒绝
func (r *TemplateRecord) Validate() error {
	if r.ID == "" {
		return errors.New("template ID is required")
	}
	if r.Data == "" {
		return errors.New("template data is required")
	}
	for _, col := range []struct {
		name  string
		value string
		width int
	}{
		{"id", r.ID, recordKeyWidth},
		{"code", r.Code, recordKeyWidth},
		{"category", r.Category, recordCategoryWidth},
		{"status", r.Status, recordStatusWidth},
	} {
		if utf8.RuneCountInString(col.value) > col.width {
			return fmt.Errorf("template %s: %s exceeds %d characters", r.ID, col.name, col.width)
		}
	}
	return nil
}

// truncateRunes 按字符截断
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// NewTemplateRecord 由模板构建数据行
func NewTemplateRecord(t Template, position int, savedAt time.Time) (*TemplateRecord, error) {
	data, err := MarshalNoEscape(t)
	if err != nil {
		return nil, err
	}
	return &TemplateRecord{
		ID:       t.ID,
		Position: position,
		Code:     t.Code,
		Category: t.Category,
		Status:   string(t.Status),
		TitleZh:  truncateRunes(t.Title[LangZh], recordTitleWidth), // 仅用于索引
		Data:     string(data),
		SavedAt:  savedAt,
	}, nil
}

// Template 还原模板
func (r *TemplateRecord) Template() (Template, error) {
	var t Template
	if err := json.Unmarshal([]byte(r.Data), &t); err != nil {
		return Template{}, err
	}
	return t, nil
}

// StoreMetaRecord SQL 存储的元数据
type StoreMetaRecord struct {
	Key   string `gorm:"primaryKey;type:varchar(64)"`
	Value string `gorm:"type:text"`
}

// TableName 指定表名
func (StoreMetaRecord) TableName() string {
	return "wati_store_meta"
}
