package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/HKCalvinYau/wati-automation/internal/model"
)

// EncodeDocument 以 4 空格缩进输出 UTF-8 JSON,非 ASCII 与 HTML 字符不转义
func EncodeDocument(doc *model.Document) ([]byte, error) {
	return encodePretty(doc)
}

func encodePretty(v interface{}) ([]byte, error) {
	return model.MarshalPretty(v)
}

// DecodeDocument 解析存储文档,缺少 templates 数组视为损坏
func DecodeDocument(data []byte) (*model.Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	raw, ok := top["templates"]
	if !ok {
		return nil, fmt.Errorf("%w: missing templates array", ErrCorruptData)
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: templates is not an array", ErrCorruptData)
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if doc.Templates == nil {
		doc.Templates = []model.Template{}
	}
	if doc.Metadata.Categories == nil {
		doc.Metadata.Categories = model.CategoryCounts{}
	}
	if doc.Metadata.Version == "" {
		doc.Metadata.Version = model.SchemaVersion
	}
	return &doc, nil
}
