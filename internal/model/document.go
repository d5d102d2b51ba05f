package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// SchemaVersion 存储文档的结构版本
const SchemaVersion = "2.0.0"

// CategoryCounts 分类计数
type CategoryCounts map[string]int

// UnmarshalJSON 兼容旧数据中空分类写成 [] 的情况
func (c *CategoryCounts) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		*c = CategoryCounts{}
		return nil
	}
	m := map[string]int{}
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	*c = m
	return nil
}

// Metadata 存储文档元数据
type Metadata struct {
	TotalTemplates int            `json:"totalTemplates"`
	Categories     CategoryCounts `json:"categories"`
	LastUpdated    string         `json:"lastUpdated"`
	Version        string         `json:"version"`

	// 仅出现在查询响应中
	FilteredCount *int `json:"filteredCount,omitempty"`
	Limit         *int `json:"limit,omitempty"`
	Offset        *int `json:"offset,omitempty"`
}

// Document 持久化的根对象
type Document struct {
	Metadata  Metadata   `json:"metadata"`
	Templates []Template `json:"templates"`
}

// NewDocument 创建空文档
func NewDocument(now string) *Document {
	return &Document{
		Metadata: Metadata{
			TotalTemplates: 0,
			Categories:     CategoryCounts{},
			LastUpdated:    now,
			Version:        SchemaVersion,
		},
		Templates: []Template{},
	}
}

// CountCategories 统计每个分类的模板数量
func CountCategories(templates []Template) CategoryCounts {
	counts := CategoryCounts{}
	for i := range templates {
		counts[templates[i].Category]++
	}
	return counts
}

// Recompute 重新计算元数据,并清除分页字段
func (d *Document) Recompute(now string) {
	if d.Templates == nil {
		d.Templates = []Template{}
	}
	d.Metadata.TotalTemplates = len(d.Templates)
	d.Metadata.Categories = CountCategories(d.Templates)
	d.Metadata.LastUpdated = now
	if d.Metadata.Version == "" {
		d.Metadata.Version = SchemaVersion
	}
	d.Metadata.FilteredCount = nil
	d.Metadata.Limit = nil
	d.Metadata.Offset = nil
}

// IndexOf 返回指定 id 的位置,不存在返回 -1
func (d *Document) IndexOf(id string) int {
	for i := range d.Templates {
		if d.Templates[i].ID == id {
			return i
		}
	}
	return -1
}

// Find 查找模板
func (d *Document) Find(id string) *Template {
	if i := d.IndexOf(id); i >= 0 {
		return &d.Templates[i]
	}
	return nil
}

// Remove 删除第一个匹配的模板,保持其余顺序
func (d *Document) Remove(id string) bool {
	i := d.IndexOf(id)
	if i < 0 {
		return false
	}
	d.Templates = append(d.Templates[:i], d.Templates[i+1:]...)
	return true
}

// DuplicateIDs 返回重复出现的 id
func (d *Document) DuplicateIDs() []string {
	seen := make(map[string]int, len(d.Templates))
	var dups []string
	for i := range d.Templates {
		id := d.Templates[i].ID
		seen[id]++
		if seen[id] == 2 {
			dups = append(dups, id)
		}
	}
	return dups
}

// UniqueID 基于 code 生成不冲突的 id: code, code_1, code_2 ...
func (d *Document) UniqueID(code string) string {
	ids := make(map[string]struct{}, len(d.Templates))
	for i := range d.Templates {
		ids[d.Templates[i].ID] = struct{}{}
	}
	id := code
	for n := 1; ; n++ {
		if _, taken := ids[id]; !taken {
			return id
		}
		id = code + "_" + strconv.Itoa(n)
	}
}
