package service

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/HKCalvinYau/wati-automation/internal/store"
	"gopkg.in/yaml.v3"
)

//go:embed catalog/categories.yaml
var defaultCatalog []byte

// Category 分类目录条目
type Category struct {
	Code        string              `yaml:"code" json:"code"`
	Name        model.LocalizedText `yaml:"name" json:"name"`
	Description model.LocalizedText `yaml:"description" json:"description"`
	Icon        string              `yaml:"icon" json:"icon,omitempty"`
	Count       int                 `yaml:"-" json:"count"`
	Known       bool                `yaml:"-" json:"known"`
}

type catalogFile struct {
	Categories []Category `yaml:"categories"`
}

// ParseCatalog 解析 YAML 分类目录
func ParseCatalog(data []byte) ([]Category, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse category catalog: %w", err)
	}
	seen := make(map[string]bool, len(f.Categories))
	for _, c := range f.Categories {
		if c.Code == "" {
			return nil, fmt.Errorf("category catalog entry without code")
		}
		if seen[c.Code] {
			return nil, fmt.Errorf("duplicate category code in catalog: %s", c.Code)
		}
		seen[c.Code] = true
	}
	return f.Categories, nil
}

// LoadCatalog 读取分类目录,path 为空时使用内置目录
func LoadCatalog(path string) ([]Category, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category catalog: %w", err)
	}
	return ParseCatalog(data)
}

// CategoryService 分类服务接口
type CategoryService interface {
	List(ctx context.Context) ([]Category, error)
}

// categoryService 分类服务实现
type categoryService struct {
	store   store.TemplateStore
	catalog []Category
}

// NewCategoryService 创建分类服务
func NewCategoryService(s store.TemplateStore, catalog []Category) CategoryService {
	return &categoryService{store: s, catalog: catalog}
}

// List 目录分类按目录顺序在前,集合中出现但未登记的分类按代码排序在后
func (s *categoryService) List(ctx context.Context) ([]Category, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	counts := model.CountCategories(doc.Templates)

	out := make([]Category, 0, len(s.catalog)+len(counts))
	known := make(map[string]bool, len(s.catalog))
	for _, c := range s.catalog {
		c.Name = c.Name.Clone()
		c.Description = c.Description.Clone()
		c.Count = counts[c.Code]
		c.Known = true
		known[c.Code] = true
		out = append(out, c)
	}

	var unknown []string
	for code := range counts {
		if !known[code] {
			unknown = append(unknown, code)
		}
	}
	sort.Strings(unknown)
	for _, code := range unknown {
		out = append(out, Category{
			Code:  code,
			Name:  model.LocalizedText{model.LangZh: code},
			Count: counts[code],
		})
	}
	return out, nil
}
