package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/HKCalvinYau/wati-automation/internal/store"
)

// CategoryAll 不按分类过滤的哨兵值
const CategoryAll = "all"

// TemplateFilter 模板列表查询过滤器
type TemplateFilter struct {
	Category string `form:"category"`
	Status   string `form:"status"`
	Search   string `form:"search"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// FilterResult 过滤结果
type FilterResult struct {
	Templates []model.Template
	Matched   int // 过滤后、分页前的数量
	Limit     int
	Offset    int
}

// FilterTemplates 依次按 分类 → 状态 → 关键词 过滤,再分页
// 不修改传入的切片
func FilterTemplates(templates []model.Template, filter TemplateFilter) FilterResult {
	matched := make([]model.Template, 0, len(templates))
	search := strings.ToLower(filter.Search)

	for i := range templates {
		t := &templates[i]
		if filter.Category != "" && filter.Category != CategoryAll && t.Category != filter.Category {
			continue
		}
		if filter.Status != "" && string(t.Status) != filter.Status {
			continue
		}
		if search != "" && !strings.Contains(t.SearchText(), search) {
			continue
		}
		matched = append(matched, *t)
	}

	limit, offset := filter.Limit, filter.Offset
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}

	page := matched
	if limit > 0 {
		start := offset
		if start > len(matched) {
			start = len(matched)
		}
		end := start + limit
		if end > len(matched) {
			end = len(matched)
		}
		page = matched[start:end]
	}

	return FilterResult{
		Templates: page,
		Matched:   len(matched),
		Limit:     limit,
		Offset:    offset,
	}
}

// TemplateListResponse 模板列表响应
type TemplateListResponse struct {
	Metadata  model.Metadata   `json:"metadata"`
	Templates []model.Template `json:"templates"`
}

// QueryService 查询服务接口
type QueryService interface {
	List(ctx context.Context, filter TemplateFilter) (*TemplateListResponse, error)
	Get(ctx context.Context, id string) (*model.Template, error)
}

// queryService 查询服务实现
type queryService struct {
	store store.TemplateStore
}

// NewQueryService 创建查询服务
func NewQueryService(s store.TemplateStore) QueryService {
	return &queryService{store: s}
}

// List 过滤并分页
// totalTemplates 与 filteredCount 都是分页前的匹配数,categories 始终按完整集合统计
func (s *queryService) List(ctx context.Context, filter TemplateFilter) (*TemplateListResponse, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	result := FilterTemplates(doc.Templates, filter)
	filtered := result.Matched
	limit, offset := result.Limit, result.Offset

	meta := doc.Metadata
	meta.TotalTemplates = result.Matched
	meta.Categories = model.CountCategories(doc.Templates)
	meta.FilteredCount = &filtered
	meta.Limit = &limit
	meta.Offset = &offset

	return &TemplateListResponse{
		Metadata:  meta,
		Templates: result.Templates,
	}, nil
}

// Get 获取单个模板
func (s *queryService) Get(ctx context.Context, id string) (*model.Template, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	t := doc.Find(id)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	out := t.Clone()
	return &out, nil
}
