package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/HKCalvinYau/wati-automation/internal/store"
)

// 热门模板默认数量
const defaultTopUsed = 10

// StatisticsService 统计服务接口
type StatisticsService interface {
	GetStatistics(ctx context.Context, top int) (*TemplateStatistics, error)
	Distribution(ctx context.Context) (byCategory, byStatus map[string]int, err error)
}

// TemplateStatistics 模板统计
type TemplateStatistics struct {
	TotalTemplates int              `json:"totalTemplates"`
	TotalUsage     int              `json:"totalUsage"`
	ByCategory     map[string]int   `json:"byCategory"`
	ByStatus       map[string]int   `json:"byStatus"`
	TopUsed        []*TemplateUsage `json:"topUsed"`
	NeverUsed      int              `json:"neverUsed"`
	LastUpdated    string           `json:"lastUpdated"`
}

// TemplateUsage 单个模板的使用情况
type TemplateUsage struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Category   string `json:"category"`
	Title      string `json:"title"`
	UsageCount int    `json:"usageCount"`
	LastUsed   string `json:"lastUsed,omitempty"`
}

// statisticsService 统计服务实现
type statisticsService struct {
	store store.TemplateStore
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(s store.TemplateStore) StatisticsService {
	return &statisticsService{store: s}
}

// GetStatistics 汇总分类、状态与使用次数
func (s *statisticsService) GetStatistics(ctx context.Context, top int) (*TemplateStatistics, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	if top <= 0 {
		top = defaultTopUsed
	}

	stats := &TemplateStatistics{
		TotalTemplates: len(doc.Templates),
		ByCategory:     model.CountCategories(doc.Templates),
		ByStatus:       countStatuses(doc.Templates),
		LastUpdated:    doc.Metadata.LastUpdated,
	}

	usages := make([]*TemplateUsage, 0, len(doc.Templates))
	for _, t := range doc.Templates {
		stats.TotalUsage += t.UsageCount
		if t.UsageCount == 0 {
			stats.NeverUsed++
			continue
		}
		usages = append(usages, &TemplateUsage{
			ID:         t.ID,
			Code:       t.Code,
			Category:   t.Category,
			Title:      t.Title.Get(model.LangZh),
			UsageCount: t.UsageCount,
			LastUsed:   t.LastUsed,
		})
	}

	// 次数相同按存储顺序
	sort.SliceStable(usages, func(i, j int) bool {
		return usages[i].UsageCount > usages[j].UsageCount
	})
	if len(usages) > top {
		usages = usages[:top]
	}
	stats.TopUsed = usages

	return stats, nil
}

// Distribution 分类与状态分布,供指标收集器使用
func (s *statisticsService) Distribution(ctx context.Context) (map[string]int, map[string]int, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return model.CountCategories(doc.Templates), countStatuses(doc.Templates), nil
}

func countStatuses(templates []model.Template) map[string]int {
	counts := make(map[string]int)
	for _, t := range templates {
		status := string(t.Status)
		if status == "" {
			status = string(model.StatusActive)
		}
		counts[status]++
	}
	return counts
}
