package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/metrics"
	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/HKCalvinYau/wati-automation/internal/store"
	"github.com/HKCalvinYau/wati-automation/internal/utils"
	"github.com/sirupsen/logrus"
)

// DefaultCategory 简易保存时缺省的分类
const DefaultCategory = "未分類"

// 变更事件类型
const (
	EventTemplateCreated = "template.created"
	EventTemplateUpdated = "template.updated"
	EventTemplateDeleted = "template.deleted"
	EventTemplateImages  = "template.images"
	EventTemplateUsed    = "template.used"
)

// TemplateService 模板服务接口
type TemplateService interface {
	CreateWithUniqueID(ctx context.Context, payload *model.Template) (*model.Template, error)
	UpsertFull(ctx context.Context, tpl *model.Template) (*model.Template, bool, error)
	SaveSimple(ctx context.Context, req *SimpleSaveRequest) (*SimpleSaveResult, error)
	MergeFields(ctx context.Context, id string, patch *TemplatePatch, opts MergeOptions) (*model.Template, error)
	Delete(ctx context.Context, id string) error
	SetImages(ctx context.Context, id string, images []model.Image) (*ImagesResult, error)
	IncrementUsage(ctx context.Context, id string) (*UsageResult, error)
}

// TemplatePatch 局部更新,只覆盖出现的字段
type TemplatePatch struct {
	Code        *string              `json:"code"`
	Category    *string              `json:"category"`
	Status      *model.Status        `json:"status"`
	Title       *model.LocalizedText `json:"title"`
	Description *model.LocalizedText `json:"description"`
	Content     *model.LocalizedText `json:"content"`
	Images      *[]model.Image       `json:"images"`
	Variables   *[]model.Variable    `json:"variables"`
}

// MergeOptions 局部更新选项
type MergeOptions struct {
	// CreateIfMissing id 不存在时新建而不是返回 ErrNotFound
	CreateIfMissing bool
}

// SimpleSaveRequest 简易保存请求,只要求 id 与 title
type SimpleSaveRequest struct {
	ID          string              `json:"id"`
	Code        string              `json:"code"`
	Category    string              `json:"category"`
	Title       model.LocalizedText `json:"title"`
	Description model.LocalizedText `json:"description"`
	Content     model.LocalizedText `json:"content"`
	Status      model.Status        `json:"status"`
}

// SimpleSaveResult 简易保存结果
type SimpleSaveResult struct {
	TemplateID     string `json:"templateId"`
	Created        bool   `json:"created"`
	TotalTemplates int    `json:"totalTemplates"`
	LastUpdated    string `json:"lastUpdated"`
}

// ImagesResult 图片保存结果
type ImagesResult struct {
	TemplateID string `json:"templateId"`
	ImageCount int    `json:"imageCount"`
	UpdatedAt  string `json:"updatedAt"`
}

// UsageResult 使用次数结果
type UsageResult struct {
	TemplateID string `json:"templateId"`
	UsageCount int    `json:"usageCount"`
	LastUsed   string `json:"lastUsed"`
}

// EventPublisher 变更通知
type EventPublisher interface {
	PublishJSON(v interface{}) error
}

// ChangeEvent 推送给订阅者的变更事件
type ChangeEvent struct {
	Type       string          `json:"type"`
	TemplateID string          `json:"templateId"`
	Template   *model.Template `json:"template,omitempty"`
	At         string          `json:"at"`
}

// TemplateServiceOption 模板服务选项
type TemplateServiceOption func(*templateService)

// WithUsageMirror 设置使用统计副本
func WithUsageMirror(m store.UsageMirror) TemplateServiceOption {
	return func(s *templateService) { s.usage = m }
}

// WithAuditLog 设置操作日志
func WithAuditLog(l *store.AuditLog) TemplateServiceOption {
	return func(s *templateService) { s.audit = l }
}

// WithEventPublisher 设置变更通知
func WithEventPublisher(p EventPublisher) TemplateServiceOption {
	return func(s *templateService) { s.events = p }
}

// WithLogger 设置日志记录器
func WithLogger(l logrus.FieldLogger) TemplateServiceOption {
	return func(s *templateService) { s.logger = l }
}

// WithClock 设置时钟
func WithClock(now func() time.Time) TemplateServiceOption {
	return func(s *templateService) { s.now = now }
}

// templateService 模板服务实现
type templateService struct {
	store  store.TemplateStore
	usage  store.UsageMirror
	audit  *store.AuditLog
	events EventPublisher
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewTemplateService 创建模板服务
func NewTemplateService(s store.TemplateStore, opts ...TemplateServiceOption) TemplateService {
	svc := &templateService{
		store:  s,
		logger: logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateWithUniqueID 严格校验后新建,id 由 code 生成并保证唯一
func (s *templateService) CreateWithUniqueID(ctx context.Context, payload *model.Template) (*model.Template, error) {
	tpl := payload.Clone()
	tpl.Code = strings.TrimSpace(tpl.Code)
	tpl.Category = strings.TrimSpace(tpl.Category)
	if err := utils.ValidateStrictTemplate(&tpl); err != nil {
		return nil, err
	}

	var created model.Template
	err := s.store.Update(ctx, func(doc *model.Document) error {
		ts := model.Timestamp(s.now())
		tpl.ID = doc.UniqueID(tpl.Code)
		tpl.CreatedAt = ts
		tpl.UpdatedAt = ts
		tpl.UsageCount = 0
		tpl.LastUsed = ""
		if tpl.Status == "" {
			tpl.Status = model.StatusActive
		}
		if tpl.Variables == nil {
			if vars := model.ExtractVariables(tpl.Content[model.LangZh]); len(vars) > 0 {
				tpl.Variables = vars
			}
		}
		doc.Templates = append(doc.Templates, tpl)
		created = tpl.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	s.afterMutation("create", EventTemplateCreated, created.ID, &created)
	return &created, nil
}

// UpsertFull 按 id 整体替换或追加,保留原 createdAt 与使用统计
func (s *templateService) UpsertFull(ctx context.Context, in *model.Template) (*model.Template, bool, error) {
	tpl := in.Clone()
	if err := utils.ValidateTemplateID(tpl.ID); err != nil {
		return nil, false, err
	}
	if err := utils.ValidateStrictTemplate(&tpl); err != nil {
		return nil, false, err
	}

	var (
		saved   model.Template
		created bool
	)
	err := s.store.Update(ctx, func(doc *model.Document) error {
		ts := model.Timestamp(s.now())
		tpl.UpdatedAt = ts
		if i := doc.IndexOf(tpl.ID); i >= 0 {
			existing := doc.Templates[i]
			tpl.CreatedAt = existing.CreatedAt
			if tpl.CreatedAt == "" {
				tpl.CreatedAt = ts
			}
			tpl.UsageCount = existing.UsageCount
			tpl.LastUsed = existing.LastUsed
			doc.Templates[i] = tpl
		} else {
			created = true
			tpl.CreatedAt = ts
			tpl.UsageCount = 0
			tpl.LastUsed = ""
			doc.Templates = append(doc.Templates, tpl)
		}
		saved = tpl.Clone()
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to save template: %w", err)
	}

	event := EventTemplateUpdated
	if created {
		event = EventTemplateCreated
	}
	s.afterMutation("upsert", event, saved.ID, &saved)
	return &saved, created, nil
}

// SaveSimple 宽松的新增或替换,缺失字段使用缺省值
func (s *templateService) SaveSimple(ctx context.Context, req *SimpleSaveRequest) (*SimpleSaveResult, error) {
	if err := utils.ValidateTemplateID(req.ID); err != nil {
		return nil, err
	}
	if len(req.Title) == 0 {
		return nil, utils.NewValidationError("MISSING_FIELD", "title", "id and title are required")
	}
	if err := utils.ValidateStatus(req.Status); err != nil {
		return nil, err
	}
	code, err := utils.TrimOptional(req.Code, utils.MaxIDLength)
	if err != nil {
		return nil, utils.ErrCodeTooLong
	}
	category, err := utils.TrimOptional(req.Category, utils.MaxCategoryLength)
	if err != nil {
		return nil, utils.ErrCategoryTooLong
	}

	tpl := model.Template{
		ID:          req.ID,
		Code:        firstNonEmpty(code, req.ID),
		Category:    firstNonEmpty(category, DefaultCategory),
		Title:       req.Title.Clone(),
		Description: req.Description.Clone(),
		Content:     req.Content.Clone(),
		Status:      req.Status,
	}
	if len(tpl.Description) == 0 {
		tpl.Description = req.Title.Clone()
	}
	if len(tpl.Content) == 0 {
		tpl.Content = req.Title.Clone()
	}
	if tpl.Status == "" {
		tpl.Status = model.StatusActive
	}

	var (
		result  SimpleSaveResult
		saved   model.Template
		written *model.Document
	)
	err = s.store.Update(ctx, func(doc *model.Document) error {
		written = doc
		ts := model.Timestamp(s.now())
		tpl.UpdatedAt = ts
		if i := doc.IndexOf(tpl.ID); i >= 0 {
			existing := doc.Templates[i]
			tpl.CreatedAt = firstNonEmpty(existing.CreatedAt, ts)
			tpl.UsageCount = existing.UsageCount
			tpl.LastUsed = existing.LastUsed
			tpl.Images = existing.Images
			tpl.Variables = existing.Variables
			tpl.Extra = existing.Extra
			doc.Templates[i] = tpl
		} else {
			result.Created = true
			tpl.CreatedAt = ts
			doc.Templates = append(doc.Templates, tpl)
		}
		saved = tpl.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	// 写回时 Recompute 已原地更新 written.Metadata
	result.TemplateID = saved.ID
	result.TotalTemplates = written.Metadata.TotalTemplates
	result.LastUpdated = written.Metadata.LastUpdated

	event := EventTemplateUpdated
	if result.Created {
		event = EventTemplateCreated
	}
	s.afterMutation("save_simple", event, saved.ID, &saved)
	return &result, nil
}

// MergeFields 只覆盖补丁中出现的字段
func (s *templateService) MergeFields(ctx context.Context, id string, patch *TemplatePatch, opts MergeOptions) (*model.Template, error) {
	if err := utils.ValidateTemplateID(id); err != nil {
		return nil, err
	}
	if patch == nil {
		patch = &TemplatePatch{}
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var (
		merged  model.Template
		created bool
	)
	err := s.store.Update(ctx, func(doc *model.Document) error {
		ts := model.Timestamp(s.now())
		i := doc.IndexOf(id)
		if i < 0 {
			if !opts.CreateIfMissing {
				return fmt.Errorf("%w: %s", store.ErrNotFound, id)
			}
			created = true
			doc.Templates = append(doc.Templates, model.Template{
				ID:        id,
				Code:      id,
				Category:  DefaultCategory,
				Status:    model.StatusActive,
				CreatedAt: ts,
			})
			i = len(doc.Templates) - 1
		}

		t := &doc.Templates[i]
		applyPatch(t, patch)
		t.UpdatedAt = ts
		merged = t.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	event := EventTemplateUpdated
	if created {
		event = EventTemplateCreated
	}
	s.afterMutation("merge", event, merged.ID, &merged)
	return &merged, nil
}

func validatePatch(p *TemplatePatch) error {
	if p.Code != nil {
		if err := utils.ValidateCode(*p.Code); err != nil {
			return err
		}
	}
	if p.Category != nil {
		if err := utils.ValidateCategory(*p.Category); err != nil {
			return err
		}
	}
	if p.Status != nil {
		if *p.Status == "" {
			return utils.ErrInvalidStatus
		}
		if err := utils.ValidateStatus(*p.Status); err != nil {
			return err
		}
	}
	return nil
}

func applyPatch(t *model.Template, p *TemplatePatch) {
	if p.Code != nil {
		t.Code = strings.TrimSpace(*p.Code)
	}
	if p.Category != nil {
		t.Category = strings.TrimSpace(*p.Category)
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Title != nil {
		t.Title = p.Title.Clone()
	}
	if p.Description != nil {
		t.Description = p.Description.Clone()
	}
	if p.Content != nil {
		t.Content = p.Content.Clone()
	}
	if p.Images != nil {
		t.Images = append([]model.Image{}, (*p.Images)...)
	}
	if p.Variables != nil {
		t.Variables = append([]model.Variable{}, (*p.Variables)...)
	}
}

// Delete 删除模板,其余模板保持原有顺序
func (s *templateService) Delete(ctx context.Context, id string) error {
	if err := utils.ValidateTemplateID(id); err != nil {
		return err
	}

	err := s.store.Update(ctx, func(doc *model.Document) error {
		if !doc.Remove(id) {
			return fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	s.afterMutation("delete", EventTemplateDeleted, id, nil)
	return nil
}

// SetImages 整体替换图片列表
func (s *templateService) SetImages(ctx context.Context, id string, images []model.Image) (*ImagesResult, error) {
	if err := utils.ValidateTemplateID(id); err != nil {
		return nil, err
	}
	for i, img := range images {
		if strings.TrimSpace(img.URL) == "" {
			return nil, utils.NewValidationError("MISSING_FIELD", "images", fmt.Sprintf("images[%d].url is required", i))
		}
	}

	var saved model.Template
	err := s.store.Update(ctx, func(doc *model.Document) error {
		t := doc.Find(id)
		if t == nil {
			return fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		ts := model.Timestamp(s.now())
		replaced := make([]model.Image, len(images))
		for i, img := range images {
			if img.AddedAt == "" && img.UpdatedAt == "" {
				img.AddedAt = ts
			}
			replaced[i] = img
		}
		t.Images = replaced
		t.UpdatedAt = ts
		saved = t.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save template images: %w", err)
	}

	s.afterMutation("set_images", EventTemplateImages, id, &saved)
	return &ImagesResult{
		TemplateID: id,
		ImageCount: len(saved.Images),
		UpdatedAt:  saved.UpdatedAt,
	}, nil
}

// IncrementUsage 使用次数加一,同步副本并写入操作日志
func (s *templateService) IncrementUsage(ctx context.Context, id string) (*UsageResult, error) {
	if err := utils.ValidateTemplateID(id); err != nil {
		return nil, err
	}

	var (
		saved model.Template
		at    time.Time
	)
	err := s.store.Update(ctx, func(doc *model.Document) error {
		t := doc.Find(id)
		if t == nil {
			return fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		at = s.now()
		ts := model.Timestamp(at)
		if t.UsageCount < 0 {
			t.UsageCount = 0
		}
		t.UsageCount++
		t.LastUsed = ts
		t.UpdatedAt = ts
		saved = t.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}

	log := s.logger.WithFields(logrus.Fields{"template_id": id, "usage_count": saved.UsageCount})
	if s.usage != nil {
		entry := store.UsageEntry{UsageCount: saved.UsageCount, LastUsed: saved.LastUsed, UpdatedAt: saved.UpdatedAt}
		if err := s.usage.Record(ctx, id, entry); err != nil {
			log.WithError(err).Warn("failed to mirror usage data")
		}
	}
	if s.audit != nil {
		if err := s.audit.Append(ctx, at, store.ActionTemplateUsed, id, saved.UsageCount); err != nil {
			log.WithError(err).Warn("failed to append usage audit log")
		}
	}
	metrics.RecordTemplateUsage()

	s.afterMutation("increment_usage", EventTemplateUsed, id, &saved)
	return &UsageResult{
		TemplateID: id,
		UsageCount: saved.UsageCount,
		LastUsed:   saved.LastUsed,
	}, nil
}

// afterMutation 记录指标、日志并推送变更事件
func (s *templateService) afterMutation(op, event, id string, tpl *model.Template) {
	metrics.RecordTemplateMutation(op)
	s.logger.WithFields(logrus.Fields{"operation": op, "template_id": id}).Info("template mutated")

	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(ChangeEvent{
		Type:       event,
		TemplateID: id,
		Template:   tpl,
		At:         model.Timestamp(s.now()),
	}); err != nil {
		s.logger.WithError(err).WithField("template_id", id).Warn("failed to publish change event")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
