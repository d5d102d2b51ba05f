package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/HKCalvinYau/wati-automation/internal/service"
	"github.com/HKCalvinYau/wati-automation/internal/store"
	"github.com/HKCalvinYau/wati-automation/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher 记录推送的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []service.ChangeEvent
}

func (p *recordingPublisher) PublishJSON(v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, v.(service.ChangeEvent))
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// failingMirror 副本写入总是失败
type failingMirror struct{}

func (failingMirror) Record(context.Context, string, store.UsageEntry) error {
	return errors.New("mirror down")
}
func (failingMirror) Get(context.Context, string) (store.UsageEntry, bool, error) {
	return store.UsageEntry{}, false, nil
}
func (failingMirror) All(context.Context) (map[string]store.UsageEntry, error) {
	return nil, nil
}

func newService(t *testing.T, s store.TemplateStore, opts ...service.TemplateServiceOption) service.TemplateService {
	t.Helper()
	log, _ := test.NewNullLogger()
	base := []service.TemplateServiceOption{service.WithClock(clock), service.WithLogger(log)}
	return service.NewTemplateService(s, append(base, opts...)...)
}

func newPayload(code string) *model.Template {
	return &model.Template{
		Code:     code,
		Category: "ic",
		Title:    model.LocalizedText{"zh": "歡迎", "en": "Welcome"},
		Content:  model.LocalizedText{"zh": "你好 {{name}}, 預約 {{date}}", "en": "Hi {{name}}"},
	}
}

func TestTemplateService_CreateWithUniqueID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	pub := &recordingPublisher{}
	svc := newService(t, s, service.WithEventPublisher(pub))

	first, err := svc.CreateWithUniqueID(ctx, newPayload("T1"))
	require.NoError(t, err)
	assert.Equal(t, "T1", first.ID)
	assert.Equal(t, model.StatusActive, first.Status)
	assert.Equal(t, model.Timestamp(fixedNow), first.CreatedAt)
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)
	assert.Equal(t, []model.Variable{{Name: "name"}, {Name: "date"}}, first.Variables)

	second, err := svc.CreateWithUniqueID(ctx, newPayload("T1"))
	require.NoError(t, err)
	third, err := svc.CreateWithUniqueID(ctx, newPayload("T1"))
	require.NoError(t, err)
	assert.Equal(t, "T1_1", second.ID)
	assert.Equal(t, "T1_2", third.ID)

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T1_1", "T1_2"}, ids(doc.Templates))
	assert.Equal(t, 3, doc.Metadata.Categories["ic"])
	assert.Equal(t, []string{service.EventTemplateCreated, service.EventTemplateCreated, service.EventTemplateCreated}, pub.types())
}

func TestTemplateService_CreateIgnoresClientCounters(t *testing.T) {
	svc := newService(t, newTestStore(t))
	payload := newPayload("T1")
	payload.UsageCount = 50
	payload.LastUsed = "2020-01-01T00:00:00Z"

	created, err := svc.CreateWithUniqueID(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 0, created.UsageCount)
	assert.Empty(t, created.LastUsed)
}

func TestTemplateService_CreateValidation(t *testing.T) {
	s := newTestStore(t)
	svc := newService(t, s)

	cases := map[string]func(p *model.Template){
		"missing code":       func(p *model.Template) { p.Code = "" },
		"invalid code":       func(p *model.Template) { p.Code = "bad code!" },
		"missing category":   func(p *model.Template) { p.Category = " " },
		"missing title zh":   func(p *model.Template) { p.Title = model.LocalizedText{"en": "only en"} },
		"missing content zh": func(p *model.Template) { p.Content = nil },
		"invalid status":     func(p *model.Template) { p.Status = "archived" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := newPayload("T1")
			mutate(p)
			_, err := svc.CreateWithUniqueID(context.Background(), p)
			var verr *utils.ValidationError
			assert.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
		})
	}

	_, err := os.Stat(s.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist), "rejected input must not touch the store")
}

func TestTemplateService_UpsertFullPreservesHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, model.Template{
		ID: "T1", Code: "T1", Category: "ic", UsageCount: 7, LastUsed: "2025-01-01T10:00:00+08:00",
		CreatedAt: "2024-12-01T10:00:00+08:00",
		Title:     model.LocalizedText{"zh": "舊"}, Content: model.LocalizedText{"zh": "舊內容"},
	})
	svc := newService(t, s)

	replacement := newPayload("T1")
	replacement.ID = "T1"
	replacement.Category = "ps"
	replacement.UsageCount = 0

	saved, created, err := svc.UpsertFull(ctx, replacement)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "ps", saved.Category)
	assert.Equal(t, 7, saved.UsageCount)
	assert.Equal(t, "2025-01-01T10:00:00+08:00", saved.LastUsed)
	assert.Equal(t, "2024-12-01T10:00:00+08:00", saved.CreatedAt)
	assert.Equal(t, model.Timestamp(fixedNow), saved.UpdatedAt)

	fresh := newPayload("T2")
	fresh.ID = "T2"
	_, created, err = svc.UpsertFull(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, created)

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2"}, ids(doc.Templates))
}

func TestTemplateService_SaveSimple(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newService(t, s)

	result, err := svc.SaveSimple(ctx, &service.SimpleSaveRequest{
		ID:    "QUICK",
		Title: model.LocalizedText{"zh": "快速模板"},
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, "QUICK", result.TemplateID)
	assert.Equal(t, 1, result.TotalTemplates)
	assert.Equal(t, model.Timestamp(fixedNow), result.LastUpdated)

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	tpl := doc.Find("QUICK")
	require.NotNil(t, tpl)
	assert.Equal(t, "QUICK", tpl.Code)
	assert.Equal(t, service.DefaultCategory, tpl.Category)
	assert.Equal(t, model.StatusActive, tpl.Status)
	assert.Equal(t, "快速模板", tpl.Content["zh"])
	assert.Equal(t, "快速模板", tpl.Description["zh"])

	// 替换时保留使用统计与图片
	require.NoError(t, s.Update(ctx, func(doc *model.Document) error {
		t := doc.Find("QUICK")
		t.UsageCount = 3
		t.Images = []model.Image{{Title: "圖", URL: "https://example.com/a.png"}}
		return nil
	}))
	result, err = svc.SaveSimple(ctx, &service.SimpleSaveRequest{
		ID:       "QUICK",
		Category: "pp",
		Title:    model.LocalizedText{"zh": "新標題"},
	})
	require.NoError(t, err)
	assert.False(t, result.Created)

	doc, err = s.Load(ctx)
	require.NoError(t, err)
	tpl = doc.Find("QUICK")
	assert.Equal(t, "pp", tpl.Category)
	assert.Equal(t, 3, tpl.UsageCount)
	assert.Len(t, tpl.Images, 1)
}

func TestTemplateService_SaveSimpleRequiresTitle(t *testing.T) {
	svc := newService(t, newTestStore(t))
	_, err := svc.SaveSimple(context.Background(), &service.SimpleSaveRequest{ID: "A"})
	var verr *utils.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = svc.SaveSimple(context.Background(), &service.SimpleSaveRequest{Title: model.LocalizedText{"zh": "x"}})
	assert.ErrorIs(t, err, utils.ErrEmptyID)
}

func TestTemplateService_SaveSimpleChecksFieldLengths(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newService(t, s)
	title := model.LocalizedText{"zh": "標題"}

	_, err := svc.SaveSimple(ctx, &service.SimpleSaveRequest{ID: "A", Title: title, Category: strings.Repeat("類", 33)})
	assert.ErrorIs(t, err, utils.ErrCategoryTooLong)

	_, err = svc.SaveSimple(ctx, &service.SimpleSaveRequest{ID: "A", Title: title, Code: strings.Repeat("c", 65)})
	assert.ErrorIs(t, err, utils.ErrCodeTooLong)

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Templates)

	// 空白视为未提供
	_, err = svc.SaveSimple(ctx, &service.SimpleSaveRequest{ID: "A", Title: title, Code: "  ", Category: " ic "})
	require.NoError(t, err)
	doc, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", doc.Templates[0].Code)
	assert.Equal(t, "ic", doc.Templates[0].Category)
}

func TestTemplateService_MergeFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, model.Template{
		ID: "T1", Code: "T1", Category: "ic", Status: model.StatusActive, UsageCount: 2,
		Title:   model.LocalizedText{"zh": "標題", "en": "Title"},
		Content: model.LocalizedText{"zh": "內容"},
	})
	svc := newService(t, s)

	newTitle := model.LocalizedText{"zh": "新標題"}
	draft := model.StatusDraft
	merged, err := svc.MergeFields(ctx, "T1", &service.TemplatePatch{Title: &newTitle, Status: &draft}, service.MergeOptions{})
	require.NoError(t, err)

	assert.Equal(t, "新標題", merged.Title["zh"])
	assert.Empty(t, merged.Title["en"], "title is replaced as a whole")
	assert.Equal(t, model.StatusDraft, merged.Status)
	assert.Equal(t, "內容", merged.Content["zh"], "absent fields are untouched")
	assert.Equal(t, 2, merged.UsageCount)
	assert.Equal(t, model.Timestamp(fixedNow), merged.UpdatedAt)
}

func TestTemplateService_MergeFieldsMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newService(t, s)

	title := model.LocalizedText{"zh": "新"}
	_, err := svc.MergeFields(ctx, "NEW", &service.TemplatePatch{Title: &title}, service.MergeOptions{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	created, err := svc.MergeFields(ctx, "NEW", &service.TemplatePatch{Title: &title}, service.MergeOptions{CreateIfMissing: true})
	require.NoError(t, err)
	assert.Equal(t, "NEW", created.Code)
	assert.Equal(t, service.DefaultCategory, created.Category)
	assert.Equal(t, model.Timestamp(fixedNow), created.CreatedAt)
}

func TestTemplateService_MergeFieldsRejectsEmptyStatus(t *testing.T) {
	s := newTestStore(t, sampleTemplates()...)
	svc := newService(t, s)

	empty := model.Status("")
	_, err := svc.MergeFields(context.Background(), "IC_WELCOME", &service.TemplatePatch{Status: &empty}, service.MergeOptions{})
	assert.ErrorIs(t, err, utils.ErrInvalidStatus)
}

func TestTemplateService_DeleteKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, sampleTemplates()...)
	pub := &recordingPublisher{}
	svc := newService(t, s, service.WithEventPublisher(pub))

	require.NoError(t, svc.Delete(ctx, "IC_FOLLOW"))
	assert.ErrorIs(t, svc.Delete(ctx, "IC_FOLLOW"), store.ErrNotFound)

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"IC_WELCOME", "PS_THANKS", "PI_REMIND"}, ids(doc.Templates))
	assert.Equal(t, 1, doc.Metadata.Categories["ic"])
	assert.Equal(t, []string{service.EventTemplateDeleted}, pub.types())
}

func TestTemplateService_SetImages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, sampleTemplates()...)
	svc := newService(t, s)

	result, err := svc.SetImages(ctx, "IC_WELCOME", []model.Image{
		{Title: "門店", URL: "https://example.com/shop.jpg"},
		{Title: "舊圖", URL: "https://example.com/old.jpg", AddedAt: "2024-01-01T00:00:00+08:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ImageCount)

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	images := doc.Find("IC_WELCOME").Images
	assert.Equal(t, model.Timestamp(fixedNow), images[0].AddedAt)
	assert.Equal(t, "2024-01-01T00:00:00+08:00", images[1].AddedAt)

	_, err = svc.SetImages(ctx, "IC_WELCOME", []model.Image{{Title: "no url"}})
	var verr *utils.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = svc.SetImages(ctx, "MISSING", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// 空列表清空图片
	result, err = svc.SetImages(ctx, "IC_WELCOME", []model.Image{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ImageCount)
}

func TestTemplateService_IncrementUsage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestStore(t, sampleTemplates()...)
	mirror := store.NewJSONUsageStore(filepath.Join(dir, "usage-data.json"))
	audit := store.NewAuditLog(filepath.Join(dir, "logs", "usage-updates.log"))
	svc := newService(t, s, service.WithUsageMirror(mirror), service.WithAuditLog(audit))

	for i := 1; i <= 3; i++ {
		result, err := svc.IncrementUsage(ctx, "PS_THANKS")
		require.NoError(t, err)
		assert.Equal(t, i, result.UsageCount)
		assert.Equal(t, model.Timestamp(fixedNow), result.LastUsed)
	}

	entry, ok, err := mirror.Get(ctx, "PS_THANKS")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, entry.UsageCount)

	raw, err := os.ReadFile(audit.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2025-03-01 09:30:00 - 模板使用: PS_THANKS (次數: 3)", lines[2])

	_, err = svc.IncrementUsage(ctx, "MISSING")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTemplateService_IncrementUsageSurvivesMirrorFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, sampleTemplates()...)
	log, hook := test.NewNullLogger()
	svc := service.NewTemplateService(s,
		service.WithClock(clock),
		service.WithLogger(log),
		service.WithUsageMirror(failingMirror{}),
	)

	result, err := svc.IncrementUsage(ctx, "IC_WELCOME")
	require.NoError(t, err)
	assert.Equal(t, 1, result.UsageCount)

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "failed to mirror usage data" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestTemplateService_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, sampleTemplates()...)
	svc := newService(t, s)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IncrementUsage(ctx, "IC_WELCOME")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, doc.Find("IC_WELCOME").UsageCount)
}
