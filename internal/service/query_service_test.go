package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/HKCalvinYau/wati-automation/internal/service"
	"github.com/HKCalvinYau/wati-automation/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.FixedZone("HKT", 8*3600))

func clock() time.Time { return fixedNow }

func newTestStore(t *testing.T, templates ...model.Template) *store.JSONFileStore {
	t.Helper()
	s := store.NewJSONFileStore(filepath.Join(t.TempDir(), "templates.json"), store.WithClock(clock))
	if len(templates) > 0 {
		require.NoError(t, s.Save(context.Background(), &model.Document{Templates: templates}))
	}
	return s
}

func sampleTemplates() []model.Template {
	return []model.Template{
		{ID: "IC_WELCOME", Code: "IC_WELCOME", Category: "ic", Status: model.StatusActive,
			Title: model.LocalizedText{"zh": "歡迎訊息", "en": "Welcome Message"}, Content: model.LocalizedText{"zh": "你好"}},
		{ID: "IC_FOLLOW", Code: "IC_FOLLOW", Category: "ic", Status: model.StatusDraft,
			Title: model.LocalizedText{"zh": "跟進", "en": "Follow up"}, Content: model.LocalizedText{"zh": "請問"}},
		{ID: "PS_THANKS", Code: "PS_THANKS", Category: "ps", Status: model.StatusActive,
			Title: model.LocalizedText{"zh": "感謝", "en": "Thanks"}, Content: model.LocalizedText{"en": "welcome back any time"}},
		{ID: "PI_REMIND", Code: "PI_REMIND", Category: "pi",
			Title: model.LocalizedText{"zh": "付款提醒"}, Content: model.LocalizedText{"zh": "請付款"}},
	}
}

func ids(templates []model.Template) []string {
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		out = append(out, t.ID)
	}
	return out
}

func TestFilterTemplates(t *testing.T) {
	all := sampleTemplates()

	tests := []struct {
		name    string
		filter  service.TemplateFilter
		want    []string
		matched int
	}{
		{"no filter", service.TemplateFilter{}, []string{"IC_WELCOME", "IC_FOLLOW", "PS_THANKS", "PI_REMIND"}, 4},
		{"category all", service.TemplateFilter{Category: "all"}, []string{"IC_WELCOME", "IC_FOLLOW", "PS_THANKS", "PI_REMIND"}, 4},
		{"category", service.TemplateFilter{Category: "ic"}, []string{"IC_WELCOME", "IC_FOLLOW"}, 2},
		{"category and status", service.TemplateFilter{Category: "ic", Status: "draft"}, []string{"IC_FOLLOW"}, 1},
		{"search is case-insensitive across languages", service.TemplateFilter{Search: "WELCOME"}, []string{"IC_WELCOME", "PS_THANKS"}, 2},
		{"search chinese", service.TemplateFilter{Search: "歡迎"}, []string{"IC_WELCOME"}, 1},
		{"search code", service.TemplateFilter{Search: "pi_rem"}, []string{"PI_REMIND"}, 1},
		{"limit", service.TemplateFilter{Limit: 2}, []string{"IC_WELCOME", "IC_FOLLOW"}, 4},
		{"limit and offset", service.TemplateFilter{Limit: 2, Offset: 3}, []string{"PI_REMIND"}, 4},
		{"offset past end", service.TemplateFilter{Limit: 2, Offset: 10}, []string{}, 4},
		{"unknown category", service.TemplateFilter{Category: "zz"}, []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := service.FilterTemplates(all, tt.filter)
			assert.Equal(t, tt.want, ids(result.Templates))
			assert.Equal(t, tt.matched, result.Matched)
		})
	}

	// 过滤不修改输入
	assert.Len(t, all, 4)
	assert.Equal(t, "IC_WELCOME", all[0].ID)
}

func TestQueryService_List(t *testing.T) {
	svc := service.NewQueryService(newTestStore(t, sampleTemplates()...))

	resp, err := svc.List(context.Background(), service.TemplateFilter{Category: "ic", Limit: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"IC_WELCOME"}, ids(resp.Templates))
	assert.Equal(t, 2, resp.Metadata.TotalTemplates)
	require.NotNil(t, resp.Metadata.FilteredCount)
	assert.Equal(t, 2, *resp.Metadata.FilteredCount)
	assert.Equal(t, 1, *resp.Metadata.Limit)
	assert.Equal(t, 0, *resp.Metadata.Offset)
	assert.Equal(t, model.CategoryCounts{"ic": 2, "ps": 1, "pi": 1}, resp.Metadata.Categories)
}

func TestQueryService_List_FilteredCountIgnoresPaging(t *testing.T) {
	var templates []model.Template
	for _, id := range []string{"IC_A", "IC_B", "IC_C", "IC_D", "IC_E"} {
		tpl := sampleTemplates()[0]
		tpl.ID = id
		tpl.Code = id
		templates = append(templates, tpl)
	}
	svc := service.NewQueryService(newTestStore(t, templates...))

	resp, err := svc.List(context.Background(), service.TemplateFilter{Category: "ic", Limit: 2, Offset: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"IC_C", "IC_D"}, ids(resp.Templates))
	require.NotNil(t, resp.Metadata.FilteredCount)
	assert.Equal(t, 5, *resp.Metadata.FilteredCount)
	assert.Equal(t, 5, resp.Metadata.TotalTemplates)
	assert.Equal(t, 2, *resp.Metadata.Offset)
}

func TestQueryService_Get(t *testing.T) {
	svc := service.NewQueryService(newTestStore(t, sampleTemplates()...))

	tpl, err := svc.Get(context.Background(), "PS_THANKS")
	require.NoError(t, err)
	assert.Equal(t, "感謝", tpl.Title["zh"])

	_, err = svc.Get(context.Background(), "MISSING")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueryService_EmptyStore(t *testing.T) {
	svc := service.NewQueryService(newTestStore(t))

	resp, err := svc.List(context.Background(), service.TemplateFilter{})
	require.NoError(t, err)
	assert.NotNil(t, resp.Templates)
	assert.Empty(t, resp.Templates)
	assert.Equal(t, 0, resp.Metadata.TotalTemplates)
}
