package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/HKCalvinYau/wati-automation/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.FixedZone("HKT", 8*3600))

func newJSONStore(t *testing.T) *store.JSONFileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates", "templates.json")
	return store.NewJSONFileStore(path, store.WithClock(func() time.Time { return fixedNow }))
}

func TestJSONFileStore_LoadMissingFile(t *testing.T) {
	s := newJSONStore(t)

	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc.Templates)
	assert.Equal(t, 0, doc.Metadata.TotalTemplates)
	assert.Equal(t, model.SchemaVersion, doc.Metadata.Version)

	_, err = os.Stat(s.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist), "load must not create the file")
}

func TestJSONFileStore_LoadCorruptFile(t *testing.T) {
	s := newJSONStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0755))

	cases := map[string]string{
		"not json":          "{not json",
		"missing templates": `{"metadata":{}}`,
		"templates object":  `{"templates":{}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0644))
			_, err := s.Load(context.Background())
			assert.ErrorIs(t, err, store.ErrCorruptData)
		})
	}
}

func TestJSONFileStore_LoadSaveIsStable(t *testing.T) {
	s := newJSONStore(t)
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0755))

	legacy := `{
    "metadata": {"version": "1.0", "lastUpdated": "2024-01-01 00:00:00", "totalTemplates": 9, "categories": []},
    "templates": [
        {
            "id": "IC_OLD",
            "code": "IC_OLD",
            "category": "ic",
            "title": {"zh": "舊模板", "en": "Old <b>one</b>"},
            "description": [],
            "content": [],
            "created_at": "2023-05-01",
            "wpPostId": 42,
            "tags": ["a", "b"]
        },
        {
            "id": "PS_NEW",
            "code": "PS_NEW",
            "category": "ps",
            "title": "純文字標題",
            "content": {"zh": "你好 {{name}}"},
            "usageCount": 3
        }
    ]
}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(legacy), 0644))

	roundTrip := func() []byte {
		doc, err := s.Load(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, doc))
		data, err := os.ReadFile(s.Path())
		require.NoError(t, err)
		return data
	}

	type fileShape struct {
		Metadata  model.Metadata  `json:"metadata"`
		Templates json.RawMessage `json:"templates"`
	}
	var first, second fileShape
	require.NoError(t, json.Unmarshal(roundTrip(), &first))
	require.NoError(t, json.Unmarshal(roundTrip(), &second))

	assert.Equal(t, string(first.Templates), string(second.Templates))
	assert.Equal(t, 2, second.Metadata.TotalTemplates)
	assert.Equal(t, first.Metadata.TotalTemplates, second.Metadata.TotalTemplates)
	assert.Equal(t, model.CategoryCounts{"ic": 1, "ps": 1}, second.Metadata.Categories)
	assert.Equal(t, first.Metadata.Categories, second.Metadata.Categories)

	// 未知字段与旧字段名原样保留
	var templates []map[string]interface{}
	require.NoError(t, json.Unmarshal(second.Templates, &templates))
	assert.Equal(t, "2023-05-01", templates[0]["created_at"])
	assert.Equal(t, float64(42), templates[0]["wpPostId"])
	assert.Equal(t, []interface{}{"a", "b"}, templates[0]["tags"])
	assert.Equal(t, "Old <b>one</b>", templates[0]["title"].(map[string]interface{})["en"])
}

func TestJSONFileStore_SaveRecomputesMetadata(t *testing.T) {
	s := newJSONStore(t)
	ctx := context.Background()

	doc := model.NewDocument("")
	doc.Templates = []model.Template{
		{ID: "IC_WELCOME", Code: "IC_WELCOME", Category: "ic", Title: model.LocalizedText{"zh": "歡迎"}},
		{ID: "PS_AFTER", Code: "PS_AFTER", Category: "ps"},
		{ID: "IC_FOLLOW", Code: "IC_FOLLOW", Category: "ic"},
	}
	doc.Metadata.TotalTemplates = 99
	require.NoError(t, s.Save(ctx, doc))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Metadata.TotalTemplates)
	assert.Equal(t, model.CategoryCounts{"ic": 2, "ps": 1}, loaded.Metadata.Categories)
	assert.Equal(t, model.Timestamp(fixedNow), loaded.Metadata.LastUpdated)
	assert.Equal(t, "IC_WELCOME", loaded.Templates[0].ID)
	assert.Equal(t, "IC_FOLLOW", loaded.Templates[2].ID)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "歡迎", "non-ASCII must be written unescaped")
	assert.Contains(t, string(raw), "\n    \"metadata\"", "4-space indentation")
}

func TestJSONFileStore_BackupBeforeOverwrite(t *testing.T) {
	s := newJSONStore(t)
	ctx := context.Background()

	first := model.NewDocument("")
	first.Templates = []model.Template{{ID: "A", Code: "A", Category: "ic"}}
	require.NoError(t, s.Save(ctx, first))

	_, err := os.Stat(s.BackupPath())
	assert.True(t, errors.Is(err, os.ErrNotExist), "no backup for the first write")

	second := model.NewDocument("")
	second.Templates = []model.Template{{ID: "B", Code: "B", Category: "ic"}}
	require.NoError(t, s.Save(ctx, second))

	backup, err := store.DecodeDocument(mustRead(t, s.BackupPath()))
	require.NoError(t, err)
	require.Len(t, backup.Templates, 1)
	assert.Equal(t, "A", backup.Templates[0].ID)
	assert.Equal(t, filepath.Join(filepath.Dir(s.Path()), "templates.backup.json"), s.BackupPath())
}

func TestJSONFileStore_SaveRejectsDuplicateIDs(t *testing.T) {
	s := newJSONStore(t)
	doc := model.NewDocument("")
	doc.Templates = []model.Template{{ID: "A"}, {ID: "A"}}

	err := s.Save(context.Background(), doc)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestJSONFileStore_LoadWarnsAboutDuplicateIDs(t *testing.T) {
	log, hook := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "templates.json")
	s := store.NewJSONFileStore(path, store.WithLogger(log), store.WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	require.NoError(t, os.WriteFile(path, []byte(`{"templates":[{"id":"a"},{"id":"a"},{"id":"b"}]}`), 0644))

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Templates, 3)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, []string{"a"}, entry.Data["duplicate_ids"])

	// 无关模板的写入同样被拒绝,删除一条重复后恢复
	err = s.Update(ctx, func(doc *model.Document) error {
		doc.Find("b").UsageCount++
		return nil
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	require.NoError(t, s.Update(ctx, func(doc *model.Document) error {
		doc.Remove("a")
		return nil
	}))
	hook.Reset()
	doc, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Templates, 2)
	assert.Empty(t, hook.AllEntries())
}

func TestJSONFileStore_UpdateAbortsOnError(t *testing.T) {
	s := newJSONStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Update(ctx, func(doc *model.Document) error {
		doc.Templates = append(doc.Templates, model.Template{ID: "A"})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, statErr := os.Stat(s.Path())
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestJSONFileStore_ConcurrentUpdates(t *testing.T) {
	s := newJSONStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &model.Document{Templates: []model.Template{{ID: "A", Code: "A", Category: "ic"}}}))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Update(ctx, func(doc *model.Document) error {
				doc.Find("A").UsageCount++
				doc.Templates = append(doc.Templates, model.Template{ID: fmt.Sprintf("T%d", i), Category: "ps"})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, workers, doc.Find("A").UsageCount)
	assert.Equal(t, workers+1, doc.Metadata.TotalTemplates)
}

func TestJSONFileStore_PreservesUnknownFields(t *testing.T) {
	s := newJSONStore(t)
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"metadata":{"categories":[]},"templates":[{"id":"A","code":"A","category":"ic","title":{"zh":"甲"},"content":{"zh":"內容"},"wpPostId":7}]}`), 0644))

	require.NoError(t, s.Update(ctx, func(doc *model.Document) error {
		doc.Find("A").UsageCount = 1
		return nil
	}))

	assert.Contains(t, string(mustRead(t, s.Path())), `"wpPostId": 7`)
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
