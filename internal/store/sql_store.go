package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/HKCalvinYau/wati-automation/internal/repository"
	"gorm.io/gorm"
)

const (
	metaKeyLastUpdated = "last_updated"
	metaKeyVersion     = "version"
)

// SQLStore 以数据库表保存模板集合
// 与 JSON 文件存储相互独立,不做同步
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
	mu  sync.Mutex
}

// NewSQLStore 创建 SQL 存储
func NewSQLStore(db *gorm.DB, now func() time.Time) *SQLStore {
	if now == nil {
		now = time.Now
	}
	return &SQLStore{db: db, now: now}
}

// Load 读取全部模板
func (s *SQLStore) Load(ctx context.Context) (*model.Document, error) {
	return s.load(repository.NewTemplateRepository(s.db.WithContext(ctx)))
}

// Save 整体写回
func (s *SQLStore) Save(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.save(repository.NewTemplateRepository(tx), doc)
	})
}

// Update 在单个事务中完成读改写
func (s *SQLStore) Update(ctx context.Context, fn func(doc *model.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := repository.NewTemplateRepository(tx)
		doc, err := s.load(repo)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return s.save(repo, doc)
	})
}

func (s *SQLStore) load(repo repository.TemplateRepository) (*model.Document, error) {
	records, err := repo.FindAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	meta, err := repo.GetMeta()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}

	lastUpdated := meta[metaKeyLastUpdated]
	if lastUpdated == "" {
		lastUpdated = model.Timestamp(s.now())
	}
	doc := model.NewDocument(lastUpdated)
	if v := meta[metaKeyVersion]; v != "" {
		doc.Metadata.Version = v
	}

	for _, r := range records {
		t, err := r.Template()
		if err != nil {
			return nil, fmt.Errorf("%w: template %s: %v", ErrCorruptData, r.ID, err)
		}
		doc.Templates = append(doc.Templates, t)
	}
	doc.Metadata.TotalTemplates = len(doc.Templates)
	doc.Metadata.Categories = model.CountCategories(doc.Templates)
	return doc, nil
}

func (s *SQLStore) save(repo repository.TemplateRepository, doc *model.Document) error {
	if dups := doc.DuplicateIDs(); len(dups) > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, strings.Join(dups, ", "))
	}

	now := s.now()
	doc.Recompute(model.Timestamp(now))

	records := make([]*model.TemplateRecord, 0, len(doc.Templates))
	for i, t := range doc.Templates {
		r, err := model.NewTemplateRecord(t, i, now)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %v", ErrWrite, t.ID, err)
		}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
		records = append(records, r)
	}

	if err := repo.ReplaceAll(records); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := repo.SaveMeta(map[string]string{
		metaKeyLastUpdated: doc.Metadata.LastUpdated,
		metaKeyVersion:     doc.Metadata.Version,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}
