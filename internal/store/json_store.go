package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/google/renameio/v2"
	"github.com/sirupsen/logrus"
)

// TemplateStore 模板集合的持久化能力
type TemplateStore interface {
	// Load 读取完整文档,文件不存在时返回空文档
	Load(ctx context.Context) (*model.Document, error)
	// Save 重新计算元数据后整体写回
	Save(ctx context.Context, doc *model.Document) error
	// Update 在排他锁内完成 读取 → 修改 → 写回; fn 返回错误时不写入
	Update(ctx context.Context, fn func(doc *model.Document) error) error
}

const (
	dirPerm  fs.FileMode = 0755
	filePerm fs.FileMode = 0644
)

// Option JSON 存储选项
type Option func(*JSONFileStore)

// WithBackup 覆盖前是否复制一份 *.backup.json
func WithBackup(enabled bool) Option {
	return func(s *JSONFileStore) { s.backup = enabled }
}

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(s *JSONFileStore) { s.now = now }
}

// WithLogger 注入日志记录器
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *JSONFileStore) { s.logger = l }
}

// JSONFileStore 以单个 JSON 文件保存全部模板
type JSONFileStore struct {
	path   string
	backup bool
	now    func() time.Time
	logger logrus.FieldLogger
}

// NewJSONFileStore 创建 JSON 文件存储
func NewJSONFileStore(path string, opts ...Option) *JSONFileStore {
	s := &JSONFileStore{
		path:   path,
		backup: true,
		now:    time.Now,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path 数据文件路径
func (s *JSONFileStore) Path() string {
	return s.path
}

// BackupPath 覆盖前备份的路径: <name>.backup.json
func (s *JSONFileStore) BackupPath() string {
	return BackupPathFor(s.path)
}

// BackupPathFor 计算同目录下的备份文件路径
func BackupPathFor(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".backup" + ext
}

// Load 读取存储文档
func (s *JSONFileStore) Load(ctx context.Context) (*model.Document, error) {
	mu := pathLock(s.path)
	mu.RLock()
	defer mu.RUnlock()
	return s.load(ctx)
}

// Save 写回存储文档
func (s *JSONFileStore) Save(ctx context.Context, doc *model.Document) error {
	mu := pathLock(s.path)
	mu.Lock()
	defer mu.Unlock()

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return s.save(ctx, doc)
}

// Update 串行化同一文件上的读改写
func (s *JSONFileStore) Update(ctx context.Context, fn func(doc *model.Document) error) error {
	mu := pathLock(s.path)
	mu.Lock()
	defer mu.Unlock()

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(ctx, doc)
}

func (s *JSONFileStore) lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return nil, fmt.Errorf("%w: create directory: %v", ErrWrite, err)
	}
	return lockFile(ctx, s.path)
}

func (s *JSONFileStore) load(ctx context.Context) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewDocument(model.Timestamp(s.now())), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	// 存在重复 ID 时之后的写入都会被拒绝,删除其中一条即可恢复
	if dups := doc.DuplicateIDs(); len(dups) > 0 {
		s.logger.WithFields(logrus.Fields{
			"path":          s.path,
			"duplicate_ids": dups,
		}).Warn("template data contains duplicate ids, writes are refused until they are removed")
	}
	return doc, nil
}

func (s *JSONFileStore) save(ctx context.Context, doc *model.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dups := doc.DuplicateIDs(); len(dups) > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, strings.Join(dups, ", "))
	}

	doc.Recompute(model.Timestamp(s.now()))
	data, err := EncodeDocument(doc)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrWrite, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return fmt.Errorf("%w: create directory: %v", ErrWrite, err)
	}
	if s.backup {
		s.copyBackup()
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"path":           s.path,
		"totalTemplates": doc.Metadata.TotalTemplates,
	}).Debug("template data saved")
	return nil
}

// copyBackup 尽力而为,失败只记录日志
func (s *JSONFileStore) copyBackup() {
	current, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WithError(err).Warn("failed to read template data for backup")
		}
		return
	}
	if err := renameio.WriteFile(s.BackupPath(), current, filePerm); err != nil {
		s.logger.WithError(err).WithField("path", s.BackupPath()).Warn("failed to write template data backup")
	}
}

// writeFileAtomic 写临时文件后重命名,失败时原文件保持不变
func writeFileAtomic(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}
