package service

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/HKCalvinYau/wati-automation/internal/store"
	"github.com/HKCalvinYau/wati-automation/internal/utils"
)

const (
	backupPrefix    = "backup_"
	backupExt       = ".tar.gz"
	backupEntryName = "templates.json"
	// 单个快照条目上限
	maxBackupEntrySize = 64 << 20
)

// ErrBackupNotFound 备份文件不存在
var ErrBackupNotFound = errors.New("backup not found")

// BackupService 备份服务,把模板集合快照为 tar.gz
type BackupService struct {
	store     store.TemplateStore
	backupDir string
	now       func() time.Time
}

// BackupInfo 备份信息
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBackupService 创建备份服务
func NewBackupService(s store.TemplateStore, backupDir string) *BackupService {
	// 确保备份目录存在
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		// 如果创建失败，使用临时目录
		backupDir = os.TempDir()
	}

	return &BackupService{
		store:     s,
		backupDir: backupDir,
		now:       time.Now,
	}
}

// CreateBackup 创建备份,返回备份文件路径
func (s *BackupService) CreateBackup(ctx context.Context) (string, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load templates: %w", err)
	}
	data, err := store.EncodeDocument(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode templates: %w", err)
	}

	filename := fmt.Sprintf("%s%s%s", backupPrefix, s.now().Format("20060102_150405.000000000"), backupExt)
	backupPath := filepath.Join(s.backupDir, filename)

	if err := writeSnapshot(backupPath, data, s.now()); err != nil {
		_ = os.Remove(backupPath)
		return "", err
	}
	return backupPath, nil
}

// writeSnapshot 写入单条目的 tar.gz
func writeSnapshot(path string, data []byte, modTime time.Time) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzWriter)

	header := &tar.Header{
		Name:    backupEntryName,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}
	if _, err := tarWriter.Write(data); err != nil {
		return fmt.Errorf("failed to write backup data: %w", err)
	}
	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return file.Sync()
}

// ReadBackup 读取备份中的模板文档
func (s *BackupService) ReadBackup(filename string) (*model.Document, error) {
	backupPath, err := s.resolve(filename)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(backupPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCorruptData, err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrCorruptData, err)
		}
		if header.Name != backupEntryName {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(tarReader, maxBackupEntrySize))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrCorruptData, err)
		}
		return store.DecodeDocument(data)
	}
	return nil, fmt.Errorf("%w: %s has no %s", store.ErrCorruptData, filename, backupEntryName)
}

// RestoreBackup 用备份内容整体替换当前模板集合
func (s *BackupService) RestoreBackup(ctx context.Context, filename string) (*model.Document, error) {
	doc, err := s.ReadBackup(filename)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to restore backup: %w", err)
	}
	return doc, nil
}

// ListBackups 列出所有备份,新的在前
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	backups := []BackupInfo{}

	// 读取备份目录
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isBackupFile(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, BackupInfo{
			Filename:  entry.Name(),
			Path:      filepath.Join(s.backupDir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Filename > backups[j].Filename
	})
	return backups, nil
}

// BackupDir 获取备份目录
func (s *BackupService) BackupDir() string {
	return s.backupDir
}

// DeleteBackup 删除备份
func (s *BackupService) DeleteBackup(ctx context.Context, filename string) error {
	backupPath, err := s.resolve(filename)
	if err != nil {
		return err
	}

	if err := os.Remove(backupPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrBackupNotFound, filename)
		}
		return fmt.Errorf("failed to delete backup: %w", err)
	}

	return nil
}

// resolve 校验文件名并确保其位于备份目录内
func (s *BackupService) resolve(filename string) (string, error) {
	if filename != filepath.Base(filename) || !isBackupFile(filename) {
		return "", utils.NewValidationError("INVALID_BACKUP", "filename", "invalid backup filename")
	}

	absBackupDir, err := filepath.Abs(s.backupDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute backup directory: %w", err)
	}
	absBackupPath, err := filepath.Abs(filepath.Join(s.backupDir, filename))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute backup path: %w", err)
	}
	if !strings.HasPrefix(absBackupPath, absBackupDir+string(filepath.Separator)) {
		return "", utils.NewValidationError("INVALID_BACKUP", "filename", "invalid backup filename")
	}
	return absBackupPath, nil
}

// isBackupFile 检查是否是备份文件
func isBackupFile(filename string) bool {
	return strings.HasPrefix(filename, backupPrefix) && strings.HasSuffix(filename, backupExt)
}
