package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ActionTemplateUsed 使用次数增加时写入日志的动作名
const ActionTemplateUsed = "模板使用"

// AuditLog 只追加的纯文本操作日志
type AuditLog struct {
	path string
}

// NewAuditLog 创建操作日志
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// Path 日志文件路径
func (l *AuditLog) Path() string {
	return l.path
}

// FormatAuditLine 格式: YYYY-MM-DD HH:MM:SS - <action>: <id> (次數: <count>)
func FormatAuditLine(at time.Time, action, id string, count int) string {
	return fmt.Sprintf("%s - %s: %s (次數: %d)\n", at.Format("2006-01-02 15:04:05"), action, id, count)
}

// Append 在排他锁内追加一行
func (l *AuditLog) Append(ctx context.Context, at time.Time, action, id string, count int) error {
	if err := os.MkdirAll(filepath.Dir(l.path), dirPerm); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	mu := pathLock(l.path)
	mu.Lock()
	defer mu.Unlock()

	unlock, err := lockFile(ctx, l.path)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatAuditLine(at, action, id, count)); err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}
