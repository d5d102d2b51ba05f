package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// BackupScheduler 备份调度器
type BackupScheduler struct {
	backupService *BackupService
	config        *BackupScheduleConfig
	logger        logrus.FieldLogger
	stopChan      chan struct{}
}

// BackupScheduleConfig 备份计划配置
type BackupScheduleConfig struct {
	Interval      time.Duration // 快照间隔
	RetentionDays int           // 保留天数,0 表示不清理
}

// NewBackupScheduler 创建备份调度器
func NewBackupScheduler(backupService *BackupService, config *BackupScheduleConfig, logger logrus.FieldLogger) *BackupScheduler {
	if config == nil {
		config = &BackupScheduleConfig{
			Interval:      24 * time.Hour,
			RetentionDays: 30,
		}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &BackupScheduler{
		backupService: backupService,
		config:        config,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start 启动备份调度器
func (s *BackupScheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop 停止备份调度器
func (s *BackupScheduler) Stop() {
	close(s.stopChan)
}

// Config 获取备份配置
func (s *BackupScheduler) Config() *BackupScheduleConfig {
	return s.config
}

func (s *BackupScheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performBackup(ctx)
			s.CleanupOldBackups(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// performBackup 执行一次快照
func (s *BackupScheduler) performBackup(ctx context.Context) {
	backupPath, err := s.backupService.CreateBackup(ctx)
	if err != nil {
		s.logger.WithError(err).Error("failed to create scheduled backup")
		return
	}
	s.logger.WithField("path", backupPath).Info("scheduled backup created")
}

// CleanupOldBackups 删除超过保留期的备份
func (s *BackupScheduler) CleanupOldBackups(ctx context.Context) {
	if s.config.RetentionDays <= 0 {
		return
	}

	backups, err := s.backupService.ListBackups(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to list backups")
		return
	}

	retention := time.Duration(s.config.RetentionDays) * 24 * time.Hour
	now := s.backupService.now()
	for _, backup := range backups {
		if now.Sub(backup.CreatedAt) <= retention {
			continue
		}
		if err := s.backupService.DeleteBackup(ctx, backup.Filename); err != nil {
			s.logger.WithError(err).WithField("filename", backup.Filename).Warn("failed to delete old backup")
			continue
		}
		s.logger.WithField("filename", backup.Filename).Info("deleted old backup")
	}
}
