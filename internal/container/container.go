package container

import (
	"context"
	"fmt"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/auth"
	"github.com/HKCalvinYau/wati-automation/internal/config"
	"github.com/HKCalvinYau/wati-automation/internal/database"
	"github.com/HKCalvinYau/wati-automation/internal/service"
	"github.com/HKCalvinYau/wati-automation/internal/store"
	"github.com/HKCalvinYau/wati-automation/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括存储、服务、推送等
type Container struct {
	cfg    *config.Config
	logger logrus.FieldLogger
	now    func() time.Time

	db    *gorm.DB
	redis *redis.Client

	store    store.TemplateStore
	usage    store.UsageMirror
	auditLog *store.AuditLog
	hub      *websocket.Hub

	validator *auth.EditorTokenValidator

	templateService   service.TemplateService
	queryService      service.QueryService
	categoryService   service.CategoryService
	statisticsService service.StatisticsService
	backupService     *service.BackupService
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger logrus.FieldLogger) (*Container, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// 时间戳统一使用配置的时区
	loc := cfg.Location()
	c := &Container{
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().In(loc) },
	}

	// 1. 模板存储
	if err := c.initStore(); err != nil {
		c.Close()
		return nil, err
	}

	// 2. 使用统计副本与操作日志
	if err := c.initUsage(); err != nil {
		c.Close()
		return nil, err
	}
	c.auditLog = store.NewAuditLog(cfg.Usage.LogPath)

	// 3. 变更推送
	c.hub = websocket.NewHub()

	// 4. 编辑权限
	if cfg.Auth.JWTSecret != "" {
		c.validator = auth.NewEditorTokenValidator(cfg.Auth.JWTSecret)
	}

	// 5. 服务
	catalog, err := service.LoadCatalog(cfg.Store.CatalogPath)
	if err != nil {
		c.Close()
		return nil, err
	}

	opts := []service.TemplateServiceOption{
		service.WithAuditLog(c.auditLog),
		service.WithEventPublisher(c.hub),
		service.WithLogger(logger),
		service.WithClock(c.now),
	}
	if c.usage != nil {
		opts = append(opts, service.WithUsageMirror(c.usage))
	}
	c.templateService = service.NewTemplateService(c.store, opts...)
	c.queryService = service.NewQueryService(c.store)
	c.categoryService = service.NewCategoryService(c.store, catalog)
	c.statisticsService = service.NewStatisticsService(c.store)
	c.backupService = service.NewBackupService(c.store, cfg.Backup.Dir)

	return c, nil
}

func (c *Container) initStore() error {
	switch c.cfg.Store.Driver {
	case "sql":
		// 默认重试 3 次，初始间隔 1 秒，指数退避
		db, err := database.ConnectWithRetry(c.cfg.Database, 3, time.Second)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		c.db = db
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		c.store = store.NewSQLStore(db, c.now)
	default:
		c.store = store.NewJSONFileStore(c.cfg.Store.Path,
			store.WithBackup(c.cfg.Store.BackupOnWrite),
			store.WithClock(c.now),
			store.WithLogger(c.logger),
		)
	}
	return nil
}

func (c *Container) initUsage() error {
	switch c.cfg.Usage.Backend {
	case "redis":
		c.redis = redis.NewClient(&redis.Options{
			Addr:     c.cfg.Redis.Addr,
			Password: c.cfg.Redis.Password,
			DB:       c.cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.redis.Ping(ctx).Err(); err != nil {
			// 副本不影响主流程,只记录
			c.logger.WithError(err).Warn("redis is not reachable, usage mirror writes will fail until it recovers")
		}
		c.usage = store.NewRedisUsageStore(c.redis)
	default:
		c.usage = store.NewJSONUsageStore(c.cfg.Usage.Path)
	}
	return nil
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// DB 获取数据库连接,JSON 存储时为空
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Redis 获取 Redis 客户端,未启用时为空
func (c *Container) Redis() *redis.Client {
	return c.redis
}

// Store 获取模板存储
func (c *Container) Store() store.TemplateStore {
	return c.store
}

// UsageMirror 获取使用统计副本
func (c *Container) UsageMirror() store.UsageMirror {
	return c.usage
}

// AuditLog 获取操作日志
func (c *Container) AuditLog() *store.AuditLog {
	return c.auditLog
}

// Hub 获取变更推送 Hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// EditorValidator 获取编辑权限校验器,未配置密钥时为空
func (c *Container) EditorValidator() *auth.EditorTokenValidator {
	return c.validator
}

// TemplateService 获取模板服务
func (c *Container) TemplateService() service.TemplateService {
	return c.templateService
}

// QueryService 获取查询服务
func (c *Container) QueryService() service.QueryService {
	return c.queryService
}

// CategoryService 获取分类服务
func (c *Container) CategoryService() service.CategoryService {
	return c.categoryService
}

// StatisticsService 获取统计服务
func (c *Container) StatisticsService() service.StatisticsService {
	return c.statisticsService
}

// BackupService 获取备份服务
func (c *Container) BackupService() *service.BackupService {
	return c.backupService
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	var firstErr error
	if c.db != nil {
		if err := database.Close(c.db); err != nil {
			firstErr = err
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
