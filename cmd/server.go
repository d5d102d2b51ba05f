/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/api"
	"github.com/HKCalvinYau/wati-automation/internal/config"
	"github.com/HKCalvinYau/wati-automation/internal/container"
	"github.com/HKCalvinYau/wati-automation/internal/logger"
	"github.com/HKCalvinYau/wati-automation/internal/metrics"
	"github.com/HKCalvinYau/wati-automation/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the WATI Automation API server.
The server will listen on the configured host and port, serve the REST API,
the legacy *.php endpoints, the change feed and the optional static front end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyServerFlags(cmd, cfg)

		// 2. 初始化日志
		log, err := logger.NewFromConfig(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.Set(log)
		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// 3. 配置热更新,只有日志级别即时生效
		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath, log)
			watcher.OnChange(func(change config.ConfigChange) {
				if change.LogLevelChanged() {
					level, err := logrus.ParseLevel(change.New.Log.Level)
					if err != nil {
						log.WithError(err).Warn("invalid log level in reloaded config")
					} else {
						log.SetLevel(level)
						log.WithField("level", level.String()).Info("log level reloaded")
					}
				}
				if sections := change.RestartRequired(); len(sections) > 0 {
					log.WithField("sections", sections).Warn("config changed, restart the server to apply")
				}
			})
			if err := watcher.Start(); err != nil {
				log.WithError(err).Warn("config watcher disabled")
			}
			defer watcher.Stop()
		}

		// 4. 链路追踪
		if cfg.Tracing.Enabled {
			if err := api.InitTracing(ctx, cfg.Tracing); err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = api.ShutdownTracing(shutdownCtx)
			}()
		}

		// 5. 初始化容器
		ctr, err := container.NewContainer(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		go ctr.Hub().Run(ctx)

		collector := metrics.NewCollector(ctr.DB(), ctr.StatisticsService(), 30*time.Second)
		collector.Start()
		defer collector.Stop()

		if cfg.Backup.Interval > 0 {
			scheduler := service.NewBackupScheduler(ctr.BackupService(), &service.BackupScheduleConfig{
				Interval:      cfg.Backup.Interval,
				RetentionDays: cfg.Backup.RetentionDays,
			}, log)
			scheduler.Start(ctx)
			defer scheduler.Stop()
		}

		// 6. 设置路由
		router := api.SetupRoutes(routerDeps(ctr))

		// 7. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.WithFields(logrus.Fields{
				"addr":  addr,
				"store": cfg.Store.Driver,
				"usage": cfg.Usage.Backend,
			}).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		// 等待中断信号
		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}
		}

		log.Info("shutting down server")

		// 优雅关闭
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info("server exited")
		return nil
	},
}

// routerDeps 由容器组装控制器
func routerDeps(ctr *container.Container) api.RouterDeps {
	// 未启用 Redis 时传入 nil 接口
	var rdb redis.UniversalClient
	if ctr.Redis() != nil {
		rdb = ctr.Redis()
	}

	return api.RouterDeps{
		Config:    ctr.Config(),
		Hub:       ctr.Hub(),
		Validator: ctr.EditorValidator(),
		Health:    api.NewHealthController(ctr.Store(), ctr.DB(), rdb),
		Templates: api.NewTemplateController(ctr.QueryService(), ctr.TemplateService()),
		Legacy:    api.NewLegacyController(ctr.QueryService(), ctr.TemplateService()),
		Catalog:   api.NewCatalogController(ctr.CategoryService(), ctr.StatisticsService()),
		Backups:   api.NewBackupController(ctr.BackupService()),
	}
}

// applyServerFlags 命令行参数覆盖配置
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("static-dir") {
		cfg.Server.StaticDir, _ = cmd.Flags().GetString("static-dir")
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
	serverCmd.Flags().String("static-dir", "", "Serve front-end files from this directory")
}
