/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"context"
	"fmt"

	"github.com/HKCalvinYau/wati-automation/internal/config"
	"github.com/HKCalvinYau/wati-automation/internal/database"
	"github.com/HKCalvinYau/wati-automation/internal/logger"
	"github.com/HKCalvinYau/wati-automation/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the SQL template store.
This command will:
- Create the template and metadata tables if they don't exist
- Create indexes for ordering and filtering

With --import the JSON template file is copied into the SQL store afterwards,
replacing whatever the tables held before.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log := logger.Get()

		// 2. 连接数据库
		log.WithFields(logrus.Fields{
			"driver": cfg.Database.Driver,
			"host":   cfg.Database.Host,
			"dbname": cfg.Database.DBName,
		}).Info("connecting to database")
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer database.Close(db)

		// 3. 执行迁移
		log.Info("running database migrations")
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		// 4. 导入 JSON 数据
		importPath, _ := cmd.Flags().GetString("import")
		if importPath == "" {
			log.Info("database migrations completed")
			return nil
		}

		ctx := context.Background()
		doc, err := store.NewJSONFileStore(importPath).Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", importPath, err)
		}
		loc := cfg.Location()
		sqlStore := store.NewSQLStore(db, nowIn(loc))
		if err := sqlStore.Save(ctx, doc); err != nil {
			return fmt.Errorf("failed to import templates: %w", err)
		}

		log.WithFields(logrus.Fields{
			"source":    importPath,
			"templates": doc.Metadata.TotalTemplates,
		}).Info("templates imported")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().String("import", "", "Import templates from this JSON file after migrating")
}
