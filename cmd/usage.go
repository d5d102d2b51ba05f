package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/config"
	"github.com/HKCalvinYau/wati-automation/internal/container"
	"github.com/HKCalvinYau/wati-automation/internal/logger"
	"github.com/HKCalvinYau/wati-automation/internal/model"
	"github.com/spf13/cobra"
)

// usageCmd 查看使用统计副本
var usageCmd = &cobra.Command{
	Use:   "usage [template-id]",
	Short: "Show template usage counters",
	Long: `Show the usage counters kept alongside the template store.
Without an argument every template that was used at least once is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctr, err := container.NewContainer(cfg, logger.Get())
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		mirror := ctr.UsageMirror()
		if len(args) == 1 {
			entry, ok, err := mirror.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no usage recorded for %q", args[0])
			}
			return printPretty(cmd.OutOrStdout(), entry)
		}

		entries, err := mirror.All(ctx)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(entries))
		for id := range entries {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			e := entries[id]
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %6d  %s\n", id, e.UsageCount, e.LastUsed)
		}
		if logPath := ctr.AuditLog().Path(); logPath != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "\naudit log: %s\n", logPath)
		}
		return nil
	},
}

func printPretty(w io.Writer, v interface{}) error {
	data, err := model.MarshalPretty(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func nowIn(loc *time.Location) func() time.Time {
	return func() time.Time { return time.Now().In(loc) }
}

func init() {
	rootCmd.AddCommand(usageCmd)
}
