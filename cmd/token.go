package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/auth"
	"github.com/HKCalvinYau/wati-automation/internal/config"
	"github.com/spf13/cobra"
)

// tokenCmd 签发编辑令牌
var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue an editor token",
	Long: `Issue a signed bearer token for the template editing endpoints.
The secret is read from auth.jwt_secret (APP_AUTH_JWT_SECRET).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not configured")
		}

		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := auth.NewEditorTokenValidator(cfg.Auth.JWTSecret).IssueToken(args[0], role, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("role", auth.RoleEditor, "Token role (editor or admin)")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}
