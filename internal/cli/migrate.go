package cli

import (
	"context"
	"errors"

	"fanfrenzy/internal/config"
	"fanfrenzy/internal/infra/postgres"
	"fanfrenzy/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var rollback bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Env, cfg.Log.Level)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			return runMigrations(cmd.Context(), cfg, log, rollback)
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the last migration group")
	return cmd
}

func runMigrations(ctx context.Context, cfg config.Config, log *zap.Logger, rollback bool) error {
	if cfg.Postgres.URL == "" {
		return errors.New("postgres url not configured")
	}
	db := postgres.Open(cfg.Postgres.URL)
	defer db.Close()

	if rollback {
		return postgres.Rollback(ctx, db, log)
	}
	return postgres.Migrate(ctx, db, log)
}
