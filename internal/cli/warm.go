package cli

import (
	"fanfrenzy/internal/app"
	"fanfrenzy/internal/config"
	"fanfrenzy/internal/logger"
	"github.com/samber/do"
	"github.com/spf13/cobra"
)

// NewWarmCmd preloads today's daily challenge into the cache.
func NewWarmCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Load today's daily challenge into the cache",
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

			injector := NewContainer(cfg, log)
			defer injector.Shutdown() //nolint:errcheck

			catalog, err := do.Invoke[*app.CatalogService](injector)
			if err != nil {
				return err
			}
			return catalog.Warm(cmd.Context())
		},
	}
}
