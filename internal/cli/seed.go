package cli

import (
	"errors"

	"fanfrenzy/internal/config"
	"fanfrenzy/internal/infra/authored"
	"fanfrenzy/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewSeedCmd uploads the local authored content directory to the S3 bucket.
func NewSeedCmd(configPath *string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upload authored daily challenges and game lists to object storage",
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

			if cfg.Authored.S3.Bucket == "" {
				return errors.New("authored.s3.bucket not configured")
			}
			if dir == "" {
				dir = cfg.Authored.Dir
			}
			if dir == "" {
				dir = defaultAuthoredDir
			}

			bucket, err := newBucket(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := bucket.EnsureBucket(ctx); err != nil {
				return err
			}

			uploaded := 0
			err = authored.NewDir(dir).Walk(func(key, file string) error {
				if err := bucket.Upload(ctx, key, file); err != nil {
					return err
				}
				uploaded++
				log.Debug("uploaded", zap.String("key", key))
				return nil
			})
			if err != nil {
				return err
			}
			log.Info("authored content seeded", zap.String("dir", dir), zap.Int("documents", uploaded))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "content directory (defaults to authored.dir)")
	return cmd
}
