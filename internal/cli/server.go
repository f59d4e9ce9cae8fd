package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fanfrenzy/internal/app"
	"fanfrenzy/internal/config"
	"fanfrenzy/internal/logger"
	transport "fanfrenzy/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/samber/do"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	zap.ReplaceGlobals(log)
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log, false); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	injector := NewContainer(cfg, log)
	defer func() {
		if err := injector.Shutdown(); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	api, err := do.Invoke[*transport.Server](injector)
	if err != nil {
		return err
	}
	catalog := do.MustInvoke[*app.CatalogService](injector)

	scheduler, err := startWarmCron(ctx, cfg, catalog, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      api.Handler(),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 0),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting fanfrenzy", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		if scheduler != nil {
			<-scheduler.Stop().Done()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// startWarmCron warms today's daily challenge once, then on the configured schedule.
func startWarmCron(ctx context.Context, cfg config.Config, catalog *app.CatalogService, log *zap.Logger) (*cron.Cron, error) {
	warm := func() {
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := catalog.Warm(warmCtx); err != nil {
			log.Warn("daily warm-up failed", zap.Error(err))
		}
	}
	go warm()

	if cfg.Content.WarmCron == "" {
		return nil, nil
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(cfg.Content.WarmCron, warm); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
