package cli

import (
	"context"
	"time"

	"fanfrenzy/internal/app"
	"fanfrenzy/internal/config"
	"fanfrenzy/internal/engine"
	amqppub "fanfrenzy/internal/infra/amqp"
	"fanfrenzy/internal/infra/authored"
	"fanfrenzy/internal/infra/llm"
	"fanfrenzy/internal/infra/memory"
	"fanfrenzy/internal/infra/postgres"
	redisstore "fanfrenzy/internal/infra/redis"
	"fanfrenzy/internal/pkg/caching"
	transport "fanfrenzy/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const defaultAuthoredDir = "content"

// The wrappers let the injector close connections on Shutdown and report
// them in HealthCheck.

type database struct{ *bun.DB }

func (d database) Shutdown() error    { return d.DB.Close() }
func (d database) HealthCheck() error { return d.DB.Ping() }

type readonlyPool struct{ *pgxpool.Pool }

func (p readonlyPool) Shutdown() error {
	p.Pool.Close()
	return nil
}

type redisClient struct{ *redis.Client }

func (c redisClient) Shutdown() error { return c.Client.Close() }
func (c redisClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Client.Ping(ctx).Err()
}

type publisher struct{ *amqppub.Publisher }

func (p publisher) Shutdown() error { return p.Publisher.Close() }

// NewContainer registers every dependency lazily. Postgres, redis, the
// read-only pool and AMQP are only opened when configured; otherwise the
// in-memory stores stand in.
func NewContainer(cfg config.Config, log *zap.Logger) *do.Injector {
	injector := do.New()
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, log)

	do.Provide(injector, func(i *do.Injector) (database, error) {
		return database{postgres.Open(cfg.Postgres.URL)}, nil
	})

	do.Provide(injector, func(i *do.Injector) (readonlyPool, error) {
		pool, err := pgxpool.Connect(context.Background(), cfg.Postgres.ReadonlyURL)
		if err != nil {
			return readonlyPool{}, err
		}
		return readonlyPool{pool}, nil
	})

	do.Provide(injector, func(i *do.Injector) (redisClient, error) {
		return redisClient{redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})}, nil
	})

	do.Provide(injector, func(i *do.Injector) (publisher, error) {
		queue := cfg.AMQP.Queue
		if queue == "" {
			queue = amqppub.DefaultQueue
		}
		p, err := amqppub.NewPublisher(cfg.AMQP.URL, queue)
		if err != nil {
			return publisher{}, err
		}
		return publisher{p}, nil
	})

	do.Provide(injector, func(i *do.Injector) (app.TextGenerator, error) {
		if cfg.LLM.APIKey == "" {
			log.Warn("llm api key not configured, game generation disabled")
			return llm.Disabled{}, nil
		}
		return llm.NewClient(llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     config.TTLDuration(cfg.LLM.Timeout, 60*time.Second),
			Retries:     cfg.LLM.Retries,
		})
	})

	do.Provide(injector, func(i *do.Injector) (app.AuthoredSource, error) {
		if cfg.Authored.S3.Bucket != "" {
			return newBucket(cfg)
		}
		dir := cfg.Authored.Dir
		if dir == "" {
			dir = defaultAuthoredDir
		}
		return authored.NewDir(dir), nil
	})

	do.Provide(injector, func(i *do.Injector) (caching.Cache, error) {
		if cfg.Redis.Addr != "" {
			client := do.MustInvoke[redisClient](i)
			return caching.NewCacheRedis(client.Client, true), nil
		}
		return memory.NewCache(), nil
	})

	do.Provide(injector, func(i *do.Injector) (app.CacheStore, error) {
		ttl := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
		var durable memory.EntryStore = memory.NewCacheStore()
		if cfg.Postgres.URL != "" {
			durable = postgres.NewCacheStore(do.MustInvoke[database](i).DB)
		}
		if cfg.Redis.Addr != "" {
			return redisstore.NewEntryCache(do.MustInvoke[redisClient](i).Client, durable, ttl, log), nil
		}
		return memory.NewEntryCache(durable, ttl), nil
	})

	do.Provide(injector, func(i *do.Injector) (*app.ContentService, error) {
		gen, err := do.Invoke[app.TextGenerator](i)
		if err != nil {
			return nil, err
		}
		opts := []app.ContentOption{}
		if cfg.Redis.Addr != "" {
			client := do.MustInvoke[redisClient](i).Client
			leaseTTL := config.TTLDuration(cfg.Content.LeaseTTL, 90*time.Second)
			opts = append(opts,
				app.WithLease(redisstore.NewLease(client, leaseTTL, 0, log)),
				app.WithLimiter(redisstore.NewLimiter(client, cfg.LLM.GenerationsPerMinute)))
		}
		return app.NewContentService(do.MustInvoke[app.CacheStore](i), gen, log, opts...), nil
	})

	do.Provide(injector, func(i *do.Injector) (*app.CatalogService, error) {
		src, err := do.Invoke[app.AuthoredSource](i)
		if err != nil {
			return nil, err
		}
		loc, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		return app.NewCatalogService(src, do.MustInvoke[caching.Cache](i), app.CatalogConfig{
			CacheTTL:          config.TTLDuration(cfg.Content.CacheTTL, time.Hour),
			AllowDateOverride: cfg.Content.AllowDateOverride,
			Location:          loc,
		}, log), nil
	})

	do.Provide(injector, func(i *do.Injector) (*app.ScoreService, error) {
		var (
			writer app.ScoreWriter
			reader app.ScoreReader
		)
		if cfg.Postgres.URL != "" {
			store := postgres.NewScoreStore(do.MustInvoke[database](i).DB)
			writer, reader = store, store
		} else {
			store := memory.NewScoreStore()
			writer, reader = store, store
		}
		if cfg.Postgres.ReadonlyURL != "" {
			pool, err := do.Invoke[readonlyPool](i)
			if err != nil {
				return nil, err
			}
			reader = postgres.NewLeaderboardReader(pool.Pool)
		}
		ttl := config.TTLDuration(cfg.Content.LeaderboardTTL, 30*time.Second)
		return app.NewScoreService(writer, reader, log,
			app.WithLeaderboardCache(do.MustInvoke[caching.Cache](i), ttl)), nil
	})

	do.Provide(injector, func(i *do.Injector) (*app.ChallengeService, error) {
		var store app.ChallengeStore = memory.NewChallengeStore()
		if cfg.Postgres.URL != "" {
			store = postgres.NewChallengeStore(do.MustInvoke[database](i).DB)
		}
		var pub app.ChallengePublisher
		if cfg.AMQP.URL != "" {
			p, err := do.Invoke[publisher](i)
			if err != nil {
				return nil, err
			}
			pub = p.Publisher
		}
		return app.NewChallengeService(store, pub, log), nil
	})

	do.Provide(injector, func(i *do.Injector) (*app.PlayService, error) {
		content, err := do.Invoke[*app.ContentService](i)
		if err != nil {
			return nil, err
		}
		catalog, err := do.Invoke[*app.CatalogService](i)
		if err != nil {
			return nil, err
		}
		scores, err := do.Invoke[*app.ScoreService](i)
		if err != nil {
			return nil, err
		}

		var presence app.PlayPresence = memory.NewPresence()
		if cfg.Redis.Addr != "" {
			presence = redisstore.NewPresence(do.MustInvoke[redisClient](i).Client, time.Hour)
		}
		variants := engine.DefaultVariants().Merge(cfg.Game.AnswerVariants)
		debounce := config.TTLDuration(cfg.Game.HintDebounce, engine.DefaultHintDebounce)
		return app.NewPlayService(content, catalog, scores, variants, log,
			app.WithPresence(presence),
			app.WithAttemptOptions(engine.WithDebounce(debounce))), nil
	})

	do.Provide(injector, func(i *do.Injector) (*transport.Server, error) {
		svc := transport.Services{}
		var err error
		if svc.Content, err = do.Invoke[*app.ContentService](i); err != nil {
			return nil, err
		}
		if svc.Catalog, err = do.Invoke[*app.CatalogService](i); err != nil {
			return nil, err
		}
		if svc.Scores, err = do.Invoke[*app.ScoreService](i); err != nil {
			return nil, err
		}
		if svc.Challenges, err = do.Invoke[*app.ChallengeService](i); err != nil {
			return nil, err
		}
		if svc.Play, err = do.Invoke[*app.PlayService](i); err != nil {
			return nil, err
		}

		var verifier *transport.TokenVerifier
		if cfg.Auth.JWTSecret != "" {
			verifier = transport.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		} else {
			log.Warn("auth secret not configured, every request is anonymous")
		}
		return transport.NewServer(svc, transport.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Verifier:       verifier,
			Ready:          readiness(i),
		}, log), nil
	})

	return injector
}

// readiness reports the first failing connection known to the injector.
func readiness(i *do.Injector) func() error {
	return func() error {
		for name, err := range i.HealthCheck() {
			if err != nil {
				return &dependencyError{name: name, err: err}
			}
		}
		return nil
	}
}

type dependencyError struct {
	name string
	err  error
}

func (e *dependencyError) Error() string { return e.name + ": " + e.err.Error() }
func (e *dependencyError) Unwrap() error { return e.err }

func newBucket(cfg config.Config) (*authored.Bucket, error) {
	s3 := cfg.Authored.S3
	return authored.NewBucket(authored.S3Config{
		Endpoint:  s3.Endpoint,
		AccessKey: s3.AccessKey,
		SecretKey: s3.SecretKey,
		Bucket:    s3.Bucket,
		Prefix:    s3.Prefix,
		UseSSL:    s3.UseSSL,
	})
}
