package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"fanfrenzy/internal/app"
	"fanfrenzy/internal/domain"
	"fanfrenzy/internal/infra/postgres"
	infraredis "fanfrenzy/internal/infra/redis"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const quizJSON = `{"moments":[
{"index":0,"type":"start","context":"Two minute drill"},
{"index":1,"type":"mc","context":"Third and long","question":"Who threw?","options":["Flacco","Brady","Manning","Rivers"],"answer":0,"importance":5},
{"index":2,"type":"mc","context":"Deep shot","question":"Who caught it?","options":["Smith","Boldin","Pitta","Rice"],"answer":1,"importance":7},
{"index":3,"type":"mc","context":"Goal line stand","question":"Who made the stop?","options":["Lewis","Reed","Suggs","Ngata"],"answer":0,"importance":9},
{"index":4,"type":"end","context":"Ravens win"}]}`

type slowGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *slowGenerator) Generate(_ context.Context, p app.Prompt) (string, error) {
	if !p.JSON {
		return "narrative", nil
	}
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	time.Sleep(200 * time.Millisecond)
	return quizJSON, nil
}

func (g *slowGenerator) Source() string { return "integration-model" }

func TestContentPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	if err := postgres.Migrate(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	gen := &slowGenerator{}
	durable := postgres.NewCacheStore(db)
	hot := infraredis.NewEntryCache(redisClient, durable, 5*time.Minute, nil)

	// two services share the stores but not the in-process singleflight,
	// so only the redis lease keeps them from generating twice
	newService := func() *app.ContentService {
		return app.NewContentService(hot, gen, nil,
			app.WithLease(infraredis.NewLease(redisClient, 10*time.Second, 0, nil)),
			app.WithLimiter(infraredis.NewLimiter(redisClient, 10)))
	}
	services := []*app.ContentService{newService(), newService()}

	req := app.ContentRequest{Team: "BAL", Year: "2012", GameID: "superbowl-47", Client: "127.0.0.1"}
	var wg sync.WaitGroup
	results := make([]domain.GameContent, len(services))
	errs := make([]error, len(services))
	for i, svc := range services {
		wg.Add(1)
		go func(i int, svc *app.ContentService) {
			defer wg.Done()
			results[i], errs[i] = svc.GetOrGenerate(ctx, req)
		}(i, svc)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("service %d: %v", i, err)
		}
	}
	if gen.calls != 1 {
		t.Fatalf("expected one generation across instances, got %d", gen.calls)
	}
	if len(results[0].Moments) != len(results[1].Moments) {
		t.Fatalf("instances returned different content")
	}

	entry, ok, err := durable.GetEntry(ctx, "superbowl-47")
	if err != nil || !ok {
		t.Fatalf("durable entry: ok=%v err=%v", ok, err)
	}
	if entry.Source != "integration-model" || !entry.NeedsReview {
		t.Fatalf("unexpected durable entry %+v", entry)
	}
}

func TestScoresEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	if err := postgres.Migrate(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	store := postgres.NewScoreStore(db)
	base := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	scores := app.NewScoreService(store, postgres.NewLeaderboardReader(pool), nil,
		app.WithScoreClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		}))

	who := &domain.Identity{UserID: "9f0b7c1e-5d2a-4b8e-a0c3-1234567890ab", Email: "superfan@example.com"}
	attempt := uuid.NewString()
	for i, score := range []int{50, 80, 80, 30} {
		sub := app.Submission{
			GameID:   "superbowl-47",
			Mode:     domain.ModeRewind,
			Score:    score,
			Metadata: map[string]any{"totalMoments": 10, "correct": score / 10, "skipped": 0},
		}
		if i == 0 {
			sub.AttemptID = attempt
		}
		if _, created, err := scores.Submit(ctx, who, sub); err != nil || !created {
			t.Fatalf("submit %d: created=%v err=%v", score, created, err)
		}
	}

	replay, created, err := scores.Submit(ctx, who, app.Submission{
		GameID:    "superbowl-47",
		Mode:      domain.ModeRewind,
		Score:     50,
		AttemptID: attempt,
		Metadata:  map[string]any{"totalMoments": 10, "correct": 5, "skipped": 0},
	})
	if err != nil || created {
		t.Fatalf("replay: created=%v err=%v", created, err)
	}
	if replay.AttemptID != attempt || replay.Score != 50 {
		t.Fatalf("replay returned %+v", replay)
	}

	lb, err := scores.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	rewind := lb[domain.ModeRewind]
	if len(rewind) != 4 {
		t.Fatalf("expected 4 rewind entries, got %d", len(rewind))
	}
	want := []int{80, 80, 50, 30}
	for i, e := range rewind {
		if e.Score != want[i] || e.Position != i+1 {
			t.Fatalf("entry %d: score %d position %d", i, e.Score, e.Position)
		}
		if e.DisplayName != "superfan..." {
			t.Fatalf("unexpected display name %q", e.DisplayName)
		}
	}

	challenges := app.NewChallengeService(postgres.NewChallengeStore(db), nil, nil)
	idx := 2
	if _, err := challenges.Submit(ctx, who, app.ChallengeRequest{
		GameID:      "superbowl-47",
		MomentIndex: &idx,
		Reason:      domain.ReasonIncorrectInfo,
	}); err != nil {
		t.Fatalf("challenge: %v", err)
	}
	var n int
	if err := db.NewSelect().Table("challenges").ColumnExpr("count(*)").Scan(ctx, &n); err != nil {
		t.Fatalf("count challenges: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one challenge row, got %d", n)
	}

	_, err = store.InsertScore(ctx, domain.ScoreRecord{
		ID:        uuid.NewString(),
		GameID:    "x",
		Mode:      domain.Mode("blitz"),
		Metadata:  map[string]any{},
		CreatedAt: time.Now(),
	})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected the mode check to reject the row, got %v", err)
	}
}

func TestMigrationsRollBack(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	log := zap.NewNop()
	if err := postgres.Migrate(ctx, db, log); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := postgres.Rollback(ctx, db, log); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('public.scores') IS NOT NULL`).Scan(&exists); err != nil {
		t.Fatalf("check table: %v", err)
	}
	if exists {
		t.Fatalf("scores table should be gone after rollback")
	}
	if err := postgres.Migrate(ctx, db, log); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "fanfrenzy", "POSTGRES_PASSWORD": "fanfrenzy", "POSTGRES_DB": "fanfrenzy"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://fanfrenzy:fanfrenzy@%s:%s/fanfrenzy?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
