package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fanfrenzy/internal/app"
	"fanfrenzy/internal/domain"
	"fanfrenzy/internal/infra/memory"
)

const validQuiz = `{"eventData":{"shortName":"BAL @ PIT"},"moments":[
{"index":0,"type":"start","context":"Kickoff"},
{"index":1,"type":"mc","context":"Opening drive","question":"Who threw?","options":["A","B","C","D"],"answer":0,"importance":3},
{"index":2,"type":"mc","context":"Red zone","question":"Who scored?","options":["A","B","C","D"],"answer":2,"importance":8},
{"index":3,"type":"mc","context":"Last play","question":"Who kicked?","options":["A","B","C","D"],"answer":3,"importance":10},
{"index":4,"type":"end","context":"Final"}]}`

type fakeGen struct {
	mu           sync.Mutex
	narrativeErr error
	quiz         string
	quizErr      error
	gate         chan struct{}
	quizCalls    int
	prompts      []app.Prompt
}

func (g *fakeGen) Generate(ctx context.Context, p app.Prompt) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	if !p.JSON {
		err := g.narrativeErr
		g.mu.Unlock()
		if err != nil {
			return "", err
		}
		return "The quarterback found the end zone.", nil
	}
	g.quizCalls++
	gate := g.gate
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if g.quizErr != nil {
		return "", g.quizErr
	}
	if g.quiz == "" {
		return validQuiz, nil
	}
	return g.quiz, nil
}

func (g *fakeGen) Source() string { return "fake" }

func (g *fakeGen) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.quizCalls
}

type failingUpsert struct{ *memory.CacheStore }

func (failingUpsert) UpsertEntry(context.Context, domain.CacheEntry) error {
	return errors.New("disk full")
}

type stubLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (l *stubLimiter) Allow(context.Context, string) (bool, error) {
	l.calls++
	return l.allowed, l.err
}

type stubLease struct {
	err      error
	onLock   func()
	released int
}

func (l *stubLease) Acquire(context.Context, string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.onLock != nil {
		l.onLock()
	}
	return func() { l.released++ }, nil
}

var sampleRequest = app.ContentRequest{Team: "bal", Year: "2024", GameID: "401671789", Client: "10.0.0.1"}

func TestGetOrGenerateRoundTrip(t *testing.T) {
	gen := &fakeGen{}
	store := memory.NewCacheStore()
	svc := app.NewContentService(store, gen, nil, app.WithContentClock(func() time.Time {
		return time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	}))

	first, err := svc.GetOrGenerate(context.Background(), sampleRequest)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.GetOrGenerate(context.Background(), sampleRequest)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if gen.calls() != 1 {
		t.Fatalf("expected one generation, got %d", gen.calls())
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("payloads differ:\n%s\n%s", a, b)
	}

	entry, ok, _ := store.GetEntry(context.Background(), "401671789")
	if !ok {
		t.Fatalf("expected cached entry")
	}
	if entry.Source != "fake" || !entry.NeedsReview || entry.FetchedAt.IsZero() {
		t.Fatalf("unexpected entry metadata %+v", entry)
	}
	if first.Title != "BAL 2024 - 401671789" {
		t.Fatalf("unexpected title %q", first.Title)
	}
}

func TestGetOrGenerateValidatesRequest(t *testing.T) {
	gen := &fakeGen{}
	svc := app.NewContentService(memory.NewCacheStore(), gen, nil)
	tests := []struct {
		req   app.ContentRequest
		field string
	}{
		{app.ContentRequest{Year: "2024", GameID: "1"}, "team"},
		{app.ContentRequest{Team: "BALTIMORE", Year: "2024", GameID: "1"}, "team"},
		{app.ContentRequest{Team: "BAL", GameID: "1"}, "year"},
		{app.ContentRequest{Team: "BAL", Year: "'24", GameID: "1"}, "year"},
		{app.ContentRequest{Team: "BAL", Year: "2024"}, "gameId"},
		{app.ContentRequest{Team: "BAL", Year: "2024", GameID: "../etc"}, "gameId"},
	}
	for _, tt := range tests {
		_, err := svc.GetOrGenerate(context.Background(), tt.req)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || verr.Field != tt.field {
			t.Fatalf("%+v: expected %s validation error, got %v", tt.req, tt.field, err)
		}
	}
	if gen.calls() != 0 {
		t.Fatalf("generator must not run for invalid requests")
	}
}

func TestGetOrGenerateCollapsesConcurrentMisses(t *testing.T) {
	gen := &fakeGen{gate: make(chan struct{})}
	svc := app.NewContentService(memory.NewCacheStore(), gen, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetOrGenerate(context.Background(), sampleRequest)
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gen.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if gen.calls() != 1 {
		t.Fatalf("expected concurrent misses to share one generation, got %d", gen.calls())
	}
}

func TestGetOrGenerateSurvivesCallerDisconnect(t *testing.T) {
	gen := &fakeGen{gate: make(chan struct{})}
	store := memory.NewCacheStore()
	svc := app.NewContentService(store, gen, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 2)
	go func() {
		_, err := svc.GetOrGenerate(ctx, sampleRequest)
		errs <- err
	}()
	for gen.calls() == 0 {
		time.Sleep(time.Millisecond)
	}
	go func() {
		_, err := svc.GetOrGenerate(context.Background(), sampleRequest)
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	close(gen.gate)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if store.Len() != 1 || gen.calls() != 1 {
		t.Fatalf("expected one stored generation, len=%d calls=%d", store.Len(), gen.calls())
	}
}

func TestGetOrGenerateTimeout(t *testing.T) {
	gen := &fakeGen{gate: make(chan struct{})}
	svc := app.NewContentService(memory.NewCacheStore(), gen, nil, app.WithGenerationTimeout(20*time.Millisecond))
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(gen.gate)
	}()
	_, err := svc.GetOrGenerate(context.Background(), sampleRequest)
	if !errors.Is(err, domain.ErrContentUnavailable) {
		t.Fatalf("expected the generation deadline to fail the request, got %v", err)
	}
}

func TestGetOrGenerateRateLimit(t *testing.T) {
	gen := &fakeGen{}
	store := memory.NewCacheStore()
	limiter := &stubLimiter{allowed: false}
	svc := app.NewContentService(store, gen, nil, app.WithLimiter(limiter))

	_, err := svc.GetOrGenerate(context.Background(), sampleRequest)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if gen.calls() != 0 {
		t.Fatalf("limited request must not generate")
	}

	// cache hits are never limited
	warm := app.NewContentService(store, gen, nil)
	if _, err := warm.GetOrGenerate(context.Background(), sampleRequest); err != nil {
		t.Fatalf("warm: %v", err)
	}
	limiter.calls = 0
	if _, err := svc.GetOrGenerate(context.Background(), sampleRequest); err != nil {
		t.Fatalf("hit: %v", err)
	}
	if limiter.calls != 0 {
		t.Fatalf("limiter consulted on a cache hit")
	}
}

func TestGetOrGenerateLimiterFailsOpen(t *testing.T) {
	gen := &fakeGen{}
	svc := app.NewContentService(memory.NewCacheStore(), gen, nil,
		app.WithLimiter(&stubLimiter{err: errors.New("redis down")}))
	if _, err := svc.GetOrGenerate(context.Background(), sampleRequest); err != nil {
		t.Fatalf("expected limiter outage to be ignored, got %v", err)
	}
	if gen.calls() != 1 {
		t.Fatalf("expected generation, got %d", gen.calls())
	}
}

func TestGetOrGenerateLeaseRechecksCache(t *testing.T) {
	gen := &fakeGen{}
	store := memory.NewCacheStore()
	other := app.NewContentService(store, &fakeGen{}, nil)
	lease := &stubLease{onLock: func() {
		// another instance finished generating while we waited
		if _, err := other.GetOrGenerate(context.Background(), sampleRequest); err != nil {
			t.Errorf("other instance: %v", err)
		}
	}}
	svc := app.NewContentService(store, gen, nil, app.WithLease(lease))

	if _, err := svc.GetOrGenerate(context.Background(), sampleRequest); err != nil {
		t.Fatalf("get: %v", err)
	}
	if gen.calls() != 0 {
		t.Fatalf("expected the lease holder to reuse the other instance's content")
	}
	if lease.released != 1 {
		t.Fatalf("expected lease release, got %d", lease.released)
	}
}

func TestGetOrGenerateLeaseFailureStillGenerates(t *testing.T) {
	gen := &fakeGen{}
	svc := app.NewContentService(memory.NewCacheStore(), gen, nil,
		app.WithLease(&stubLease{err: errors.New("lock taken")}))
	if _, err := svc.GetOrGenerate(context.Background(), sampleRequest); err != nil {
		t.Fatalf("get: %v", err)
	}
	if gen.calls() != 1 {
		t.Fatalf("expected generation without the lease, got %d", gen.calls())
	}
}

func TestGetOrGenerateReturnsContentWhenUpsertFails(t *testing.T) {
	gen := &fakeGen{}
	svc := app.NewContentService(failingUpsert{memory.NewCacheStore()}, gen, nil)
	content, err := svc.GetOrGenerate(context.Background(), sampleRequest)
	if err != nil {
		t.Fatalf("expected content despite upsert failure, got %v", err)
	}
	if len(content.Scorable()) != 3 {
		t.Fatalf("unexpected content %+v", content)
	}
}

func TestGetOrGenerateRegeneratesStaleSchema(t *testing.T) {
	gen := &fakeGen{}
	store := memory.NewCacheStore()
	stale := `{"gameId":"401671789","moments":[{"index":0,"type":"fill-in","prompt":"Who?","answer":"Rice","importance":5}]}`
	_ = store.UpsertEntry(context.Background(), domain.CacheEntry{SourceID: "401671789", Payload: json.RawMessage(stale)})

	svc := app.NewContentService(store, gen, nil)
	content, err := svc.GetOrGenerate(context.Background(), sampleRequest)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gen.calls() != 1 || !app.CurrentSchema(content) {
		t.Fatalf("expected regeneration, calls=%d", gen.calls())
	}
}

func TestGetOrGenerateRejectsInvalidQuiz(t *testing.T) {
	tests := map[string]string{
		"not json":      `here is your quiz`,
		"no moments":    `{"eventData":{}}`,
		"three options": `{"moments":[{"index":0,"type":"mc","question":"Q","options":["a","b","c"],"answer":0},{"index":1,"type":"mc","question":"Q","options":["a","b","c","d"],"answer":0},{"index":2,"type":"mc","question":"Q","options":["a","b","c","d"],"answer":0}]}`,
		"answer range":  `{"moments":[{"index":0,"type":"mc","question":"Q","options":["a","b","c","d"],"answer":4},{"index":1,"type":"mc","question":"Q","options":["a","b","c","d"],"answer":0},{"index":2,"type":"mc","question":"Q","options":["a","b","c","d"],"answer":0}]}`,
		"too few":       `{"moments":[{"index":0,"type":"mc","question":"Q","options":["a","b","c","d"],"answer":1}]}`,
		"duplicate idx": `{"moments":[{"index":0,"type":"mc","question":"Q","options":["a","b","c","d"],"answer":0},{"index":0,"type":"mc","question":"Q","options":["a","b","c","d"],"answer":0},{"index":2,"type":"mc","question":"Q","options":["a","b","c","d"],"answer":0}]}`,
		"importance":    `{"moments":[{"index":0,"type":"mc","question":"Q","options":["a","b","c","d"],"answer":0,"importance":11},{"index":1,"type":"mc","question":"Q","options":["a","b","c","d"],"answer":0},{"index":2,"type":"mc","question":"Q","options":["a","b","c","d"],"answer":0}]}`,
	}
	for name, quiz := range tests {
		store := memory.NewCacheStore()
		svc := app.NewContentService(store, &fakeGen{quiz: quiz}, nil)
		_, err := svc.GetOrGenerate(context.Background(), sampleRequest)
		if !errors.Is(err, domain.ErrInvalidGeneratedContent) || !app.IsContentError(err) {
			t.Fatalf("%s: expected invalid generated content, got %v", name, err)
		}
		if store.Len() != 0 {
			t.Fatalf("%s: invalid content must not be cached", name)
		}
	}
}

func TestGetOrGenerateNarrativeFallback(t *testing.T) {
	gen := &fakeGen{narrativeErr: errors.New("timeout")}
	svc := app.NewContentService(memory.NewCacheStore(), gen, nil)
	if _, err := svc.GetOrGenerate(context.Background(), sampleRequest); err != nil {
		t.Fatalf("get: %v", err)
	}
	last := gen.prompts[len(gen.prompts)-1]
	if !last.JSON || !strings.Contains(last.User, app.NarrativeFallback) {
		t.Fatalf("expected quiz prompt to carry the fallback narrative, got %q", last.User)
	}
}

func TestGetOrGenerateQuizFailure(t *testing.T) {
	svc := app.NewContentService(memory.NewCacheStore(), &fakeGen{quizErr: errors.New("502")}, nil)
	_, err := svc.GetOrGenerate(context.Background(), sampleRequest)
	if !errors.Is(err, domain.ErrContentUnavailable) {
		t.Fatalf("expected content unavailable, got %v", err)
	}
}
