package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"fanfrenzy/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// NarrativeFallback stands in for the play-by-play when narrative generation fails.
const NarrativeFallback = "Play-by-play narrative unavailable. Build the quiz from widely reported facts about this game."

// minGeneratedQuestions is the smallest quiz the rewind game accepts.
const minGeneratedQuestions = 3

// DefaultGenerationTimeout bounds one cold generation: two model calls plus the lease.
const DefaultGenerationTimeout = 3 * time.Minute

var (
	teamPattern   = regexp.MustCompile(`^[A-Z]{2,4}$`)
	yearPattern   = regexp.MustCompile(`^[0-9]{4}$`)
	gameIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,80}$`)
)

// ContentRequest identifies one real-world game.
type ContentRequest struct {
	Team   string
	Year   string
	GameID string
	// Client keys the generation rate limit, usually the remote IP.
	Client string
}

// Normalize upper-cases the team and validates every field.
func (r ContentRequest) Normalize() (ContentRequest, error) {
	r.Team = strings.ToUpper(strings.TrimSpace(r.Team))
	r.Year = strings.TrimSpace(r.Year)
	r.GameID = strings.TrimSpace(r.GameID)
	switch {
	case r.Team == "":
		return r, domain.Invalid("team", "is required")
	case !teamPattern.MatchString(r.Team):
		return r, domain.Invalid("team", "must be 2-4 letters")
	case r.Year == "":
		return r, domain.Invalid("year", "is required")
	case !yearPattern.MatchString(r.Year):
		return r, domain.Invalid("year", "must be four digits")
	case r.GameID == "":
		return r, domain.Invalid("gameId", "is required")
	case !gameIDPattern.MatchString(r.GameID):
		return r, domain.Invalid("gameId", "has unsupported characters")
	}
	return r, nil
}

// ContentService returns cached quiz content or generates it on a miss.
// Concurrent misses for one key share a single generation in-process; when
// a lease is configured they are also serialized across processes.
type ContentService struct {
	cache   CacheStore
	gen     TextGenerator
	lease   GenerationLease
	limiter GenerationLimiter
	log     *zap.Logger
	clock   func() time.Time
	timeout time.Duration
	sf      singleflight.Group
}

type ContentOption func(*ContentService)

func WithLease(l GenerationLease) ContentOption {
	return func(s *ContentService) { s.lease = l }
}

func WithLimiter(l GenerationLimiter) ContentOption {
	return func(s *ContentService) { s.limiter = l }
}

func WithGenerationTimeout(d time.Duration) ContentOption {
	return func(s *ContentService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithContentClock(now func() time.Time) ContentOption {
	return func(s *ContentService) { s.clock = now }
}

func NewContentService(cache CacheStore, gen TextGenerator, log *zap.Logger, opts ...ContentOption) *ContentService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &ContentService{cache: cache, gen: gen, log: log, clock: time.Now, timeout: DefaultGenerationTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrGenerate returns content for the game, generating and caching it on a miss.
func (s *ContentService) GetOrGenerate(ctx context.Context, req ContentRequest) (domain.GameContent, error) {
	req, err := req.Normalize()
	if err != nil {
		return domain.GameContent{}, err
	}
	key := req.GameID

	if content, ok := s.lookup(ctx, key); ok {
		return content, nil
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, req.Client)
		if err != nil {
			s.log.Warn("generation limiter unavailable", zap.String("client", req.Client), zap.Error(err))
		} else if !allowed {
			return domain.GameContent{}, domain.ErrRateLimited
		}
	}

	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		// other callers share this result, so one disconnect must not abort it
		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		if s.lease != nil {
			release, err := s.lease.Acquire(genCtx, key)
			if err != nil {
				s.log.Warn("generation lease not acquired, generating anyway", zap.String("key", key), zap.Error(err))
			} else {
				defer release()
				if content, ok := s.lookup(genCtx, key); ok {
					return content, nil
				}
			}
		}
		return s.generate(genCtx, req)
	})
	if err != nil {
		return domain.GameContent{}, err
	}
	return result.(domain.GameContent), nil
}

// lookup returns cached content only when it matches the current schema.
// Store errors are logged and treated as a miss.
func (s *ContentService) lookup(ctx context.Context, key string) (domain.GameContent, bool) {
	entry, ok, err := s.cache.GetEntry(ctx, key)
	if err != nil {
		s.log.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		return domain.GameContent{}, false
	}
	if !ok {
		return domain.GameContent{}, false
	}
	var content domain.GameContent
	if err := json.Unmarshal(entry.Payload, &content); err != nil {
		s.log.Info("cached payload unreadable, regenerating", zap.String("key", key), zap.Error(err))
		return domain.GameContent{}, false
	}
	if !CurrentSchema(content) {
		s.log.Info("cached payload has stale schema, regenerating", zap.String("key", key))
		return domain.GameContent{}, false
	}
	return content, true
}

// CurrentSchema checks the shape of the first quiz item: it must be a
// multiple-choice moment with four options.
func CurrentSchema(content domain.GameContent) bool {
	scorable := content.Scorable()
	if len(scorable) == 0 {
		return false
	}
	mc, ok := scorable[0].(domain.MultipleChoiceMoment)
	return ok && len(mc.Options) == 4
}

func (s *ContentService) generate(ctx context.Context, req ContentRequest) (domain.GameContent, error) {
	title := fmt.Sprintf("%s %s - %s", req.Team, req.Year, req.GameID)

	narrative, err := s.gen.Generate(ctx, narrativePrompt(title))
	if err != nil || strings.TrimSpace(narrative) == "" {
		s.log.Warn("narrative generation failed, using fallback", zap.String("key", req.GameID), zap.Error(err))
		narrative = NarrativeFallback
	}

	raw, err := s.gen.Generate(ctx, quizPrompt(title, narrative))
	if err != nil {
		return domain.GameContent{}, fmt.Errorf("%w: quiz generation: %v", domain.ErrContentUnavailable, err)
	}

	content, err := ParseGenerated([]byte(raw))
	if err != nil {
		return domain.GameContent{}, err
	}
	content.GameID = req.GameID
	if content.Title == "" {
		content.Title = title
	}

	payload, err := json.Marshal(content)
	if err != nil {
		return domain.GameContent{}, fmt.Errorf("%w: encode: %v", domain.ErrContentUnavailable, err)
	}
	entry := domain.CacheEntry{
		SourceID:    req.GameID,
		Payload:     payload,
		Source:      s.gen.Source(),
		FetchedAt:   s.clock().UTC(),
		NeedsReview: true,
	}
	if err := s.cache.UpsertEntry(ctx, entry); err != nil {
		s.log.Warn("cache upsert failed, returning generated content", zap.String("key", req.GameID), zap.Error(err))
	}
	return content, nil
}

// ParseGenerated decodes and validates a generator response.
func ParseGenerated(raw []byte) (domain.GameContent, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return domain.GameContent{}, fmt.Errorf("%w: not a JSON object: %v", domain.ErrInvalidGeneratedContent, err)
	}
	if _, ok := probe["moments"]; !ok {
		if _, ok := probe["key_moments"]; !ok {
			return domain.GameContent{}, fmt.Errorf("%w: moments array missing", domain.ErrInvalidGeneratedContent)
		}
	}

	var content domain.GameContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return domain.GameContent{}, fmt.Errorf("%w: %v", domain.ErrInvalidGeneratedContent, err)
	}
	if len(content.EventData) == 0 {
		content.EventData = json.RawMessage(`{"summary":"AI processed"}`)
	}
	if err := ValidateQuiz(content); err != nil {
		return domain.GameContent{}, err
	}
	return content, nil
}

// ValidateQuiz enforces the multiple-choice quiz contract.
func ValidateQuiz(content domain.GameContent) error {
	seen := make(map[int]bool, len(content.Moments))
	v := &quizValidator{}
	for _, m := range content.Moments {
		idx := m.MomentIndex()
		if seen[idx] {
			return invalidQuiz("duplicate moment index %d", idx)
		}
		seen[idx] = true

		m.Accept(v)
		if v.err != nil {
			return v.err
		}
		if imp := domain.Importance(m); imp < 0 || imp > 10 {
			return invalidQuiz("moment %d importance %v outside [0,10]", idx, imp)
		}
	}
	if v.starts > 1 || v.ends > 1 {
		return invalidQuiz("expected at most one start and one end moment")
	}
	if v.questions < minGeneratedQuestions {
		return invalidQuiz("expected at least %d multiple-choice moments, got %d", minGeneratedQuestions, v.questions)
	}
	return nil
}

func invalidQuiz(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidGeneratedContent, fmt.Sprintf(format, args...))
}

type quizValidator struct {
	starts, ends, questions int
	err                     error
}

func (v *quizValidator) VisitStart(domain.StartMoment) { v.starts++ }
func (v *quizValidator) VisitEnd(domain.EndMoment)     { v.ends++ }

func (v *quizValidator) VisitFillIn(m domain.FillInMoment) {
	v.err = invalidQuiz("moment %d: fill-in moments are not valid in a generated quiz", m.Index)
}

func (v *quizValidator) VisitShuffleItem(m domain.ShuffleItemMoment) {
	v.err = invalidQuiz("moment %d: shuffle items are derived, not generated", m.Index)
}

func (v *quizValidator) VisitMultipleChoice(m domain.MultipleChoiceMoment) {
	switch {
	case strings.TrimSpace(m.Question) == "":
		v.err = invalidQuiz("moment %d has no question", m.Index)
	case len(m.Options) != 4:
		v.err = invalidQuiz("moment %d has %d options, want 4", m.Index, len(m.Options))
	case m.CorrectOption < 0 || m.CorrectOption >= len(m.Options):
		v.err = invalidQuiz("moment %d answer %d out of range", m.Index, m.CorrectOption)
	default:
		v.questions++
	}
}

func narrativePrompt(title string) Prompt {
	return Prompt{
		System: "You are a sports historian. Write a factual, chronological play-by-play narrative of the decisive sequence of the requested game. Include players, plays and outcomes. Plain text only.",
		User:   "Game: " + title,
	}
}

func quizPrompt(title, narrative string) Prompt {
	return Prompt{
		System: `You are an expert sports analyst. From the play-by-play text, pick 8-10 key moments of the game's decisive sequence and return ONE JSON object with:
- "eventData": an object with at least "shortName" and "date" when known
- "moments": an array in chronological order with sequential "index" starting at 0
The first moment has type "start" and the last has type "end", each with a "context" string.
Every moment between them has type "mc" with:
  "context" (what happened, without the answer), "question", "options" (exactly 4 strings),
  "answer" (the 0-based index of the correct option), "explanation", and
  "importance" (0.0-10.0, how decisive the moment was).
Return JSON only.`,
		User: fmt.Sprintf("Generate key moments for game: %s\n\nPlay-by-Play Text:\n%s", title, narrative),
		JSON: true,
	}
}

// IsContentError reports whether err came out of the generation pipeline.
func IsContentError(err error) bool {
	return errors.Is(err, domain.ErrContentUnavailable) || errors.Is(err, domain.ErrInvalidGeneratedContent)
}
