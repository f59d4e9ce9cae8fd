package app

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"fanfrenzy/internal/domain"
	"fanfrenzy/internal/pkg/caching"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	leaderboardCacheKey = "leaderboard:v1"
	maxPlayerName       = 40
)

// Submission is a completed attempt as sent by a client.
type Submission struct {
	GameID    string         `json:"gameId"`
	Mode      domain.Mode    `json:"mode"`
	Score     int            `json:"score"`
	Metadata  map[string]any `json:"metadata"`
	AttemptID string         `json:"attemptId,omitempty"`
}

// ScoreService persists finished attempts and ranks them per mode.
type ScoreService struct {
	writer   ScoreWriter
	reader   ScoreReader
	cache    caching.Cache
	cacheTTL time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	subscribers map[chan domain.Leaderboard]struct{}
}

type ScoreOption func(*ScoreService)

// WithLeaderboardCache caches ranked leaderboards between submissions.
func WithLeaderboardCache(c caching.Cache, ttl time.Duration) ScoreOption {
	return func(s *ScoreService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithScoreClock is test-only for deterministic timestamps.
func WithScoreClock(now func() time.Time) ScoreOption {
	return func(s *ScoreService) { s.now = now }
}

func NewScoreService(writer ScoreWriter, reader ScoreReader, log *zap.Logger, opts ...ScoreOption) *ScoreService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &ScoreService{
		writer:      writer,
		reader:      reader,
		log:         log,
		now:         time.Now,
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates and stores a score. created is false when attemptID was
// already recorded; the stored record is returned in that case.
func (s *ScoreService) Submit(ctx context.Context, who *domain.Identity, sub Submission) (domain.ScoreRecord, bool, error) {
	if err := ValidateSubmission(who, sub); err != nil {
		return domain.ScoreRecord{}, false, err
	}

	rec := domain.ScoreRecord{
		ID:        uuid.NewString(),
		AttemptID: sub.AttemptID,
		GameID:    strings.TrimSpace(sub.GameID),
		Mode:      sub.Mode,
		Score:     sub.Score,
		Metadata:  sub.Metadata,
		CreatedAt: s.now().UTC(),
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	if who != nil {
		id := who.UserID
		rec.UserID = &id
		rec.UserEmail = who.Email
	}

	stored, err := s.writer.InsertScore(ctx, rec)
	if errors.Is(err, domain.ErrDuplicateAttempt) {
		return stored, false, nil
	}
	if err != nil {
		return domain.ScoreRecord{}, false, err
	}

	s.invalidate(ctx)
	s.publish(ctx)
	return stored, true, nil
}

// ValidateSubmission checks the mode, the caller's identity and the
// mode-specific metadata, in that order.
func ValidateSubmission(who *domain.Identity, sub Submission) error {
	if !sub.Mode.Valid() {
		return domain.Invalid("mode", "unknown mode %q", sub.Mode)
	}
	if sub.Mode != domain.ModeDaily && (who == nil || who.UserID == "") {
		return domain.ErrAuthRequired
	}
	if strings.TrimSpace(sub.GameID) == "" {
		return domain.Invalid("gameId", "is required")
	}
	if sub.Score < 0 {
		return domain.Invalid("score", "must not be negative")
	}
	if sub.AttemptID != "" {
		if _, err := uuid.Parse(sub.AttemptID); err != nil {
			return domain.Invalid("attemptId", "must be a UUID")
		}
	}

	meta := sub.Metadata
	total, err := metaInt(meta, "totalMoments", true)
	if err != nil {
		return err
	}
	if total < 1 {
		return domain.Invalid("metadata.totalMoments", "must be at least 1")
	}

	switch sub.Mode {
	case domain.ModeDaily:
		correct, err := metaInt(meta, "correctCount", true)
		if err != nil {
			return err
		}
		if correct < 0 || correct > total {
			return domain.Invalid("metadata.correctCount", "must be between 0 and totalMoments")
		}
		if name, ok := meta["playerName"]; ok {
			str, isStr := name.(string)
			if !isStr {
				return domain.Invalid("metadata.playerName", "must be a string")
			}
			if utf8.RuneCountInString(str) > maxPlayerName {
				return domain.Invalid("metadata.playerName", "must be at most %d characters", maxPlayerName)
			}
		}
	case domain.ModeRewind:
		correct, err := metaInt(meta, "correct", true)
		if err != nil {
			return err
		}
		skipped, err := metaInt(meta, "skipped", true)
		if err != nil {
			return err
		}
		if correct < 0 {
			return domain.Invalid("metadata.correct", "must not be negative")
		}
		if skipped < 0 {
			return domain.Invalid("metadata.skipped", "must not be negative")
		}
		if correct+skipped > total {
			return domain.Invalid("metadata", "correct + skipped exceeds totalMoments")
		}
	case domain.ModeShuffle:
		positions, err := metaInt(meta, "correctPositions", true)
		if err != nil {
			return err
		}
		if positions < 0 || positions > total {
			return domain.Invalid("metadata.correctPositions", "must be between 0 and totalMoments")
		}
		if _, ok := meta["bonusEarned"].(bool); !ok {
			return domain.Invalid("metadata.bonusEarned", "must be a boolean")
		}
	}
	return nil
}

// metaInt reads an integral number; JSON decoding yields float64 while
// server-side attempts produce int.
func metaInt(meta map[string]any, key string, required bool) (int, error) {
	field := "metadata." + key
	v, ok := meta[key]
	if !ok || v == nil {
		if required {
			return 0, domain.Invalid(field, "is required")
		}
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, domain.Invalid(field, "must be an integer")
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, domain.Invalid(field, "must be an integer")
		}
		return int(i), nil
	}
	return 0, domain.Invalid(field, "must be a number")
}

// Leaderboard ranks every stored score, with an entry list for each known mode.
func (s *ScoreService) Leaderboard(ctx context.Context) (domain.Leaderboard, error) {
	if s.cache == nil {
		return s.build(ctx)
	}
	return caching.UseCache(ctx, s.cache, leaderboardCacheKey, s.cacheTTL, func() (domain.Leaderboard, error) {
		return s.build(ctx)
	})
}

func (s *ScoreService) build(ctx context.Context) (domain.Leaderboard, error) {
	records, err := s.reader.ListScores(ctx)
	if err != nil {
		return nil, err
	}
	return Rank(records), nil
}

// Rank groups records by mode, orders each group by score descending then
// earliest creation, and assigns 1-based positions. Unknown modes are dropped.
func Rank(records []domain.ScoreRecord) domain.Leaderboard {
	lb := make(domain.Leaderboard, len(domain.Modes))
	for _, m := range domain.Modes {
		lb[m] = []domain.LeaderboardEntry{}
	}
	groups := make(map[domain.Mode][]domain.ScoreRecord, len(domain.Modes))
	for _, r := range records {
		if !r.Mode.Valid() {
			continue
		}
		groups[r.Mode] = append(groups[r.Mode], r)
	}
	for mode, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Score != group[j].Score {
				return group[i].Score > group[j].Score
			}
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.Before(group[j].CreatedAt)
			}
			return group[i].ID < group[j].ID
		})
		entries := make([]domain.LeaderboardEntry, len(group))
		for i, r := range group {
			entries[i] = domain.LeaderboardEntry{
				Position:    i + 1,
				DisplayName: DisplayName(r),
				GameID:      r.GameID,
				Mode:        r.Mode,
				Score:       r.Score,
				Metadata:    r.Metadata,
				CreatedAt:   r.CreatedAt,
			}
		}
		lb[mode] = entries
	}
	return lb
}

// DisplayName derives a label that never exposes a full email or user id.
func DisplayName(r domain.ScoreRecord) string {
	if r.UserEmail != "" {
		local := r.UserEmail
		if at := strings.IndexByte(local, '@'); at >= 0 {
			local = local[:at]
		}
		runes := []rune(local)
		if len(runes) > 8 {
			runes = runes[:8]
		}
		return string(runes) + "..."
	}
	if r.UserID != nil && *r.UserID != "" {
		id := *r.UserID
		if len(id) > 6 {
			id = id[len(id)-6:]
		}
		return "User ..." + id
	}
	if name, ok := r.Metadata["playerName"].(string); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	return "Anonymous"
}

func (s *ScoreService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, leaderboardCacheKey); err != nil && !errors.Is(err, caching.ErrCacheMiss) {
		s.log.Warn("leaderboard cache invalidation failed", zap.Error(err))
	}
}

// Subscribe returns a channel that receives a leaderboard after every stored
// score, starting with the current one. The caller must invoke cancel.
func (s *ScoreService) Subscribe(ctx context.Context) (<-chan domain.Leaderboard, func(), error) {
	initial, err := s.Leaderboard(ctx)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan domain.Leaderboard, 8)
	ch <- initial

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *ScoreService) publish(ctx context.Context) {
	s.mu.Lock()
	n := len(s.subscribers)
	s.mu.Unlock()
	if n == 0 {
		return
	}

	lb, err := s.Leaderboard(ctx)
	if err != nil {
		s.log.Warn("leaderboard refresh for subscribers failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- lb:
		default:
			// slow reader: replace its oldest pending snapshot
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
