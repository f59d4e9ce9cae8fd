package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fanfrenzy/internal/domain"
	"fanfrenzy/internal/pkg/caching"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// CatalogService serves pre-authored content: daily challenges and team game lists.
type CatalogService struct {
	src           AuthoredSource
	cache         caching.Cache
	ttl           time.Duration
	allowOverride bool
	loc           *time.Location
	clock         func() time.Time
	log           *zap.Logger
}

type CatalogConfig struct {
	CacheTTL time.Duration
	// AllowDateOverride lets callers request another day's challenge.
	AllowDateOverride bool
	Location          *time.Location
}

func NewCatalogService(src AuthoredSource, cache caching.Cache, cfg CatalogConfig, log *zap.Logger) *CatalogService {
	if log == nil {
		log = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &CatalogService{
		src:           src,
		cache:         cache,
		ttl:           cfg.CacheTTL,
		allowOverride: cfg.AllowDateOverride,
		loc:           loc,
		clock:         time.Now,
		log:           log,
	}
}

// WithClock is used by tests for a fixed "today".
func (s *CatalogService) WithClock(now func() time.Time) *CatalogService {
	s.clock = now
	return s
}

// Today is the current challenge date in the configured location.
func (s *CatalogService) Today() string {
	return s.clock().In(s.loc).Format(dateLayout)
}

// Daily returns the challenge for today, or for override when overrides are allowed.
func (s *CatalogService) Daily(ctx context.Context, override string) (domain.GameContent, error) {
	date := s.Today()
	if override != "" {
		if !s.allowOverride {
			return domain.GameContent{}, domain.Invalid("date", "date override is disabled")
		}
		if _, err := time.Parse(dateLayout, override); err != nil {
			return domain.GameContent{}, domain.Invalid("date", "must be YYYY-MM-DD")
		}
		date = override
	}

	raw, err := s.fetch(ctx, "daily/"+date+".json")
	if err != nil {
		return domain.GameContent{}, err
	}
	var content domain.GameContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return domain.GameContent{}, fmt.Errorf("parse daily %s: %w", date, err)
	}
	if content.GameID == "" {
		content.GameID = date
	}
	return content, nil
}

// Games lists a team's games, optionally for one season.
func (s *CatalogService) Games(ctx context.Context, team, year string) ([]domain.GameListing, error) {
	team = strings.ToUpper(strings.TrimSpace(team))
	year = strings.TrimSpace(year)
	if team == "" {
		return nil, domain.Invalid("team", "is required")
	}
	if !teamPattern.MatchString(team) {
		return nil, domain.Invalid("team", "must be 2-4 letters")
	}
	key := "games/" + team + ".json"
	if year != "" {
		if !yearPattern.MatchString(year) {
			return nil, domain.Invalid("year", "must be four digits")
		}
		key = "games/" + team + "_" + year + ".json"
	}

	raw, err := s.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	var games []domain.GameListing
	if err := json.Unmarshal(raw, &games); err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	return games, nil
}

// Warm loads today's challenge into the cache.
func (s *CatalogService) Warm(ctx context.Context) error {
	date := s.Today()
	if _, err := s.fetch(ctx, "daily/"+date+".json"); err != nil {
		return fmt.Errorf("warm daily %s: %w", date, err)
	}
	s.log.Info("daily challenge warmed", zap.String("date", date))
	return nil
}

func (s *CatalogService) fetch(ctx context.Context, key string) ([]byte, error) {
	if s.cache == nil {
		return s.src.Fetch(ctx, key)
	}
	return caching.UseCache(ctx, s.cache, "authored:"+key, s.ttl, func() ([]byte, error) {
		return s.src.Fetch(ctx, key)
	})
}
