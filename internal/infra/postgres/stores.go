package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fanfrenzy/internal/domain"
	"github.com/uptrace/bun"
)

// ScoreStore is the bun-backed scores table. Records are insert-only.
type ScoreStore struct {
	db *bun.DB
}

func NewScoreStore(db *bun.DB) *ScoreStore {
	return &ScoreStore{db: db}
}

// InsertScore stores rec. A repeated attempt id leaves the table untouched
// and returns the first record with domain.ErrDuplicateAttempt.
func (s *ScoreStore) InsertScore(ctx context.Context, rec domain.ScoreRecord) (domain.ScoreRecord, error) {
	row := scoreRowFrom(rec)
	q := s.db.NewInsert().Model(&row).Returning("*")
	if rec.AttemptID != "" {
		q = q.On("CONFLICT (attempt_id) DO NOTHING")
	}
	res, err := q.Exec(ctx)
	conflict := errors.Is(err, sql.ErrNoRows)
	if err != nil && !conflict {
		return domain.ScoreRecord{}, fmt.Errorf("insert score: %w: %w", domain.ErrPersistence, err)
	}
	if !conflict && res != nil {
		if n, _ := res.RowsAffected(); n == 1 {
			return row.record(), nil
		}
	}
	if rec.AttemptID == "" {
		return row.record(), nil
	}

	var existing scoreRow
	if err := s.db.NewSelect().Model(&existing).Where("attempt_id = ?", rec.AttemptID).Scan(ctx); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("load duplicate attempt: %w: %w", domain.ErrPersistence, err)
	}
	return existing.record(), domain.ErrDuplicateAttempt
}

func (s *ScoreStore) ListScores(ctx context.Context) ([]domain.ScoreRecord, error) {
	var rows []scoreRow
	if err := s.db.NewSelect().Model(&rows).Order("created_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list scores: %w: %w", domain.ErrPersistence, err)
	}
	out := make([]domain.ScoreRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// CacheStore is the durable game_cache table.
type CacheStore struct {
	db *bun.DB
}

func NewCacheStore(db *bun.DB) *CacheStore {
	return &CacheStore{db: db}
}

func (s *CacheStore) GetEntry(ctx context.Context, sourceID string) (domain.CacheEntry, bool, error) {
	var row gameCacheRow
	err := s.db.NewSelect().Model(&row).Where("source_id = ?", sourceID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("get cache entry: %w: %w", domain.ErrPersistence, err)
	}
	return domain.CacheEntry{
		SourceID:    row.SourceID,
		Payload:     row.Payload,
		Source:      row.Source,
		FetchedAt:   row.FetchedAt.UTC(),
		NeedsReview: row.NeedsReview,
	}, true, nil
}

// UpsertEntry relies on the source_id primary key so concurrent writers of
// one game converge on a single row.
func (s *CacheStore) UpsertEntry(ctx context.Context, e domain.CacheEntry) error {
	row := gameCacheRow{
		SourceID:    e.SourceID,
		Payload:     e.Payload,
		Source:      e.Source,
		FetchedAt:   e.FetchedAt,
		NeedsReview: e.NeedsReview,
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (source_id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("source = EXCLUDED.source").
		Set("fetched_at = EXCLUDED.fetched_at").
		Set("needs_review = EXCLUDED.needs_review").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}

type ChallengeStore struct {
	db *bun.DB
}

func NewChallengeStore(db *bun.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

func (s *ChallengeStore) InsertChallenge(ctx context.Context, c domain.Challenge) error {
	row := challengeRow{
		ID:          c.ID,
		UserID:      c.UserID,
		GameID:      c.GameID,
		MomentIndex: c.MomentIndex,
		Reason:      string(c.Reason),
		Comment:     c.Comment,
		CreatedAt:   c.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert challenge: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}
