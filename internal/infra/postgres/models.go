package postgres

import (
	"encoding/json"
	"time"

	"fanfrenzy/internal/domain"
	"github.com/uptrace/bun"
)

type scoreRow struct {
	bun.BaseModel `bun:"table:scores"`

	ID        string         `bun:"id,pk,type:uuid"`
	AttemptID string         `bun:"attempt_id,type:uuid,nullzero"`
	UserID    *string        `bun:"user_id"`
	UserEmail string         `bun:"user_email,nullzero"`
	GameID    string         `bun:"game_id,notnull"`
	Mode      string         `bun:"mode,notnull"`
	Score     int            `bun:"score,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,notnull"`
}

func scoreRowFrom(r domain.ScoreRecord) scoreRow {
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return scoreRow{
		ID:        r.ID,
		AttemptID: r.AttemptID,
		UserID:    r.UserID,
		UserEmail: r.UserEmail,
		GameID:    r.GameID,
		Mode:      string(r.Mode),
		Score:     r.Score,
		Metadata:  meta,
		CreatedAt: r.CreatedAt,
	}
}

func (r scoreRow) record() domain.ScoreRecord {
	return domain.ScoreRecord{
		ID:        r.ID,
		AttemptID: r.AttemptID,
		UserID:    r.UserID,
		UserEmail: r.UserEmail,
		GameID:    r.GameID,
		Mode:      domain.Mode(r.Mode),
		Score:     r.Score,
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type gameCacheRow struct {
	bun.BaseModel `bun:"table:game_cache"`

	SourceID    string          `bun:"source_id,pk"`
	Payload     json.RawMessage `bun:"payload,type:jsonb,notnull"`
	Source      string          `bun:"source,notnull"`
	FetchedAt   time.Time       `bun:"fetched_at,notnull"`
	NeedsReview bool            `bun:"needs_review,notnull"`
}

type challengeRow struct {
	bun.BaseModel `bun:"table:challenges"`

	ID          string    `bun:"id,pk,type:uuid"`
	UserID      string    `bun:"user_id,notnull"`
	GameID      string    `bun:"game_id,notnull"`
	MomentIndex *int      `bun:"moment_index"`
	Reason      string    `bun:"reason,notnull"`
	Comment     string    `bun:"comment,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}
