package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fanfrenzy/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// LeaderboardReader reads every score over a privileged pgx pool, bypassing
// any per-user row policy on the application role.
type LeaderboardReader struct {
	pool *pgxpool.Pool
}

func NewLeaderboardReader(pool *pgxpool.Pool) *LeaderboardReader {
	return &LeaderboardReader{pool: pool}
}

func (r *LeaderboardReader) ListScores(ctx context.Context) ([]domain.ScoreRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, COALESCE(attempt_id::text, ''), user_id, COALESCE(user_email, ''),
		       game_id, mode, score, metadata, created_at
		FROM scores
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.ScoreRecord
	for rows.Next() {
		var (
			rec     domain.ScoreRecord
			mode    string
			rawMeta []byte
			created time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.AttemptID, &rec.UserID, &rec.UserEmail,
			&rec.GameID, &mode, &rec.Score, &rawMeta, &created); err != nil {
			return nil, fmt.Errorf("scan score: %w: %w", domain.ErrPersistence, err)
		}
		rec.Mode = domain.Mode(mode)
		rec.CreatedAt = created.UTC()
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode score metadata %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w: %w", domain.ErrPersistence, err)
	}
	return out, nil
}
