package app

import (
	"context"

	"fanfrenzy/internal/domain"
)

// CacheStore persists generated content by source id.
type CacheStore interface {
	// GetEntry returns ok=false on a miss.
	GetEntry(ctx context.Context, sourceID string) (domain.CacheEntry, bool, error)
	// UpsertEntry inserts or replaces the entry for entry.SourceID.
	UpsertEntry(ctx context.Context, entry domain.CacheEntry) error
}

// Prompt is one chat-completion request.
type Prompt struct {
	System string
	User   string
	JSON   bool
}

// TextGenerator calls the external generative text API.
type TextGenerator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
	// Source names the model for cache provenance.
	Source() string
}

// GenerationLease serializes cold generations for a key across processes.
type GenerationLease interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// GenerationLimiter budgets cold generations per client.
type GenerationLimiter interface {
	Allow(ctx context.Context, client string) (bool, error)
}

// AuthoredSource serves pre-authored JSON documents. Missing keys yield
// domain.ErrContentNotFound.
type AuthoredSource interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// ScoreWriter inserts score records. A repeated attempt id returns the stored
// record together with domain.ErrDuplicateAttempt.
type ScoreWriter interface {
	InsertScore(ctx context.Context, rec domain.ScoreRecord) (domain.ScoreRecord, error)
}

// ScoreReader lists every stored score regardless of owner.
type ScoreReader interface {
	ListScores(ctx context.Context) ([]domain.ScoreRecord, error)
}

type ChallengeStore interface {
	InsertChallenge(ctx context.Context, c domain.Challenge) error
}

// ChallengePublisher forwards accepted challenges to moderation.
type ChallengePublisher interface {
	PublishChallenge(ctx context.Context, c domain.Challenge) error
}

// PlayPresence tracks live play sessions per game.
type PlayPresence interface {
	Join(ctx context.Context, gameID, attemptID string) error
	Leave(ctx context.Context, gameID, attemptID string) error
	Count(ctx context.Context, gameID string) (int, error)
}
