package memory

import (
	"context"
	"sync"

	"fanfrenzy/internal/domain"
)

// ScoreStore is an append-only in-memory score table.
type ScoreStore struct {
	mu        sync.RWMutex
	records   []domain.ScoreRecord
	byAttempt map[string]int
}

func NewScoreStore() *ScoreStore {
	return &ScoreStore{byAttempt: make(map[string]int)}
}

func (s *ScoreStore) InsertScore(_ context.Context, rec domain.ScoreRecord) (domain.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.AttemptID != "" {
		if i, ok := s.byAttempt[rec.AttemptID]; ok {
			return s.records[i], domain.ErrDuplicateAttempt
		}
		s.byAttempt[rec.AttemptID] = len(s.records)
	}
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *ScoreStore) ListScores(_ context.Context) ([]domain.ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ScoreRecord(nil), s.records...), nil
}

// ChallengeStore keeps challenge reports in insertion order.
type ChallengeStore struct {
	mu         sync.Mutex
	challenges []domain.Challenge
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{}
}

func (s *ChallengeStore) InsertChallenge(_ context.Context, c domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges = append(s.challenges, c)
	return nil
}

func (s *ChallengeStore) Challenges() []domain.Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Challenge(nil), s.challenges...)
}

// Presence counts live play sessions per game in process.
type Presence struct {
	mu    sync.Mutex
	games map[string]map[string]struct{}
}

func NewPresence() *Presence {
	return &Presence{games: make(map[string]map[string]struct{})}
}

func (p *Presence) Join(_ context.Context, gameID, attemptID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.games[gameID]
	if !ok {
		set = make(map[string]struct{})
		p.games[gameID] = set
	}
	set[attemptID] = struct{}{}
	return nil
}

func (p *Presence) Leave(_ context.Context, gameID, attemptID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.games[gameID], attemptID)
	if len(p.games[gameID]) == 0 {
		delete(p.games, gameID)
	}
	return nil
}

func (p *Presence) Count(_ context.Context, gameID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.games[gameID]), nil
}
