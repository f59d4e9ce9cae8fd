package app

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"fanfrenzy/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxChallengeComment = 1000

// ChallengeRequest is the body of a challenge report.
type ChallengeRequest struct {
	GameID      string                 `json:"gameId"`
	MomentIndex *int                   `json:"momentIndex"`
	Reason      domain.ChallengeReason `json:"reason"`
	Comment     string                 `json:"comment,omitempty"`
}

// ChallengeService records player reports about wrong quiz items.
type ChallengeService struct {
	store     ChallengeStore
	publisher ChallengePublisher
	log       *zap.Logger
	now       func() time.Time
}

// NewChallengeService accepts a nil publisher when no moderation queue is configured.
func NewChallengeService(store ChallengeStore, publisher ChallengePublisher, log *zap.Logger) *ChallengeService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChallengeService{store: store, publisher: publisher, log: log, now: time.Now}
}

func (s *ChallengeService) Submit(ctx context.Context, who *domain.Identity, req ChallengeRequest) (domain.Challenge, error) {
	if who == nil || who.UserID == "" {
		return domain.Challenge{}, domain.ErrAuthRequired
	}
	gameID := strings.TrimSpace(req.GameID)
	switch {
	case gameID == "":
		return domain.Challenge{}, domain.Invalid("gameId", "is required")
	case !req.Reason.Valid():
		return domain.Challenge{}, domain.Invalid("reason", "unknown reason %q", req.Reason)
	case req.MomentIndex != nil && *req.MomentIndex < -1:
		return domain.Challenge{}, domain.Invalid("momentIndex", "must be -1 or greater")
	case utf8.RuneCountInString(req.Comment) > maxChallengeComment:
		return domain.Challenge{}, domain.Invalid("comment", "must be at most %d characters", maxChallengeComment)
	}

	c := domain.Challenge{
		ID:          uuid.NewString(),
		UserID:      who.UserID,
		GameID:      gameID,
		MomentIndex: req.MomentIndex,
		Reason:      req.Reason,
		Comment:     strings.TrimSpace(req.Comment),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.InsertChallenge(ctx, c); err != nil {
		return domain.Challenge{}, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishChallenge(ctx, c); err != nil {
			s.log.Warn("challenge publish failed", zap.String("challenge_id", c.ID), zap.Error(err))
		}
	}
	return c, nil
}
