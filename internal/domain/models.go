package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Mode is a game variant; each has its own leaderboard partition.
type Mode string

const (
	ModeDaily   Mode = "daily"
	ModeRewind  Mode = "rewind"
	ModeShuffle Mode = "shuffle"
)

// Modes lists every known mode in display order.
var Modes = []Mode{ModeDaily, ModeRewind, ModeShuffle}

func (m Mode) Valid() bool {
	switch m {
	case ModeDaily, ModeRewind, ModeShuffle:
		return true
	}
	return false
}

// GameContent is a named quiz keyed by GameID (team/year/event or a date).
type GameContent struct {
	GameID    string          `json:"gameId"`
	Title     string          `json:"title"`
	EventData json.RawMessage `json:"eventData,omitempty"`
	Moments   Moments         `json:"moments"`
}

// UnmarshalJSON accepts the legacy `key_moments` and `event_data` keys.
func (g *GameContent) UnmarshalJSON(data []byte) error {
	var raw struct {
		GameID     string          `json:"gameId"`
		Title      string          `json:"title"`
		EventData  json.RawMessage `json:"eventData"`
		LegacyData json.RawMessage `json:"event_data"`
		Moments    *Moments        `json:"moments"`
		KeyMoments *Moments        `json:"key_moments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.GameID = raw.GameID
	g.Title = raw.Title
	g.EventData = raw.EventData
	if len(g.EventData) == 0 {
		g.EventData = raw.LegacyData
	}
	g.Moments = nil
	switch {
	case raw.Moments != nil:
		g.Moments = *raw.Moments
	case raw.KeyMoments != nil:
		g.Moments = *raw.KeyMoments
	}
	return nil
}

// Scorable returns the moments a player answers, in canonical order.
func (g GameContent) Scorable() []Moment {
	out := make([]Moment, 0, len(g.Moments))
	for _, m := range g.Moments {
		switch m.Kind() {
		case KindFillIn, KindMultipleChoice, KindShuffleItem:
			out = append(out, m)
		}
	}
	return out
}

// ScoreRecord is a persisted result of one completed attempt. Never mutated.
type ScoreRecord struct {
	ID        string         `json:"id"`
	AttemptID string         `json:"attemptId,omitempty"`
	UserID    *string        `json:"userId,omitempty"`
	UserEmail string         `json:"-"`
	GameID    string         `json:"gameId"`
	Mode      Mode           `json:"mode"`
	Score     int            `json:"score"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

// LeaderboardEntry is a ScoreRecord ranked within its mode.
type LeaderboardEntry struct {
	Position    int            `json:"position"`
	DisplayName string         `json:"displayName"`
	GameID      string         `json:"gameId"`
	Mode        Mode           `json:"mode"`
	Score       int            `json:"score"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Leaderboard maps every known mode to its ranked entries.
type Leaderboard map[Mode][]LeaderboardEntry

// CacheEntry is a generated payload stored under its content key.
type CacheEntry struct {
	SourceID    string          `json:"sourceId"`
	Payload     json.RawMessage `json:"payload"`
	Source      string          `json:"source"`
	FetchedAt   time.Time       `json:"fetchedAt"`
	NeedsReview bool            `json:"needsReview"`
}

// ChallengeReason enumerates why a player flagged a quiz item.
type ChallengeReason string

const (
	ReasonIncorrectAnswer ChallengeReason = "Incorrect Answer/Order"
	ReasonAmbiguous       ChallengeReason = "Ambiguous Wording/Context"
	ReasonIncorrectInfo   ChallengeReason = "Incorrect Player/Team Info"
	ReasonTechnicalBug    ChallengeReason = "Technical Bug"
	ReasonOther           ChallengeReason = "Other"
)

func (r ChallengeReason) Valid() bool {
	switch r {
	case ReasonIncorrectAnswer, ReasonAmbiguous, ReasonIncorrectInfo, ReasonTechnicalBug, ReasonOther:
		return true
	}
	return false
}

// Challenge is a player's report that a quiz item is wrong.
type Challenge struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	GameID      string          `json:"gameId"`
	MomentIndex *int            `json:"momentIndex"`
	Reason      ChallengeReason `json:"reason"`
	Comment     string          `json:"comment,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// GameListing is one row of a team's game list.
type GameListing struct {
	GameID   string   `json:"gameId"`
	Week     FlexWeek `json:"week"`
	Date     string   `json:"date"`
	Opponent string   `json:"opponent"`
	Result   string   `json:"result"`
}

// FlexWeek holds a week label that authored files write as a number or a string.
type FlexWeek string

func (w *FlexWeek) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*w = FlexWeek(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*w = FlexWeek(n.String())
	return nil
}

func (w FlexWeek) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(string(w)); err == nil {
		return json.Marshal(n)
	}
	return json.Marshal(string(w))
}

// Identity is the authenticated viewer attached by the auth middleware.
type Identity struct {
	UserID string
	Email  string
}
