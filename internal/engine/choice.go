package engine

import (
	"sync"

	"fanfrenzy/internal/domain"
)

// ChoiceAttempt drives the rewind multiple-choice game. A selection is only
// staged; Reveal scores it and advances, Skip advances without scoring.
type ChoiceAttempt struct {
	cfg   attemptConfig
	items []domain.MultipleChoiceMoment

	mu      sync.Mutex
	state   State
	current int
	staged  int
	answers []int
	correct int
	skipped int
	score   int
}

// RevealResult is the outcome of revealing the staged selection.
type RevealResult struct {
	Item          int    `json:"item"`
	Selected      int    `json:"selected"`
	CorrectOption int    `json:"correctOption"`
	Correct       bool   `json:"correct"`
	Awarded       int    `json:"awarded"`
	Explanation   string `json:"explanation,omitempty"`
	Score         int    `json:"score"`
	Finished      bool   `json:"finished"`
}

// ChoiceSnapshot is a copy of the attempt state. Answers are never included.
type ChoiceSnapshot struct {
	State    string   `json:"state"`
	Current  int      `json:"current"`
	Total    int      `json:"total"`
	Context  string   `json:"context,omitempty"`
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`
	Staged   int      `json:"staged"`
	Correct  int      `json:"correct"`
	Skipped  int      `json:"skipped"`
	Score    int      `json:"score"`
}

func NewChoiceAttempt(items []domain.MultipleChoiceMoment, opts ...Option) *ChoiceAttempt {
	return &ChoiceAttempt{
		cfg:    newAttemptConfig(opts),
		items:  append([]domain.MultipleChoiceMoment(nil), items...),
		staged: -1,
	}
}

func (a *ChoiceAttempt) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case StateActive:
		return nil
	case StateFinished:
		return ErrAttemptFinished
	}
	if len(a.items) == 0 {
		return ErrTooFewItems
	}
	a.answers = make([]int, len(a.items))
	for i := range a.answers {
		a.answers[i] = -1
	}
	a.state = StateActive
	return nil
}

// Select stages an option for the current question. It may be changed until Reveal.
func (a *ChoiceAttempt) Select(option int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := checkActive(a.state); err != nil {
		return err
	}
	if option < 0 || option >= len(a.items[a.current].Options) {
		return ErrItemOutOfRange
	}
	a.staged = option
	return nil
}

// Reveal scores the staged selection and moves to the next question.
func (a *ChoiceAttempt) Reveal() (RevealResult, error) {
	a.mu.Lock()
	if err := checkActive(a.state); err != nil {
		a.mu.Unlock()
		return RevealResult{}, err
	}
	if a.staged < 0 {
		a.mu.Unlock()
		return RevealResult{}, ErrNothingSelected
	}

	m := a.items[a.current]
	res := RevealResult{
		Item:          a.current,
		Selected:      a.staged,
		CorrectOption: m.CorrectOption,
		Correct:       a.staged == m.CorrectOption,
		Explanation:   m.Explanation,
	}
	if res.Correct {
		res.Awarded = Points(m.Importance)
		a.score += res.Awarded
		a.correct++
	}
	a.answers[a.current] = a.staged
	res.Score = a.score
	res.Finished = a.advanceLocked()
	a.mu.Unlock()

	if res.Finished {
		a.cfg.finished()
	}
	return res, nil
}

// Skip moves past the current question without scoring it.
func (a *ChoiceAttempt) Skip() (bool, error) {
	a.mu.Lock()
	if err := checkActive(a.state); err != nil {
		a.mu.Unlock()
		return false, err
	}
	a.skipped++
	finished := a.advanceLocked()
	a.mu.Unlock()

	if finished {
		a.cfg.finished()
	}
	return finished, nil
}

func (a *ChoiceAttempt) advanceLocked() bool {
	a.staged = -1
	a.current++
	if a.current >= len(a.items) {
		a.current = len(a.items)
		a.state = StateFinished
		return true
	}
	return false
}

func (a *ChoiceAttempt) GiveUp() error {
	a.mu.Lock()
	if err := checkActive(a.state); err != nil {
		a.mu.Unlock()
		return err
	}
	a.skipped += len(a.items) - a.current
	a.current = len(a.items)
	a.staged = -1
	a.state = StateFinished
	a.mu.Unlock()
	a.cfg.finished()
	return nil
}

func (a *ChoiceAttempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *ChoiceAttempt) Score() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.score
}

func (a *ChoiceAttempt) Metadata() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{
		"totalMoments": len(a.items),
		"correct":      a.correct,
		"skipped":      a.skipped,
	}
}

func (a *ChoiceAttempt) Snapshot() ChoiceSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := ChoiceSnapshot{
		State:   a.state.String(),
		Current: a.current,
		Total:   len(a.items),
		Staged:  a.staged,
		Correct: a.correct,
		Skipped: a.skipped,
		Score:   a.score,
	}
	if a.current < len(a.items) {
		m := a.items[a.current]
		snap.Context = m.Context
		snap.Question = m.Question
		snap.Options = append([]string(nil), m.Options...)
	}
	return snap
}
