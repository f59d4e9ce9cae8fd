package engine

import (
	"sync"
	"unicode/utf8"

	"fanfrenzy/internal/domain"
)

// minHintInput is the normalized length below which no hint timer starts.
const minHintInput = 2

// FillInAttempt drives the daily fill-in-the-blank game. Items lock when
// answered exactly or with an accepted variant; the attempt finishes once
// every item is locked or the player gives up.
//
// Each item owns at most one hint timer. A timer is cancelled when the input
// changes, when the item locks and when the attempt finishes; a generation
// counter discards callbacks that raced with cancellation.
type FillInAttempt struct {
	cfg   attemptConfig
	items []domain.FillInMoment

	mu     sync.Mutex
	state  State
	inputs []string
	locked []bool
	hints  []Hint
	timers []Timer
	gens   []uint64
	score  int
}

// InputResult reports the effect of one edit.
type InputResult struct {
	Item     int   `json:"item"`
	Match    Match `json:"-"`
	Locked   bool  `json:"locked"`
	Awarded  int   `json:"awarded"`
	Score    int   `json:"score"`
	Finished bool  `json:"finished"`
}

// FillInSnapshot is a copy of the attempt state.
type FillInSnapshot struct {
	State   string   `json:"state"`
	Prompts []string `json:"prompts"`
	Inputs  []string `json:"inputs"`
	Locked  []bool   `json:"locked"`
	Hints   []string `json:"hints"`
	Score   int      `json:"score"`
}

func NewFillInAttempt(items []domain.FillInMoment, opts ...Option) *FillInAttempt {
	return &FillInAttempt{
		cfg:   newAttemptConfig(opts),
		items: append([]domain.FillInMoment(nil), items...),
	}
}

// Start moves the attempt to active and sizes the parallel arrays.
func (a *FillInAttempt) Start() error {
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
	n := len(a.items)
	a.inputs = make([]string, n)
	a.locked = make([]bool, n)
	a.hints = make([]Hint, n)
	a.timers = make([]Timer, n)
	a.gens = make([]uint64, n)
	a.state = StateActive
	return nil
}

// Input records an edit to an unlocked item.
func (a *FillInAttempt) Input(item int, text string) (InputResult, error) {
	a.mu.Lock()
	if err := checkActive(a.state); err != nil {
		a.mu.Unlock()
		return InputResult{}, err
	}
	if item < 0 || item >= len(a.items) {
		a.mu.Unlock()
		return InputResult{}, ErrItemOutOfRange
	}
	if a.locked[item] {
		a.mu.Unlock()
		return InputResult{}, ErrItemLocked
	}

	a.cancelTimerLocked(item)
	a.inputs[item] = text
	moment := a.items[item]
	res := InputResult{Item: item, Match: Evaluate(text, moment.Answer, a.cfg.variants)}

	if res.Match.Correct() {
		a.locked[item] = true
		a.hints[item] = HintNone
		res.Locked = true
		res.Awarded = Points(moment.Importance)
		a.score += res.Awarded
		res.Score = a.score
		if a.allLockedLocked() {
			a.finishLocked()
			res.Finished = true
			a.mu.Unlock()
			a.cfg.finished()
			return res, nil
		}
		a.mu.Unlock()
		return res, nil
	}

	cleared := false
	if utf8.RuneCountInString(Normalize(text)) < minHintInput {
		cleared = a.hints[item] != HintNone
		a.hints[item] = HintNone
	} else {
		gen := a.gens[item]
		a.timers[item] = a.cfg.scheduler.AfterFunc(a.cfg.debounce, func() { a.fireHint(item, gen) })
	}
	res.Score = a.score
	a.mu.Unlock()

	if cleared && a.cfg.onHint != nil {
		a.cfg.onHint(item, HintNone)
	}
	return res, nil
}

func (a *FillInAttempt) fireHint(item int, gen uint64) {
	a.mu.Lock()
	if a.state != StateActive || a.locked[item] || a.gens[item] != gen {
		a.mu.Unlock()
		return
	}
	hint := HintFor(a.inputs[item], a.items[item].Answer)
	a.hints[item] = hint
	a.timers[item] = nil
	a.mu.Unlock()

	if a.cfg.onHint != nil {
		a.cfg.onHint(item, hint)
	}
}

// GiveUp finishes the attempt regardless of lock state.
func (a *FillInAttempt) GiveUp() error {
	a.mu.Lock()
	if err := checkActive(a.state); err != nil {
		a.mu.Unlock()
		return err
	}
	a.finishLocked()
	a.mu.Unlock()
	a.cfg.finished()
	return nil
}

func (a *FillInAttempt) cancelTimerLocked(item int) {
	a.gens[item]++
	if t := a.timers[item]; t != nil {
		t.Stop()
		a.timers[item] = nil
	}
}

func (a *FillInAttempt) finishLocked() {
	for i := range a.timers {
		a.cancelTimerLocked(i)
	}
	a.state = StateFinished
}

func (a *FillInAttempt) allLockedLocked() bool {
	for _, l := range a.locked {
		if !l {
			return false
		}
	}
	return true
}

// PendingHints counts armed hint timers.
func (a *FillInAttempt) PendingHints() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, t := range a.timers {
		if t != nil {
			n++
		}
	}
	return n
}

func (a *FillInAttempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *FillInAttempt) Score() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.score
}

func (a *FillInAttempt) Metadata() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	correct := 0
	for _, l := range a.locked {
		if l {
			correct++
		}
	}
	return map[string]any{
		"totalMoments": len(a.items),
		"correctCount": correct,
	}
}

func (a *FillInAttempt) Snapshot() FillInSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := FillInSnapshot{
		State:   a.state.String(),
		Prompts: make([]string, len(a.items)),
		Inputs:  append([]string(nil), a.inputs...),
		Locked:  append([]bool(nil), a.locked...),
		Hints:   make([]string, len(a.hints)),
		Score:   a.score,
	}
	for i, m := range a.items {
		snap.Prompts[i] = m.Prompt
	}
	for i, h := range a.hints {
		snap.Hints[i] = h.Message()
	}
	return snap
}
