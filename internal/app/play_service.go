package app

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"fanfrenzy/internal/domain"
	"fanfrenzy/internal/engine"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlayRequest selects the content and game of a server-side attempt.
type PlayRequest struct {
	Mode domain.Mode
	// Ordering plays the daily content as the adjacency ordering game.
	Ordering bool
	// Date is the optional daily override.
	Date    string
	Content ContentRequest
}

// PlayCommand is one player action.
type PlayCommand struct {
	Type   string `json:"type"`
	Item   int    `json:"item"`
	Text   string `json:"text"`
	Option int    `json:"option"`
	From   int    `json:"from"`
	To     int    `json:"to"`
	Items  []int  `json:"items"`
}

// PlayEvent is pushed to the player, either as the answer to a command or
// asynchronously (hints, saves).
type PlayEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// HintPayload accompanies a "hint" event.
type HintPayload struct {
	Item    int    `json:"item"`
	Hint    string `json:"hint"`
	Message string `json:"message"`
}

// MessagePayload accompanies "error" events.
type MessagePayload struct {
	Message string `json:"message"`
}

// OrderItem is a labelled item of an ordering game.
type OrderItem struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// PlayService builds and drives attempts for every mode.
type PlayService struct {
	content  *ContentService
	catalog  *CatalogService
	scores   *ScoreService
	variants engine.Variants
	attempt  []engine.Option
	presence PlayPresence
	log      *zap.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

type PlayOption func(*PlayService)

// WithPlayRand fixes the shuffle order in tests.
func WithPlayRand(r *rand.Rand) PlayOption {
	return func(s *PlayService) { s.rnd = r }
}

// WithPresence counts live players per game.
func WithPresence(p PlayPresence) PlayOption {
	return func(s *PlayService) { s.presence = p }
}

// WithAttemptOptions appends engine options, e.g. a fake scheduler.
func WithAttemptOptions(opts ...engine.Option) PlayOption {
	return func(s *PlayService) { s.attempt = append(s.attempt, opts...) }
}

func NewPlayService(content *ContentService, catalog *CatalogService, scores *ScoreService, variants engine.Variants, log *zap.Logger, opts ...PlayOption) *PlayService {
	if log == nil {
		log = zap.NewNop()
	}
	if variants == nil {
		variants = engine.DefaultVariants()
	}
	s := &PlayService{content: content, catalog: catalog, scores: scores, variants: variants, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads content, builds the attempt for the mode and starts it. The
// session's context bounds the automatic score save.
func (s *PlayService) Start(ctx context.Context, who *domain.Identity, req PlayRequest) (*PlaySession, error) {
	if !req.Mode.Valid() {
		return nil, domain.Invalid("mode", "unknown mode %q", req.Mode)
	}

	var (
		content domain.GameContent
		err     error
	)
	if req.Mode == domain.ModeDaily {
		content, err = s.catalog.Daily(ctx, req.Date)
	} else {
		content, err = s.content.GetOrGenerate(ctx, req.Content)
	}
	if err != nil {
		return nil, err
	}

	sess := &PlaySession{
		ctx:       ctx,
		AttemptID: uuid.NewString(),
		GameID:    content.GameID,
		Mode:      req.Mode,
		who:       who,
		scores:    s.scores,
		presence:  s.presence,
		log:       s.log,
		events:    make(chan PlayEvent, 16),
	}
	opts := append([]engine.Option{
		engine.WithVariants(s.variants),
		engine.OnHint(sess.onHint),
		engine.OnFinish(sess.onFinish),
	}, s.attempt...)

	var c momentCollector
	for _, m := range content.Moments {
		m.Accept(&c)
	}
	// authored files may list moments out of order; the index is canonical
	sort.SliceStable(c.fillIns, func(i, j int) bool { return c.fillIns[i].Index < c.fillIns[j].Index })
	sort.SliceStable(c.choices, func(i, j int) bool { return c.choices[i].Index < c.choices[j].Index })

	switch {
	case req.Mode == domain.ModeDaily && req.Ordering:
		ids := make([]engine.ItemID, len(c.fillIns))
		importance := make(map[engine.ItemID]float64, len(c.fillIns))
		labels := make(map[engine.ItemID]string, len(c.fillIns))
		for i, m := range c.fillIns {
			ids[i] = m.Index
			importance[m.Index] = m.Importance
			labels[m.Index] = m.Prompt
		}
		initial := s.shuffleIDs(ids)
		sess.Items = orderItems(initial, labels)
		sess.ordering, err = engine.NewOrderingAttempt(ids, initial, importance, engine.DailyOrdering(), opts...)
		if err != nil {
			return nil, err
		}
		sess.attempt = sess.ordering
	case req.Mode == domain.ModeDaily:
		sess.fillIn = engine.NewFillInAttempt(c.fillIns, opts...)
		sess.attempt = sess.fillIn
	case req.Mode == domain.ModeRewind:
		sess.choice = engine.NewChoiceAttempt(c.choices, opts...)
		sess.attempt = sess.choice
	case req.Mode == domain.ModeShuffle:
		items, err := engine.ShuffleItems(content)
		if err != nil {
			return nil, err
		}
		ids := make([]engine.ItemID, len(items))
		importance := make(map[engine.ItemID]float64, len(items))
		labels := make(map[engine.ItemID]string, len(items))
		for i, it := range items {
			ids[i] = it.Index
			importance[it.Index] = it.Importance
			labels[it.Index] = it.Context
		}
		initial := s.shuffleIDs(ids)
		sess.Items = orderItems(initial, labels)
		sess.ordering, err = engine.NewOrderingAttempt(ids, initial, importance, engine.ShuffleOrdering(), opts...)
		if err != nil {
			return nil, err
		}
		sess.attempt = sess.ordering
	}

	if err := sess.start(); err != nil {
		return nil, err
	}
	if s.presence != nil {
		if err := s.presence.Join(ctx, sess.GameID, sess.AttemptID); err != nil {
			s.log.Warn("presence join failed", zap.String("game_id", sess.GameID), zap.Error(err))
		}
	}
	return sess, nil
}

func (s *PlayService) shuffleIDs(ids []engine.ItemID) []engine.ItemID {
	out := append([]engine.ItemID(nil), ids...)
	swap := func(i, j int) { out[i], out[j] = out[j], out[i] }
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	if s.rnd != nil {
		s.rnd.Shuffle(len(out), swap)
	} else {
		rand.Shuffle(len(out), swap)
	}
	return out
}

// orderItems lists items in the player's starting order so the payload
// does not reveal the answer.
func orderItems(initial []engine.ItemID, labels map[engine.ItemID]string) []OrderItem {
	out := make([]OrderItem, len(initial))
	for i, id := range initial {
		out[i] = OrderItem{ID: id, Label: labels[id]}
	}
	return out
}

type momentCollector struct {
	fillIns []domain.FillInMoment
	choices []domain.MultipleChoiceMoment
}

func (c *momentCollector) VisitStart(domain.StartMoment)             {}
func (c *momentCollector) VisitEnd(domain.EndMoment)                 {}
func (c *momentCollector) VisitShuffleItem(domain.ShuffleItemMoment) {}

func (c *momentCollector) VisitFillIn(m domain.FillInMoment) {
	c.fillIns = append(c.fillIns, m)
}

func (c *momentCollector) VisitMultipleChoice(m domain.MultipleChoiceMoment) {
	c.choices = append(c.choices, m)
}

// PlaySession is one attempt owned by one connection.
type PlaySession struct {
	AttemptID string
	GameID    string
	Mode      domain.Mode
	Items     []OrderItem

	ctx      context.Context
	who      *domain.Identity
	scores   *ScoreService
	presence PlayPresence
	log      *zap.Logger
	attempt  engine.Attempt
	fillIn   *engine.FillInAttempt
	choice   *engine.ChoiceAttempt
	ordering *engine.OrderingAttempt
	guard    engine.SaveGuard

	mu     sync.Mutex
	closed bool
	events chan PlayEvent
}

func (p *PlaySession) start() error {
	switch {
	case p.fillIn != nil:
		return p.fillIn.Start()
	case p.choice != nil:
		return p.choice.Start()
	case p.ordering != nil:
		return p.ordering.Start()
	}
	return engine.ErrTooFewItems
}

// Events delivers hints and save outcomes. It is closed by Close.
func (p *PlaySession) Events() <-chan PlayEvent {
	return p.events
}

// Close abandons the attempt and releases its timers.
func (p *PlaySession) Close() {
	if p.attempt.State() == engine.StateActive {
		// nobody is listening any more, so skip the save
		_, _ = p.guard.Trigger(p.ctx, func(context.Context) error { return nil })
		_ = p.attempt.GiveUp()
	}
	if p.presence != nil {
		// the request context is usually gone by now
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := p.presence.Leave(ctx, p.GameID, p.AttemptID); err != nil {
			p.log.Warn("presence leave failed", zap.String("game_id", p.GameID), zap.Error(err))
		}
		cancel()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
}

// State returns a snapshot of the attempt without answers.
func (p *PlaySession) State() PlayEvent {
	data := map[string]any{
		"attemptId": p.AttemptID,
		"gameId":    p.GameID,
		"mode":      p.Mode,
	}
	switch {
	case p.fillIn != nil:
		data["attempt"] = p.fillIn.Snapshot()
	case p.choice != nil:
		data["attempt"] = p.choice.Snapshot()
	case p.ordering != nil:
		data["attempt"] = p.ordering.Snapshot()
		data["items"] = p.Items
	}
	save, _ := p.guard.State()
	data["save"] = save
	if p.presence != nil {
		if n, err := p.presence.Count(p.ctx, p.GameID); err == nil {
			data["playing"] = n
		}
	}
	return PlayEvent{Type: "state", Payload: data}
}

// Handle applies one command and returns the direct reply.
func (p *PlaySession) Handle(ctx context.Context, cmd PlayCommand) (PlayEvent, error) {
	switch cmd.Type {
	case "state":
		return p.State(), nil
	case "giveUp":
		if err := p.attempt.GiveUp(); err != nil {
			return PlayEvent{}, err
		}
		return p.State(), nil
	case "retrySave":
		return p.retrySave(ctx)
	}

	switch {
	case p.fillIn != nil && cmd.Type == "input":
		res, err := p.fillIn.Input(cmd.Item, cmd.Text)
		if err != nil {
			return PlayEvent{}, err
		}
		return PlayEvent{Type: "result", Payload: res}, nil

	case p.choice != nil && cmd.Type == "select":
		if err := p.choice.Select(cmd.Option); err != nil {
			return PlayEvent{}, err
		}
		return p.State(), nil
	case p.choice != nil && cmd.Type == "reveal":
		res, err := p.choice.Reveal()
		if err != nil {
			return PlayEvent{}, err
		}
		return PlayEvent{Type: "result", Payload: res}, nil
	case p.choice != nil && cmd.Type == "skip":
		if _, err := p.choice.Skip(); err != nil {
			return PlayEvent{}, err
		}
		return p.State(), nil

	case p.ordering != nil && cmd.Type == "move":
		if err := p.ordering.Move(cmd.From, cmd.To); err != nil {
			return PlayEvent{}, err
		}
		return p.State(), nil
	case p.ordering != nil && cmd.Type == "order":
		if err := p.ordering.Reorder(cmd.Items); err != nil {
			return PlayEvent{}, err
		}
		return p.State(), nil
	case p.ordering != nil && cmd.Type == "submit":
		res, err := p.ordering.Submit()
		if err != nil {
			return PlayEvent{}, err
		}
		return PlayEvent{Type: "result", Payload: res}, nil
	}
	return PlayEvent{}, domain.Invalid("type", "command %q not supported in this game", cmd.Type)
}

func (p *PlaySession) retrySave(ctx context.Context) (PlayEvent, error) {
	if p.attempt.State() != engine.StateFinished {
		return PlayEvent{}, engine.ErrNotFinished
	}
	ran, err := p.guard.Retry(ctx, p.save)
	if err != nil {
		return PlayEvent{}, err
	}
	if !ran {
		return p.State(), nil
	}
	return PlayEvent{Type: "saved"}, nil
}

func (p *PlaySession) onHint(item int, hint engine.Hint) {
	p.emit(PlayEvent{Type: "hint", Payload: HintPayload{Item: item, Hint: string(hint), Message: hint.Message()}})
}

// onFinish saves the score once, only for authenticated viewers.
func (p *PlaySession) onFinish() {
	if p.who == nil || p.who.UserID == "" || p.scores == nil {
		return
	}
	ran, err := p.guard.Trigger(p.ctx, p.save)
	if !ran {
		return
	}
	if err != nil {
		p.log.Warn("score save failed", zap.String("attempt_id", p.AttemptID), zap.Error(err))
		p.emit(PlayEvent{Type: "error", Payload: MessagePayload{Message: "score save failed, send retrySave"}})
		return
	}
	p.emit(PlayEvent{Type: "saved"})
}

func (p *PlaySession) save(ctx context.Context) error {
	_, _, err := p.scores.Submit(ctx, p.who, Submission{
		GameID:    p.GameID,
		Mode:      p.Mode,
		Score:     p.attempt.Score(),
		Metadata:  p.attempt.Metadata(),
		AttemptID: p.AttemptID,
	})
	return err
}

func (p *PlaySession) emit(ev PlayEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		select {
		case <-p.events:
		default:
		}
		p.events <- ev
	}
}

// IsPlayError reports whether err is a rejected player action rather than a
// server failure.
func IsPlayError(err error) bool {
	for _, target := range []error{
		engine.ErrAttemptFinished, engine.ErrAttemptIdle, engine.ErrItemLocked,
		engine.ErrItemOutOfRange, engine.ErrSubmitDisabled, engine.ErrInvalidOrder,
		engine.ErrNotFinished, engine.ErrNothingSelected, engine.ErrTooFewItems,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var verr *domain.ValidationError
	return errors.As(err, &verr)
}
