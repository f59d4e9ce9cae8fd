package engine

import "time"

// State is the lifecycle of an attempt: idle -> active -> finished.
type State int

const (
	StateIdle State = iota
	StateActive
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFinished:
		return "finished"
	default:
		return "idle"
	}
}

// Attempt is the part of every game attempt the play driver needs.
type Attempt interface {
	State() State
	Score() int
	Metadata() map[string]any
	GiveUp() error
}

// DefaultHintDebounce is how long typing must pause before a hint is computed.
const DefaultHintDebounce = 750 * time.Millisecond

// Timer is a cancellable deferred call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d on another goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler is backed by time.AfterFunc.
var RealScheduler Scheduler = clockScheduler{}

type attemptConfig struct {
	scheduler Scheduler
	debounce  time.Duration
	variants  Variants
	onHint    func(item int, hint Hint)
	onFinish  func()
}

// Option configures an attempt.
type Option func(*attemptConfig)

func WithScheduler(s Scheduler) Option {
	return func(c *attemptConfig) { c.scheduler = s }
}

func WithDebounce(d time.Duration) Option {
	return func(c *attemptConfig) { c.debounce = d }
}

func WithVariants(v Variants) Option {
	return func(c *attemptConfig) { c.variants = v }
}

// OnHint is called, outside the attempt lock, whenever a debounced hint fires.
func OnHint(f func(item int, hint Hint)) Option {
	return func(c *attemptConfig) { c.onHint = f }
}

// OnFinish is called once, outside the attempt lock, on the transition to finished.
func OnFinish(f func()) Option {
	return func(c *attemptConfig) { c.onFinish = f }
}

func newAttemptConfig(opts []Option) attemptConfig {
	cfg := attemptConfig{
		scheduler: RealScheduler,
		debounce:  DefaultHintDebounce,
		variants:  DefaultVariants(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c attemptConfig) finished() {
	if c.onFinish != nil {
		c.onFinish()
	}
}

func checkActive(s State) error {
	switch s {
	case StateIdle:
		return ErrAttemptIdle
	case StateFinished:
		return ErrAttemptFinished
	}
	return nil
}
