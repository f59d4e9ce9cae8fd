package engine

import (
	"context"
	"sync"
)

// SaveState tracks persistence of a finished attempt's score.
type SaveState string

const (
	SaveIdle      SaveState = "idle"
	SaveInFlight  SaveState = "saving"
	SaveSucceeded SaveState = "saved"
	SaveFailed    SaveState = "failed"
)

// SaveGuard makes the score save happen at most once per attempt. The
// automatic trigger only fires from idle; a failed save can only be retried
// explicitly. The guard is never held during the save call itself.
type SaveGuard struct {
	mu    sync.Mutex
	state SaveState
	err   error
}

// Trigger runs save if no save has been attempted yet. It reports whether
// save ran.
func (g *SaveGuard) Trigger(ctx context.Context, save func(context.Context) error) (bool, error) {
	return g.run(ctx, save, SaveIdle)
}

// Retry runs save again after a failure.
func (g *SaveGuard) Retry(ctx context.Context, save func(context.Context) error) (bool, error) {
	return g.run(ctx, save, SaveFailed)
}

func (g *SaveGuard) run(ctx context.Context, save func(context.Context) error, from SaveState) (bool, error) {
	g.mu.Lock()
	if g.current() != from {
		g.mu.Unlock()
		return false, nil
	}
	g.state = SaveInFlight
	g.mu.Unlock()

	err := save(ctx)

	g.mu.Lock()
	if err != nil {
		g.state = SaveFailed
	} else {
		g.state = SaveSucceeded
	}
	g.err = err
	g.mu.Unlock()
	return true, err
}

func (g *SaveGuard) current() SaveState {
	if g.state == "" {
		return SaveIdle
	}
	return g.state
}

// State returns the current save state and the last error.
func (g *SaveGuard) State() (SaveState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current(), g.err
}
