package engine

import "errors"

var (
	ErrAttemptFinished = errors.New("attempt already finished")
	ErrAttemptIdle     = errors.New("attempt not started")
	ErrItemLocked      = errors.New("item is locked")
	ErrItemOutOfRange  = errors.New("item out of range")
	ErrSubmitDisabled  = errors.New("reorder before submitting again")
	ErrInvalidOrder    = errors.New("invalid order")
	ErrNotFinished     = errors.New("attempt not finished")
	ErrNothingSelected = errors.New("no option selected")
	ErrTooFewItems     = errors.New("not enough items to order")
)
