package transfer

import "errors"

// Precondition violations: deterministic, reported immediately, never retried.
var (
	ErrNotFound        = errors.New("scenario not found")
	ErrNotActive       = errors.New("scenario is not active")
	ErrSelfSteal       = errors.New("holder cannot steal from themselves")
	ErrNotHolder       = errors.New("caller is not the current holder")
	ErrAlreadyResolved = errors.New("scenario is already resolved")
	ErrNotClosed       = errors.New("scenario is not closed")
	ErrUnknownPreset   = errors.New("unknown shield duration preset")
	ErrInvalidOutcome  = errors.New("outcome must be yes or no")
	ErrNoWinners       = errors.New("resolution needs at least one winner with positive weight")
)

// Resource errors: user-correctable, never retried automatically.
var ErrInsufficientFunds = errors.New("insufficient balance")

// Contention errors: transient, safe to retry with fresh state.
var (
	ErrProtected    = errors.New("scenario is protected")
	ErrPriceChanged = errors.New("scenario state changed, re-fetch price and retry")
	ErrBusy         = errors.New("scenario is busy, retry")
)

// Retryable reports whether the caller may retry with fresh state.
func Retryable(err error) bool {
	return errors.Is(err, ErrPriceChanged) || errors.Is(err, ErrBusy)
}
