package dispatch

import "errors"

// Domain errors for the dispatch package.
//
// They appear in Outcome.Err and are never returned from Dispatch itself.
var (
	// ErrRejected is recorded when the gateway answered with a status other than 200.
	ErrRejected = errors.New("dispatch: command rejected")

	// ErrNoPermit is recorded when a command could not obtain a concurrency
	// permit or transport before its context ended.
	ErrNoPermit = errors.New("dispatch: no permit acquired")

	// ErrNotDispatched is recorded for commands of batches that never started
	// because the operation was cancelled.
	ErrNotDispatched = errors.New("dispatch: not dispatched")

	// ErrInvalidMode is returned by ParseMode for unknown mode strings.
	ErrInvalidMode = errors.New("dispatch: invalid mode")

	// ErrInvalidPoolSize is returned when a pool cannot build its senders.
	ErrInvalidPoolSize = errors.New("dispatch: invalid pool size")
)
