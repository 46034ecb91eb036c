package sentinel

import "errors"

// Infrastructure facts returned by stores and transports, optionally wrapped.
// Services translate them into domain errors; they never reach the HTTP layer as-is.
//
// - ErrNotFound: no row/key for the lookup
// - ErrAlreadyUsed: unique key already taken (email, idempotency key)
// - ErrInvalidState: entity in the wrong state for the requested transition
// - ErrUnavailable: backing service unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
