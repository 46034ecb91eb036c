// Package store remembers newsletter dispatches by idempotency key.
package store

import "errors"

// ErrInFlight is returned by Begin when another request holds the key.
var ErrInFlight = errors.New("dispatch with this idempotency key is in progress")

const keyPrefix = "mailomat:newsletter:idem:"

const pendingMarker = "pending"
