package dispatch

import "errors"

var (
	// ErrQueueClosed is returned by Enqueue once the queue has been
	// cancelled. A cancelled queue is terminal; build a new Service to
	// dispatch again.
	ErrQueueClosed = errors.New("dispatch queue closed")

	// ErrQueueFull is returned when pending is at capacity. Enqueue never
	// blocks the caller.
	ErrQueueFull = errors.New("dispatch queue full")
)
