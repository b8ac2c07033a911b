package dispatch

import (
	"time"

	"github.com/Vaxity1/Aether/internal/ratelimit"
	"github.com/Vaxity1/Aether/internal/transmit"
)

// State is the queue lifecycle state.
//
// Running -> Paused -> Running toggles freely with no data loss.
// Cancelled is terminal: pending is dropped and the queue refuses new work.
type State string

const (
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCancelled State = "cancelled"
)

// Origin records how a message entered the queue.
type Origin string

const (
	OriginImmediate Origin = "immediate"
	OriginScheduled Origin = "scheduled"
	OriginCron      Origin = "cron"
)

// Message is one pending payload. IDs are ULIDs, so arrival order and
// lexicographic ID order agree.
type Message struct {
	ID         string    `json:"id"`
	Payload    string    `json:"payload"`
	Origin     Origin    `json:"origin"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Outcome is the result of the most recent dispatch, kept for status views.
type Outcome struct {
	ID       string        `json:"id"`
	Origin   Origin        `json:"origin"`
	At       time.Time     `json:"at"`
	OK       bool          `json:"ok"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
	Took     time.Duration `json:"took"`
}

// StateEvent is the bus payload for queue state transitions.
type StateEvent struct {
	State   State `json:"state"`
	Pending int   `json:"pending"`
}

type Config struct {
	// MaxPending bounds the pending queue; Enqueue fails fast with
	// ErrQueueFull beyond it. Default 1024.
	MaxPending int

	// Policy is handed to the transmitter for every dispatch.
	Policy transmit.Policy
}

func (c Config) withDefaults() Config {
	if c.MaxPending <= 0 {
		c.MaxPending = 1024
	}
	return c
}

// WindowStatus reports whether the delivery target window can currently be
// found on the desktop. Target is the configured title substring (empty means
// whatever window holds focus), Active is the title of the focused window at
// probe time.
type WindowStatus struct {
	Target  string `json:"target,omitempty"`
	Present bool   `json:"present"`
	Active  string `json:"active,omitempty"`
}

// Snapshot is a point-in-time view of the queue for polling callers.
type Snapshot struct {
	State      State            `json:"state"`
	Pending    int              `json:"pending"`
	MaxPending int              `json:"max_pending"`
	Limiter    ratelimit.Status `json:"limiter"`
	Window     *WindowStatus    `json:"window,omitempty"`
	Last       *Outcome         `json:"last,omitempty"`
}
