package schedule

import (
	"errors"
	"time"

	"github.com/Vaxity1/Aether/internal/dispatch"
)

// ErrInvalidSchedule is returned when a payload, fire time, or cron spec is
// rejected at schedule time. Nothing invalid is ever armed.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Repeat advances a one-shot message to its next occurrence after it fires.
type Repeat string

const (
	RepeatNone    Repeat = ""
	RepeatDaily   Repeat = "daily"
	RepeatWeekly  Repeat = "weekly"
	RepeatMonthly Repeat = "monthly"
)

// ParseRepeat maps a config string onto a Repeat.
func ParseRepeat(s string) (Repeat, error) {
	switch Repeat(s) {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly:
		return Repeat(s), nil
	case "none":
		return RepeatNone, nil
	}
	return RepeatNone, errors.New("unknown repeat: " + s)
}

// State is the lifecycle of a one-shot message.
//
// Pending -> Armed when a timer is registered; a fire moves Armed to
// Dispatched (or re-arms when repeating); Cancel moves any non-Dispatched
// message to Cancelled. Timer callbacks verify state and version under the
// table lock, so a cancelled message is never enqueued.
type State string

const (
	StatePending    State = "pending"
	StateArmed      State = "armed"
	StateDispatched State = "dispatched"
	StateCancelled  State = "cancelled"
)

// Enqueuer is the hand-off into the dispatch queue. Satisfied by
// *dispatch.Service.
type Enqueuer interface {
	Enqueue(payload string, origin dispatch.Origin) (string, error)
}

type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"
}

// MessageInfo describes a live one-shot schedule in snapshots.
type MessageInfo struct {
	ID      string    `json:"id"`
	FireAt  time.Time `json:"fire_at"`
	Repeat  Repeat    `json:"repeat,omitempty"`
	State   State     `json:"state"`
	Preview string    `json:"preview"`
}

// CronInfo describes a recurring schedule in snapshots.
type CronInfo struct {
	ID   string    `json:"id"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
}

type Snapshot struct {
	Timezone string        `json:"timezone"`
	Once     []MessageInfo `json:"once"`
	Cron     []CronInfo    `json:"cron"`
}

// ArmEvent is the bus payload when a schedule is registered.
type ArmEvent struct {
	ID     string    `json:"id"`
	FireAt time.Time `json:"fire_at,omitempty"`
	Spec   string    `json:"spec,omitempty"`
	Repeat Repeat    `json:"repeat,omitempty"`
}

// FireEvent is the bus payload when a schedule hands off to the queue.
type FireEvent struct {
	ID   string    `json:"id"`
	Next time.Time `json:"next,omitempty"`
}
