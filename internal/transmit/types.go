// Package transmit delivers one message to the target window as synthetic
// keystrokes, with bounded retry.
//
// The package owns the retry loop, per-character pacing, and the optional
// typo simulation; the actual OS input and window activation are behind the
// FocusProvider and Keystroker collaborator interfaces.
package transmit

import "time"

// FocusProvider brings the target application window to the foreground.
type FocusProvider interface {
	Focus() bool
}

// Keystroker is the only boundary that touches the OS input layer.
type Keystroker interface {
	TypeChar(r rune) error
	Backspace() error
	Submit() error
}

// Policy controls a single Send call. Zero structural fields fall back to
// defaults; MistakeRate zero means the typo simulation is off.
type Policy struct {
	// MaxAttempts bounds the retry loop. Default 3.
	MaxAttempts int

	// CharDelay paces each character in fixed mode. Default 10ms.
	CharDelay time.Duration

	// RandomDelay switches pacing to a uniform draw from
	// [MinCharDelay, MaxCharDelay]. Defaults 10ms / 50ms.
	RandomDelay  bool
	MinCharDelay time.Duration
	MaxCharDelay time.Duration

	// MistakeRate is the per-character probability of typing an adjacent
	// wrong key, pausing, and correcting it. Clamped to [0, 1].
	MistakeRate float64

	// FocusSettle is the pause after a successful focus before typing
	// starts. Default 500ms.
	FocusSettle time.Duration

	// AttemptPause is the fixed pause after a failed attempt. Default 1s.
	AttemptPause time.Duration

	// SendTimeout bounds the total wall clock of one Send across all
	// attempts. Default 2m.
	SendTimeout time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.CharDelay <= 0 {
		p.CharDelay = 10 * time.Millisecond
	}
	if p.MinCharDelay <= 0 {
		p.MinCharDelay = 10 * time.Millisecond
	}
	if p.MaxCharDelay < p.MinCharDelay {
		p.MaxCharDelay = 50 * time.Millisecond
		if p.MaxCharDelay < p.MinCharDelay {
			p.MaxCharDelay = p.MinCharDelay
		}
	}
	if p.MistakeRate < 0 {
		p.MistakeRate = 0
	}
	if p.MistakeRate > 1 {
		p.MistakeRate = 1
	}
	if p.FocusSettle <= 0 {
		p.FocusSettle = 500 * time.Millisecond
	}
	if p.AttemptPause <= 0 {
		p.AttemptPause = time.Second
	}
	if p.SendTimeout <= 0 {
		p.SendTimeout = 2 * time.Minute
	}
	return p
}

// Result is the outcome of one Send call.
type Result struct {
	OK       bool
	Attempts int
	Err      error
}
