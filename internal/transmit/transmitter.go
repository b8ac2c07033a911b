package transmit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	logx "github.com/Vaxity1/Aether/pkg/logx"
)

// Transmitter types one message at a time through the collaborator pair.
// The dispatch loop is the intended sole caller; concurrent Sends are safe
// but would interleave keystrokes in the target window.
type Transmitter struct {
	focus FocusProvider
	keys  Keystroker
	log   logx.Logger

	rmu sync.Mutex
	rng *rand.Rand
}

func New(focus FocusProvider, keys Keystroker, log logx.Logger) *Transmitter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Transmitter{
		focus: focus,
		keys:  keys,
		log:   log,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Send transmits payload with bounded retry.
//
// Cancellation is checked before each new attempt only; an attempt already
// in flight runs to completion. The whole call is bounded by
// Policy.SendTimeout, so a wedged collaborator surfaces as a final failure
// rather than a hang.
func (t *Transmitter) Send(ctx context.Context, payload string, pol Policy) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	pol = pol.withDefaults()
	deadline := time.Now().Add(pol.SendTimeout)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= pol.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		if time.Now().After(deadline) {
			if lastErr == nil {
				lastErr = ErrSendTimeout
			}
			break
		}

		attempts = attempt
		start := time.Now()
		err := t.attempt(payload, pol, deadline)
		if err == nil {
			t.log.Debug("message transmitted",
				logx.Int("attempt", attempt),
				logx.Int("chars", utf8.RuneCountInString(payload)),
				logx.Duration("took", time.Since(start)),
			)
			return Result{OK: true, Attempts: attempts}
		}
		lastErr = err
		t.log.Warn("send attempt failed",
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", pol.MaxAttempts),
			logx.String("kind", ErrKind(err)),
			logx.Err(err),
		)
		if attempt < pol.MaxAttempts {
			if !t.attemptPause(ctx, deadline, pol.AttemptPause) {
				break
			}
		}
	}
	return Result{Attempts: attempts, Err: lastErr}
}

func (t *Transmitter) attempt(payload string, pol Policy, deadline time.Time) error {
	if t.keys == nil {
		return fmt.Errorf("%w: keystroker not configured", ErrTransmission)
	}
	if t.focus != nil && !t.focus.Focus() {
		return fmt.Errorf("%w: target window not activatable", ErrFocus)
	}
	boundedSleep(deadline, pol.FocusSettle)

	typed := 0
	for _, r := range payload {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %d chars", ErrSendTimeout, typed)
		}
		if pol.MistakeRate > 0 && t.roll() < pol.MistakeRate {
			if err := t.typeMistake(r, deadline); err != nil {
				return classify(err)
			}
		}
		if err := t.keys.TypeChar(r); err != nil {
			return classify(err)
		}
		typed++
		boundedSleep(deadline, t.charDelay(pol, r))
	}
	if time.Now().After(deadline) {
		return fmt.Errorf("%w before submit", ErrSendTimeout)
	}
	if err := t.keys.Submit(); err != nil {
		return classify(err)
	}
	return nil
}

// typeMistake types an adjacent wrong key, pauses, and corrects it.
func (t *Transmitter) typeMistake(r rune, deadline time.Time) error {
	near, ok := nearbyKeys[unicode.ToLower(r)]
	if !ok || len(near) == 0 {
		return nil
	}
	wrong := near[t.intn(len(near))]
	if err := t.keys.TypeChar(wrong); err != nil {
		return err
	}
	boundedSleep(deadline, t.durBetween(60*time.Millisecond, 100*time.Millisecond))
	if err := t.keys.Backspace(); err != nil {
		return err
	}
	boundedSleep(deadline, t.durBetween(40*time.Millisecond, 60*time.Millisecond))
	return nil
}

func (t *Transmitter) charDelay(pol Policy, r rune) time.Duration {
	if !pol.RandomDelay {
		return pol.CharDelay
	}
	d := t.durBetween(pol.MinCharDelay, pol.MaxCharDelay)
	// Pacing stretches slightly at word and line boundaries.
	switch r {
	case ' ':
		d += t.durBetween(0, pol.MaxCharDelay/2)
	case '\n':
		d += t.durBetween(pol.MinCharDelay, pol.MaxCharDelay)
	}
	return d
}

// attemptPause waits out the inter-attempt pause. Returns false when the
// caller should stop retrying (cancellation or deadline).
func (t *Transmitter) attemptPause(ctx context.Context, deadline time.Time, d time.Duration) bool {
	if remain := time.Until(deadline); remain < d {
		d = remain
	}
	if d <= 0 {
		return false
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-tmr.C:
		return true
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrThrottled) || errors.Is(err, ErrFocus) || errors.Is(err, ErrSendTimeout) || errors.Is(err, ErrTransmission) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransmission, err)
}

func boundedSleep(deadline time.Time, d time.Duration) {
	if d <= 0 {
		return
	}
	if remain := time.Until(deadline); remain < d {
		d = remain
	}
	if d > 0 {
		time.Sleep(d)
	}
}

func (t *Transmitter) roll() float64 {
	t.rmu.Lock()
	defer t.rmu.Unlock()
	return t.rng.Float64()
}

func (t *Transmitter) intn(n int) int {
	t.rmu.Lock()
	defer t.rmu.Unlock()
	return t.rng.Intn(n)
}

func (t *Transmitter) durBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	t.rmu.Lock()
	defer t.rmu.Unlock()
	return lo + time.Duration(t.rng.Int63n(int64(hi-lo)+1))
}
