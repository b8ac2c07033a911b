package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Vaxity1/Aether/internal/eventbus"
	"github.com/Vaxity1/Aether/internal/metrics"
	"github.com/Vaxity1/Aether/internal/ratelimit"
	"github.com/Vaxity1/Aether/internal/transmit"
	logx "github.com/Vaxity1/Aether/pkg/logx"
)

type fakeSender struct {
	mu     sync.Mutex
	calls  []string
	errFor map[string]error
}

func (f *fakeSender) Send(ctx context.Context, payload string, pol transmit.Policy) transmit.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, payload)
	if err := f.errFor[payload]; err != nil {
		return transmit.Result{Attempts: 1, Err: err}
	}
	return transmit.Result{OK: true, Attempts: 1}
}

func (f *fakeSender) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func fastLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		BurstThreshold: 100,
		BurstWindow:    time.Second,
		MinInterval:    time.Millisecond,
		StartBackoff:   2 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
	})
}

func newTestQueue(t *testing.T, sender Sender) (*Service, *metrics.Metrics, eventbus.Bus) {
	t.Helper()
	met := metrics.New()
	bus := eventbus.New()
	s := New(Config{MaxPending: 16}, sender, fastLimiter(), logx.Nop(), bus, nil, met)
	return s, met, bus
}

func startQueue(t *testing.T, s *Service) {
	t.Helper()
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDispatchFIFO(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s, _, _ := newTestQueue(t, sender)
	startQueue(t, s)

	want := []string{"one", "two", "three", "four"}
	var ids []string
	for _, p := range want {
		id, err := s.Enqueue(p, OriginImmediate)
		if err != nil {
			t.Fatalf("Enqueue(%q): %v", p, err)
		}
		ids = append(ids, id)
	}

	waitFor(t, 5*time.Second, "all messages dispatched", func() bool {
		return len(sender.seen()) == len(want)
	})
	got := sender.seen()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatch order %v, want %v", got, want)
		}
	}
	for i := 1; i < len(ids); i++ {
		if !(ids[i-1] < ids[i]) {
			t.Fatalf("ids not monotonic: %s then %s", ids[i-1], ids[i])
		}
	}
}

func TestPauseHoldsAndResumeFlushesInOrder(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s, _, _ := newTestQueue(t, sender)
	startQueue(t, s)

	s.Pause()
	if st := s.State(); st != StatePaused {
		t.Fatalf("state = %s, want paused", st)
	}
	for _, p := range []string{"a", "b", "c"} {
		if _, err := s.Enqueue(p, OriginImmediate); err != nil {
			t.Fatalf("Enqueue(%q): %v", p, err)
		}
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(sender.seen()); n != 0 {
		t.Fatalf("%d messages left a paused queue", n)
	}
	if n := s.Len(); n != 3 {
		t.Fatalf("Len = %d, want 3 held", n)
	}

	// Pausing a paused queue changes nothing.
	s.Pause()
	if st := s.State(); st != StatePaused {
		t.Fatalf("state = %s after double pause", st)
	}

	s.Resume()
	waitFor(t, 5*time.Second, "held messages to flush", func() bool {
		return len(sender.seen()) == 3
	})
	got := sender.seen()
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("flush order %v, want [a b c]", got)
	}
}

func TestCancelIsTerminal(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s, _, _ := newTestQueue(t, sender)

	var hookCalls int
	var hookMu sync.Mutex
	s.SetCancelHook(func() {
		hookMu.Lock()
		hookCalls++
		hookMu.Unlock()
	})
	startQueue(t, s)

	s.Pause()
	for i := 0; i < 3; i++ {
		if _, err := s.Enqueue(fmt.Sprintf("msg-%d", i), OriginScheduled); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	s.Cancel()
	if st := s.State(); st != StateCancelled {
		t.Fatalf("state = %s, want cancelled", st)
	}
	if n := s.Len(); n != 0 {
		t.Fatalf("Len = %d after cancel, want pending cleared", n)
	}
	if _, err := s.Enqueue("late", OriginImmediate); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Enqueue after cancel err = %v, want ErrQueueClosed", err)
	}

	// No transition leaves Cancelled.
	s.Resume()
	s.Pause()
	if st := s.State(); st != StateCancelled {
		t.Fatalf("state = %s, cancelled must be terminal", st)
	}

	s.Cancel()
	hookMu.Lock()
	calls := hookCalls
	hookMu.Unlock()
	if calls != 1 {
		t.Fatalf("cancel hook ran %d times, want 1", calls)
	}

	if n := len(sender.seen()); n != 0 {
		t.Fatalf("%d messages dispatched from a cancelled queue", n)
	}
}

func TestFailureDoesNotHaltQueue(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{errFor: map[string]error{
		"bad": fmt.Errorf("%w: device gone", transmit.ErrTransmission),
	}}
	s, met, _ := newTestQueue(t, sender)
	startQueue(t, s)

	for _, p := range []string{"bad", "good"} {
		if _, err := s.Enqueue(p, OriginImmediate); err != nil {
			t.Fatalf("Enqueue(%q): %v", p, err)
		}
	}

	waitFor(t, 5*time.Second, "both messages attempted", func() bool {
		return len(sender.seen()) == 2
	})
	if st := s.State(); st != StateRunning {
		t.Fatalf("state = %s after a failure, want running", st)
	}

	ms := met.Snapshot()
	if ms.Sent != 1 || ms.Errors != 1 {
		t.Fatalf("metrics sent=%d errors=%d, want 1/1", ms.Sent, ms.Errors)
	}
	if ms.ErrorsByKind["transmission"] != 1 {
		t.Fatalf("errors by kind = %v, want transmission:1", ms.ErrorsByKind)
	}
}

func TestThrottleFailureFeedsLimiter(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{errFor: map[string]error{
		"slow": fmt.Errorf("%w: upstream 429", transmit.ErrThrottled),
	}}
	s, met, _ := newTestQueue(t, sender)
	startQueue(t, s)

	if _, err := s.Enqueue("slow", OriginImmediate); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, 5*time.Second, "throttled dispatch recorded", func() bool {
		return met.Snapshot().RateLimitHits == 1
	})

	snap := s.Snapshot()
	if snap.Limiter.RateLimitHits != 1 {
		t.Fatalf("limiter hits = %d, want 1", snap.Limiter.RateLimitHits)
	}
	if snap.Last == nil || snap.Last.OK {
		t.Fatalf("last outcome = %+v, want recorded failure", snap.Last)
	}
}

func TestEnqueueBounds(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxPending: 2}, &fakeSender{}, fastLimiter(), logx.Nop(), nil, nil, nil)

	if _, err := s.Enqueue("", OriginImmediate); err == nil {
		t.Fatal("Enqueue accepted empty payload")
	}
	if _, err := s.Enqueue("   ", OriginImmediate); err == nil {
		t.Fatal("Enqueue accepted blank payload")
	}

	for i := 0; i < 2; i++ {
		if _, err := s.Enqueue(fmt.Sprintf("m%d", i), OriginImmediate); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	if _, err := s.Enqueue("overflow", OriginImmediate); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestStopRetainsPending(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s, _, _ := newTestQueue(t, sender)

	s.Start(context.Background())
	s.Pause()
	for _, p := range []string{"x", "y"} {
		if _, err := s.Enqueue(p, OriginImmediate); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	s.Stop(ctx)
	cancel()
	if n := s.Len(); n != 2 {
		t.Fatalf("Len = %d after stop, want 2 retained", n)
	}

	startQueue(t, s)
	s.Resume()
	waitFor(t, 5*time.Second, "retained messages to dispatch", func() bool {
		return len(sender.seen()) == 2
	})
}

func TestDispatchPublishesBusEvents(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s, _, bus := newTestQueue(t, sender)
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	startQueue(t, s)

	id, err := s.Enqueue("hello", OriginImmediate)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type != eventbus.TypeDispatchSent {
				continue
			}
			out, ok := ev.Data.(Outcome)
			if !ok {
				t.Fatalf("event data %T, want Outcome", ev.Data)
			}
			if out.ID != id || !out.OK {
				t.Fatalf("outcome = %+v, want OK for %s", out, id)
			}
			return
		case <-deadline:
			t.Fatal("no dispatch.sent event observed")
		}
	}
}

func TestSnapshotWindowProbe(t *testing.T) {
	t.Parallel()

	s := New(Config{}, &fakeSender{}, fastLimiter(), logx.Nop(), nil, nil, nil)

	if snap := s.Snapshot(); snap.Window != nil {
		t.Fatalf("window = %+v without a probe, want nil", snap.Window)
	}

	s.SetWindowProbe(func() WindowStatus {
		return WindowStatus{Target: "Notepad", Present: true, Active: "Untitled - Notepad"}
	})
	snap := s.Snapshot()
	if snap.Window == nil || !snap.Window.Present || snap.Window.Target != "Notepad" {
		t.Fatalf("window = %+v, want present Notepad", snap.Window)
	}
}
