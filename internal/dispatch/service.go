package dispatch

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Vaxity1/Aether/internal/eventbus"
	"github.com/Vaxity1/Aether/internal/journal"
	"github.com/Vaxity1/Aether/internal/metrics"
	"github.com/Vaxity1/Aether/internal/ratelimit"
	rtsup "github.com/Vaxity1/Aether/internal/runtime/supervisor"
	"github.com/Vaxity1/Aether/internal/transmit"
	logx "github.com/Vaxity1/Aether/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

// Sender is the outbound edge the queue drives. Satisfied by
// *transmit.Transmitter.
type Sender interface {
	Send(ctx context.Context, payload string, pol transmit.Policy) transmit.Result
}

// Service owns the pending FIFO, the queue state machine, and the single
// dispatch loop goroutine. The rate limiter is consulted and mutated only
// from that loop, so its signals stay serialized.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	store journal.Store
	met   *metrics.Metrics

	sender  Sender
	limiter *ratelimit.Limiter

	cfg Config

	state   State
	pending []Message

	// wake nudges the loop out of its parked states (empty, paused,
	// limiter sleep). Buffered so producers never block.
	wake chan struct{}

	// onCancel aborts armed schedule timers when the queue is torn down.
	onCancel func()

	// probeWindow resolves the target window's presence for status views.
	probeWindow func() WindowStatus

	sup      *rtsup.Supervisor
	stopCh   chan struct{}
	stopDone chan struct{} // non-nil while stopping

	lmu  sync.Mutex
	last *Outcome

	lastQueueFullWarnAt int64
}

func New(cfg Config, sender Sender, limiter *ratelimit.Limiter, log logx.Logger, bus eventbus.Bus, store journal.Store, met *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		sender:  sender,
		limiter: limiter,
		log:     log,
		bus:     bus,
		store:   store,
		met:     met,
		state:   StateRunning,
		wake:    make(chan struct{}, 1),
	}
}

// Supervisor returns the queue's internal supervisor (nil if not started).
// This is used for operational visibility.
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup
}

// SetCancelHook registers fn to run once when Cancel tears the queue down.
// Must be called before Start.
func (s *Service) SetCancelHook(fn func()) {
	s.mu.Lock()
	s.onCancel = fn
	s.mu.Unlock()
}

// SetWindowProbe registers fn to resolve the delivery window's presence for
// Snapshot. Must be called before Start. The probe runs outside the queue
// lock; it may touch the desktop and take a moment.
func (s *Service) SetWindowProbe(fn func() WindowStatus) {
	s.mu.Lock()
	s.probeWindow = fn
	s.mu.Unlock()
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
	s.nudge()
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.state == StateCancelled {
		s.mu.Unlock()
		s.log.Warn("dispatch start ignored: queue cancelled")
		return
	}

	// Start is idempotent.
	if s.stopCh != nil {
		// If stopping, wait for it to finish before restarting.
		done := s.stopDone
		s.mu.Unlock()
		if done != nil {
			select {
			case <-done:
			case <-ctx.Done():
				return
			}
		} else {
			return
		}
		s.mu.Lock()
		// Re-check after wait.
		if s.stopCh != nil {
			s.mu.Unlock()
			return
		}
	}

	s.stopCh = make(chan struct{})
	s.stopDone = nil
	stopCh := s.stopCh

	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "dispatch"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	pending := len(s.pending)
	s.mu.Unlock()

	// Auto-restart the loop if it panics; one message's failure must never
	// take the queue down.
	sup.GoRestart("dispatch.loop", func(c context.Context) error {
		s.loop(c, stopCh)
		select {
		case <-stopCh:
			return context.Canceled
		default:
		}
		if c.Err() != nil {
			return c.Err()
		}
		if s.State() == StateCancelled {
			return context.Canceled
		}
		return errors.New("dispatch loop exited unexpectedly")
	},
		rtsup.WithPublishFirstError(true),
	)

	s.log.Info("dispatch queue started", logx.Int("pending", pending))
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	// If already stopping, wait.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	close(s.stopCh)
	sup := s.sup
	s.mu.Unlock()

	if sup != nil {
		sup.Cancel()
	}

	go func() {
		// Wait unbounded in background; caller can still time out.
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.stopCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("dispatch queue stopped", logx.Int("pending", s.Len()))
	case <-ctx.Done():
		s.log.Warn("dispatch queue stop timed out", logx.Any("err", ctx.Err()))
	}
}

// Enqueue appends a payload to pending without blocking. Pending survives
// lifecycle stops; only Cancel drops it.
func (s *Service) Enqueue(payload string, origin Origin) (string, error) {
	if strings.TrimSpace(payload) == "" {
		return "", fmt.Errorf("payload is empty")
	}
	if origin == "" {
		origin = OriginImmediate
	}
	now := time.Now()

	s.mu.Lock()
	if s.state == StateCancelled {
		s.mu.Unlock()
		return "", ErrQueueClosed
	}
	if len(s.pending) >= s.cfg.MaxPending {
		s.mu.Unlock()
		s.onQueueFull(now, origin)
		return "", ErrQueueFull
	}
	id, err := newMessageID(now)
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("new message id: %w", err)
	}
	msg := Message{ID: id, Payload: payload, Origin: origin, EnqueuedAt: now}
	s.pending = append(s.pending, msg)
	n := len(s.pending)
	s.mu.Unlock()

	s.nudge()
	s.log.Debug("message enqueued",
		logx.String("id", msg.ID),
		logx.String("origin", string(origin)),
		logx.Int("pending", n),
	)
	return msg.ID, nil
}

// Pause holds pending without dropping it. No-op unless Running.
func (s *Service) Pause() {
	s.transition(StateRunning, StatePaused)
}

// Resume continues dispatching. No-op unless Paused.
func (s *Service) Resume() {
	s.transition(StatePaused, StateRunning)
}

func (s *Service) transition(from, to State) {
	s.mu.Lock()
	if s.state != from {
		cur := s.state
		s.mu.Unlock()
		s.log.Debug("queue transition ignored",
			logx.String("state", string(cur)),
			logx.String("to", string(to)),
		)
		return
	}
	s.state = to
	n := len(s.pending)
	s.mu.Unlock()

	s.nudge()
	s.publishState(to, n)
	s.log.Info("dispatch queue "+string(to), logx.Int("pending", n))
}

// Cancel is terminal: pending is dropped, armed schedule timers are aborted
// best-effort, and the loop exits. An attempt already inside Send completes;
// no new attempt starts after this returns.
func (s *Service) Cancel() {
	s.mu.Lock()
	if s.state == StateCancelled {
		s.mu.Unlock()
		return
	}
	s.state = StateCancelled
	dropped := len(s.pending)
	s.pending = nil
	hook := s.onCancel
	sup := s.sup
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if sup != nil {
		sup.Cancel()
	}
	s.nudge()

	s.publishState(StateCancelled, 0)
	s.log.Info("dispatch queue cancelled", logx.Int("dropped", dropped))
}

func (s *Service) State() State {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	return st
}

func (s *Service) Len() int {
	s.mu.Lock()
	n := len(s.pending)
	s.mu.Unlock()
	return n
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		State:      s.state,
		Pending:    len(s.pending),
		MaxPending: s.cfg.MaxPending,
	}
	lim := s.limiter
	probe := s.probeWindow
	s.mu.Unlock()

	if lim != nil {
		snap.Limiter = lim.Status(time.Now())
	}
	if probe != nil {
		ws := probe()
		snap.Window = &ws
	}
	s.lmu.Lock()
	if s.last != nil {
		out := *s.last
		snap.Last = &out
	}
	s.lmu.Unlock()
	return snap
}

func (s *Service) policy() transmit.Policy {
	s.mu.Lock()
	pol := s.cfg.Policy
	s.mu.Unlock()
	return pol
}

func (s *Service) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) publishState(st State, pending int) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeDispatchState,
		Time: time.Now(),
		Data: StateEvent{State: st, Pending: pending},
	})
}

func (s *Service) onQueueFull(now time.Time, origin Origin) {
	if s.log.IsZero() || !s.shouldWarn(&s.lastQueueFullWarnAt, now) {
		return
	}
	s.log.Warn("message dropped: queue full",
		logx.String("origin", string(origin)),
		logx.Int("pending", s.Len()),
	)
}

func (s *Service) shouldWarn(last *int64, now time.Time) bool {
	prev := atomic.LoadInt64(last)
	n := now.UnixNano()
	if prev != 0 && (n-prev) < int64(warnThrottleEvery) {
		return false
	}
	return atomic.CompareAndSwapInt64(last, prev, n)
}

// monoEntropy is a package-level monotone entropy source shared across all
// newMessageID calls, so IDs minted within the same millisecond still sort
// in arrival order.
var (
	monoMu      sync.Mutex
	monoEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

func newMessageID(now time.Time) (string, error) {
	monoMu.Lock()
	defer monoMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), monoEntropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
