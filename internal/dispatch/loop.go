package dispatch

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/Vaxity1/Aether/internal/eventbus"
	"github.com/Vaxity1/Aether/internal/journal"
	"github.com/Vaxity1/Aether/internal/transmit"
	logx "github.com/Vaxity1/Aether/pkg/logx"
)

// loop actions, decided under the service lock in next().
const (
	actExit = iota
	actWait
	actSleep
	actSend
)

func (s *Service) loop(ctx context.Context, stopCh <-chan struct{}) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		msg, act, wait := s.next(time.Now())
		switch act {
		case actExit:
			return
		case actWait:
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-s.wake:
			}
		case actSleep:
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-stopCh:
				t.Stop()
				return
			case <-s.wake:
				t.Stop()
			case <-t.C:
			}
		case actSend:
			s.dispatch(ctx, msg)
		}
	}
}

// next peeks the queue and decides the loop's move. The front message is
// dequeued only once the limiter clears it, so a blocked or paused queue
// loses nothing.
func (s *Service) next(now time.Time) (Message, int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCancelled {
		return Message{}, actExit, 0
	}
	if s.state == StatePaused || len(s.pending) == 0 {
		return Message{}, actWait, 0
	}
	if s.limiter != nil && !s.limiter.CanSend(now) {
		return Message{}, actSleep, s.limiter.RecommendedDelay(now)
	}

	msg := s.pending[0]
	copy(s.pending, s.pending[1:])
	s.pending = s.pending[:len(s.pending)-1]
	return msg, actSend, 0
}

func (s *Service) dispatch(ctx context.Context, msg Message) {
	pol := s.policy()
	start := time.Now()
	res := s.sender.Send(ctx, msg.Payload, pol)
	took := time.Since(start)
	now := time.Now()

	if res.Attempts == 0 && errors.Is(res.Err, context.Canceled) {
		// Shutdown raced the dequeue; nothing was typed, nothing to record.
		s.log.Debug("dispatch aborted before first attempt", logx.String("id", msg.ID))
		return
	}

	throttled := !res.OK && transmit.IsThrottle(res.Err)
	if s.limiter != nil {
		if res.OK {
			s.limiter.RegisterSent(now)
		} else if throttled {
			s.limiter.RegisterLimitHit(now)
		}
	}
	if s.met != nil {
		if res.OK {
			s.met.RecordSent(string(msg.Origin))
		} else {
			s.met.RecordError(transmit.ErrKind(res.Err))
		}
		if throttled {
			s.met.RecordRateLimitHit()
		}
	}

	out := Outcome{
		ID:       msg.ID,
		Origin:   msg.Origin,
		At:       now,
		OK:       res.OK,
		Attempts: res.Attempts,
		Took:     took,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	s.lmu.Lock()
	s.last = &out
	s.lmu.Unlock()

	if s.store != nil {
		e := journal.Entry{
			At:       now,
			ID:       msg.ID,
			Origin:   string(msg.Origin),
			Chars:    utf8.RuneCountInString(msg.Payload),
			Attempts: res.Attempts,
			OK:       res.OK,
			TookMS:   took.Milliseconds(),
		}
		if res.Err != nil {
			e.ErrKind = transmit.ErrKind(res.Err)
			e.Error = res.Err.Error()
		}
		if err := s.store.Append(context.Background(), e); err != nil {
			s.log.Debug("journal append failed", logx.Err(err))
		}
	}

	if s.bus != nil {
		typ := eventbus.TypeDispatchSent
		if !res.OK {
			typ = eventbus.TypeDispatchFailed
		}
		s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: out})
	}

	if res.OK {
		s.log.Info("message dispatched",
			logx.String("id", msg.ID),
			logx.String("origin", string(msg.Origin)),
			logx.Int("attempts", res.Attempts),
			logx.Duration("took", took),
			logx.Int("pending", s.Len()),
		)
		return
	}
	s.log.Warn("message failed permanently",
		logx.String("id", msg.ID),
		logx.String("origin", string(msg.Origin)),
		logx.Int("attempts", res.Attempts),
		logx.String("kind", transmit.ErrKind(res.Err)),
		logx.Err(res.Err),
	)
}
