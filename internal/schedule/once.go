package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/Vaxity1/Aether/internal/dispatch"
	"github.com/Vaxity1/Aether/internal/eventbus"
	logx "github.com/Vaxity1/Aether/pkg/logx"
)

// Schedule registers payload to fire at fireAt, optionally repeating. A
// fireAt in the past is moved forward to the next occurrence of the same
// time of day, so stale definitions never fire the moment they are loaded.
func (s *Service) Schedule(payload string, fireAt time.Time, repeat Repeat) (string, error) {
	if strings.TrimSpace(payload) == "" {
		return "", fmt.Errorf("%w: payload is empty", ErrInvalidSchedule)
	}
	if fireAt.IsZero() {
		return "", fmt.Errorf("%w: fire time required", ErrInvalidSchedule)
	}
	switch repeat {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly:
	default:
		return "", fmt.Errorf("%w: unknown repeat %q", ErrInvalidSchedule, repeat)
	}

	loc := s.location()
	now := time.Now().In(loc)
	fireAt, moved := normalizeFireAt(fireAt.In(loc), now)

	id := s.newID("once", now)
	m := &message{
		id:      id,
		payload: payload,
		fireAt:  fireAt,
		repeat:  repeat,
		state:   StatePending,
		ver:     1,
	}

	s.tmu.Lock()
	s.msgs[id] = m
	s.armLocked(m)
	s.tmu.Unlock()

	if moved {
		s.log.Debug("fire time already passed; moved forward",
			logx.String("id", id),
			logx.Time("fire_at", fireAt),
		)
	}
	s.publish(eventbus.TypeScheduleArmed, ArmEvent{ID: id, FireAt: fireAt, Repeat: repeat})

	fields := []logx.Field{
		logx.String("id", id),
		logx.Time("fire_at", fireAt),
	}
	if repeat != RepeatNone {
		fields = append(fields, logx.String("repeat", string(repeat)))
	}
	s.log.Info("message scheduled", fields...)
	return id, nil
}

// Cancel stops the timer for id and removes the record. Returns false when
// no such message exists. Once Cancel returns, the message cannot reach the
// dispatch queue anymore.
func (s *Service) Cancel(id string) bool {
	s.tmu.Lock()
	m := s.msgs[id]
	if m == nil {
		s.tmu.Unlock()
		return false
	}
	if m.timer != nil {
		_ = m.timer.Stop()
		m.timer = nil
	}
	m.state = StateCancelled
	m.ver++
	delete(s.msgs, id)
	s.tmu.Unlock()

	s.log.Info("schedule cancelled", logx.String("id", id))
	return true
}

// CancelAll drops every one-shot and every cron definition. Used when the
// dispatch queue shuts down for good. Returns how many were dropped.
func (s *Service) CancelAll() int {
	s.tmu.Lock()
	n := len(s.msgs)
	for id, m := range s.msgs {
		if m.timer != nil {
			_ = m.timer.Stop()
			m.timer = nil
		}
		m.state = StateCancelled
		m.ver++
		delete(s.msgs, id)
	}
	s.tmu.Unlock()

	s.mu.Lock()
	nc := len(s.crons)
	if s.c != nil {
		for i := range s.crons {
			if s.crons[i].entryID != 0 {
				s.c.Remove(s.crons[i].entryID)
			}
		}
	}
	s.crons = nil
	s.mu.Unlock()

	if n+nc > 0 {
		s.log.Info("all schedules cancelled", logx.Int("once", n), logx.Int("cron", nc))
	}
	return n + nc
}

// armLocked registers the timer for m under tmu. The callback carries the
// version it was armed with; anything that invalidates the record bumps the
// version first.
func (s *Service) armLocked(m *message) {
	delay := time.Until(m.fireAt)
	if delay < 0 {
		delay = 0
	}
	id, ver := m.id, m.ver
	m.timer = time.AfterFunc(delay, func() { s.fire(id, ver) })
	m.state = StateArmed
}

// fire runs in the timer goroutine. The enqueue happens under tmu, in the
// same critical section as the state check, so a Cancel that has already
// returned can never be followed by this message appearing in the queue.
func (s *Service) fire(id string, ver uint64) {
	s.tmu.Lock()
	m := s.msgs[id]
	if m == nil || m.ver != ver || m.state != StateArmed {
		// Stale callback; the record was cancelled, re-armed or rebuilt.
		s.tmu.Unlock()
		return
	}

	_, err := s.q.Enqueue(m.payload, dispatch.OriginScheduled)

	var next time.Time
	if m.repeat == RepeatNone {
		m.state = StateDispatched
		m.timer = nil
		delete(s.msgs, id)
	} else {
		next = nextOccurrence(m.fireAt, m.repeat, time.Now())
		m.fireAt = next
		m.ver++
		s.armLocked(m)
	}
	s.tmu.Unlock()

	if err != nil {
		s.reportEnqueueError(id, err)
	}
	s.publish(eventbus.TypeScheduleFired, FireEvent{ID: id, Next: next})

	if next.IsZero() {
		s.log.Debug("schedule fired", logx.String("id", id))
	} else {
		s.log.Debug("schedule fired", logx.String("id", id), logx.Time("next", next))
	}
}

// rebuildTimersLocked re-arms every one-shot after Start. Held under s.mu;
// takes tmu itself. Fire times missed while stopped get a zero delay, so
// they fire immediately rather than silently slipping a day.
func (s *Service) rebuildTimersLocked() int {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	for _, m := range s.msgs {
		if m.timer != nil {
			_ = m.timer.Stop()
			m.timer = nil
		}
		m.ver++
		s.armLocked(m)
	}
	return len(s.msgs)
}

// normalizeFireAt pushes a past fire time forward one day at a time until it
// is in the future, keeping the wall-clock time of day.
func normalizeFireAt(t, now time.Time) (time.Time, bool) {
	if t.After(now) {
		return t, false
	}
	for !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, true
}

// nextOccurrence advances a repeating fire time past now. Always moves at
// least one period, then keeps going if the result is still behind (for
// example after the host slept through several periods).
func nextOccurrence(t time.Time, rep Repeat, now time.Time) time.Time {
	if rep == RepeatNone {
		return t
	}
	next := advancePeriod(t, rep)
	for !next.After(now) {
		next = advancePeriod(next, rep)
	}
	return next
}

func advancePeriod(t time.Time, rep Repeat) time.Time {
	switch rep {
	case RepeatDaily:
		return t.AddDate(0, 0, 1)
	case RepeatWeekly:
		return t.AddDate(0, 0, 7)
	case RepeatMonthly:
		return t.AddDate(0, 1, 0)
	}
	return t
}
