package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Vaxity1/Aether/internal/eventbus"
	logx "github.com/Vaxity1/Aether/pkg/logx"
)

// message is one scheduled payload. Timer callbacks carry the version they
// were armed with; a mismatch means the record was cancelled or re-armed and
// the callback is stale.
type message struct {
	id      string
	payload string
	fireAt  time.Time
	repeat  Repeat
	state   State
	ver     uint64
	timer   *time.Timer
}

type cronDef struct {
	id      string
	spec    string
	payload string
	entryID cron.EntryID
}

// Service arms one timer per scheduled message and a shared cron runner for
// recurring specs. Both tracks hand off to the dispatch queue; nothing is
// transmitted from timer goroutines.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus
	q   Enqueuer

	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	crons  []cronDef

	// tmu guards the one-shot table. Fire callbacks enqueue while holding
	// it, so Cancel returning guarantees the message never reaches the
	// queue.
	tmu  sync.Mutex
	msgs map[string]*message

	idSeq uint64

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

func New(cfg Config, q Enqueuer, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		bus: bus,
		q:   q,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		msgs:        map[string]*message{},
		lastEnqWarn: map[string]time.Time{},
	}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c == nil {
		return
	}
	if oldTZ != newTZ {
		// Restart cron with the new location and re-register definitions.
		s.restartLocked()
	}
}

// Start begins cron triggering and arms timers for pending one-shots.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	for i := range s.crons {
		if err := s.addCronLocked(&s.crons[i]); err != nil {
			s.log.Error("cron register failed",
				logx.String("id", s.crons[i].id),
				logx.String("spec", s.crons[i].spec),
				logx.Any("err", err),
			)
		}
	}
	s.c.Start()

	armed := s.rebuildTimersLocked()
	s.log.Info("scheduler started",
		logx.String("tz", loc.String()),
		logx.Int("cron", len(s.crons)),
		logx.Int("once", armed),
	)
}

// Stop halts cron triggering and disarms one-shot timers. Definitions are
// kept so the next Start resumes them.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}

	s.tmu.Lock()
	for _, m := range s.msgs {
		if m.timer != nil {
			_ = m.timer.Stop()
			m.timer = nil
		}
		if m.state == StateArmed {
			m.state = StatePending
		}
		m.ver++
	}
	s.tmu.Unlock()

	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	tz := s.cfg.Timezone
	loc := s.loc
	c := s.c
	defs := make([]cronDef, len(s.crons))
	copy(defs, s.crons)
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	if tz == "" {
		tz = loc.String()
	}

	snap := Snapshot{Timezone: tz}
	for _, d := range defs {
		ci := CronInfo{ID: d.id, Spec: d.spec}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			ci.Next = e.Next
			ci.Prev = e.Prev
		}
		snap.Cron = append(snap.Cron, ci)
	}

	s.tmu.Lock()
	for _, m := range s.msgs {
		snap.Once = append(snap.Once, MessageInfo{
			ID:      m.id,
			FireAt:  m.fireAt,
			Repeat:  m.repeat,
			State:   m.state,
			Preview: preview(m.payload),
		})
	}
	s.tmu.Unlock()

	sortMessageInfo(snap.Once)
	return snap
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Any("err", err))
		return time.Local
	}
	return loc
}

func (s *Service) location() *time.Location {
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	if loc == nil {
		return time.Local
	}
	return loc
}

func (s *Service) newID(prefix string, now time.Time) string {
	seq := atomic.AddUint64(&s.idSeq, 1)
	return fmt.Sprintf("%s-%x-%x", prefix, now.UnixNano(), seq)
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(id string, err error) {
	if err == nil {
		return
	}
	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[id]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[id] = now
	s.enqMu.Unlock()

	s.log.Warn("schedule failed to enqueue", logx.String("id", id), logx.Any("err", err))
}

func preview(payload string) string {
	const max = 32
	r := []rune(payload)
	if len(r) <= max {
		return payload
	}
	return string(r[:max]) + "..."
}

func sortMessageInfo(ms []MessageInfo) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].FireAt.Before(ms[j].FireAt) })
}
