package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Vaxity1/Aether/internal/dispatch"
	"github.com/Vaxity1/Aether/internal/eventbus"
	logx "github.com/Vaxity1/Aether/pkg/logx"
)

// ScheduleCron registers payload against a cron spec. The spec is validated
// up front; nothing invalid is ever registered. Supports 5-field and 6-field
// (with seconds) specs plus descriptors like @hourly and @every.
func (s *Service) ScheduleCron(spec, payload string) (string, error) {
	if strings.TrimSpace(payload) == "" {
		return "", fmt.Errorf("%w: payload is empty", ErrInvalidSchedule)
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", fmt.Errorf("%w: cron spec required", ErrInvalidSchedule)
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("%w: cron %q: %v", ErrInvalidSchedule, spec, err)
	}

	s.mu.Lock()
	id := s.newID("cron", time.Now())
	s.crons = append(s.crons, cronDef{id: id, spec: spec, payload: payload})
	var err error
	if s.c != nil {
		err = s.addCronLocked(&s.crons[len(s.crons)-1])
		if err != nil {
			s.crons = s.crons[:len(s.crons)-1]
		}
	}
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("cron register %q: %w", spec, err)
	}

	s.publish(eventbus.TypeScheduleArmed, ArmEvent{ID: id, Spec: spec})
	s.log.Info("cron schedule registered",
		logx.String("id", id),
		logx.String("spec", spec),
	)
	return id, nil
}

// RemoveCron drops the definition with id and unregisters its cron entry.
func (s *Service) RemoveCron(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.crons {
		if s.crons[i].id != id {
			continue
		}
		if s.c != nil && s.crons[i].entryID != 0 {
			s.c.Remove(s.crons[i].entryID)
		}
		s.crons = append(s.crons[:i], s.crons[i+1:]...)
		s.log.Info("cron schedule removed", logx.String("id", id))
		return true
	}
	return false
}

// addCronLocked registers d with the running cron. Call with s.mu held and
// s.c non-nil.
func (s *Service) addCronLocked(d *cronDef) error {
	id, payload := d.id, d.payload
	job := cron.FuncJob(func() {
		if _, err := s.q.Enqueue(payload, dispatch.OriginCron); err != nil {
			s.reportEnqueueError(id, err)
			return
		}
		s.publish(eventbus.TypeScheduleFired, FireEvent{ID: id})
	})
	eid, err := s.c.AddJob(d.spec, job)
	if err == nil {
		d.entryID = eid
	}
	return err
}

// restartLocked tears the cron runner down and rebuilds it with the current
// timezone. Call with s.mu held; one-shot timers are unaffected, they fire
// at an absolute instant.
func (s *Service) restartLocked() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()

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
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()), logx.Int("cron", len(s.crons)))
}
