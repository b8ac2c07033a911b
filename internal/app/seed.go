package app

import (
	"github.com/Vaxity1/Aether/internal/config"
	"github.com/Vaxity1/Aether/internal/schedule"
	logx "github.com/Vaxity1/Aether/pkg/logx"
)

// seedSchedules registers the schedules declared in the config file. A bad
// entry is skipped with a warning; it must not keep the rest from arming.
func (a *App) seedSchedules(cfg *config.Config) {
	if cfg == nil {
		return
	}

	var once, crons []string
	for i := range cfg.Schedule.Messages {
		m := &cfg.Schedule.Messages[i]
		rep, err := schedule.ParseRepeat(m.Repeat)
		if err != nil {
			a.log.Warn("config schedule skipped", logx.Int("index", i), logx.Any("err", err))
			continue
		}
		id, err := a.sched.ScheduleAt(m.Payload, m.At, rep)
		if err != nil {
			a.log.Warn("config schedule skipped",
				logx.Int("index", i),
				logx.String("at", m.At),
				logx.Any("err", err),
			)
			continue
		}
		once = append(once, id)
	}
	for i := range cfg.Schedule.Crons {
		cs := &cfg.Schedule.Crons[i]
		id, err := a.sched.ScheduleCron(cs.Spec, cs.Payload)
		if err != nil {
			a.log.Warn("config cron skipped",
				logx.Int("index", i),
				logx.String("spec", cs.Spec),
				logx.Any("err", err),
			)
			continue
		}
		crons = append(crons, id)
	}

	a.seedMu.Lock()
	a.seedOnce = once
	a.seedCrons = crons
	a.seedMu.Unlock()

	if len(once)+len(crons) > 0 {
		a.log.Info("config schedules registered",
			logx.Int("once", len(once)),
			logx.Int("cron", len(crons)),
		)
	}
}

// reseedSchedules replaces config-declared schedules after a reload.
// Schedules added at runtime through the service API are left alone.
func (a *App) reseedSchedules(cfg *config.Config) {
	a.seedMu.Lock()
	once := a.seedOnce
	crons := a.seedCrons
	a.seedOnce = nil
	a.seedCrons = nil
	a.seedMu.Unlock()

	for _, id := range once {
		a.sched.Cancel(id)
	}
	for _, id := range crons {
		a.sched.RemoveCron(id)
	}
	a.seedSchedules(cfg)
}
