package app

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/Vaxity1/Aether/internal/config"
	"github.com/Vaxity1/Aether/internal/dispatch"
	"github.com/Vaxity1/Aether/internal/driver/desktop"
	"github.com/Vaxity1/Aether/internal/eventbus"
	"github.com/Vaxity1/Aether/internal/journal"
	"github.com/Vaxity1/Aether/internal/metrics"
	"github.com/Vaxity1/Aether/internal/observability/pprof"
	"github.com/Vaxity1/Aether/internal/ratelimit"
	"github.com/Vaxity1/Aether/internal/schedule"
	"github.com/Vaxity1/Aether/internal/transmit"
	logx "github.com/Vaxity1/Aether/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store journal.Store
	met   *metrics.Metrics

	driver  *desktop.Driver
	limiter *ratelimit.Limiter
	queue   *dispatch.Service
	sched   *schedule.Service
	pprof   *pprof.Service

	seedMu    sync.Mutex
	seedOnce  []string
	seedCrons []string
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	// The feed sink republishes log records onto the bus, so any attached
	// presentation layer sees warnings without tailing the log file.
	logSvc, log := logx.New(mapLoggingConfig(cfg), busFeed{bus: bus})
	log = log.With(logx.String("comp", "app"))

	// Journal (optional)
	var store journal.Store
	if jc, enabled, err := mapJournalConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := journal.Open(jc, log.With(logx.String("comp", "journal")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("journal enabled", logx.String("driver", jc.Driver))
	}

	met := metrics.New()

	rlCfg, err := mapRateLimitConfig(cfg)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(rlCfg)

	pol, err := mapTypingPolicy(cfg)
	if err != nil {
		return nil, err
	}

	drv := desktop.New(desktop.Config{
		Title: strings.TrimSpace(cfg.Window.Title),
	}, log.With(logx.String("comp", "desktop")))

	tx := transmit.New(drv, drv, log.With(logx.String("comp", "transmit")))

	queue := dispatch.New(dispatch.Config{
		MaxPending: cfg.Dispatch.MaxPending,
		Policy:     pol,
	}, tx, limiter, log.With(logx.String("comp", "dispatch")), bus, store, met)

	sched := schedule.New(schedule.Config{
		Timezone: cfg.Schedule.Timezone,
	}, queue, log.With(logx.String("comp", "schedule")), bus)

	// Cancel is terminal for scheduled work too, and status views surface
	// whether the target window is actually around to type into.
	queue.SetCancelHook(func() { sched.CancelAll() })
	queue.SetWindowProbe(func() dispatch.WindowStatus {
		info := drv.Probe()
		return dispatch.WindowStatus{Target: info.Target, Present: info.Present, Active: info.Active}
	})

	ppc, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}
	pprofSvc := pprof.New(ppc, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		met:     met,
		driver:  drv,
		limiter: limiter,
		queue:   queue,
		sched:   sched,
		pprof:   pprofSvc,
	}, nil
}

// Queue exposes the dispatch queue for embedding callers (CLIs, UIs).
func (a *App) Queue() *dispatch.Service { return a.queue }

// Scheduler exposes the schedule service for embedding callers.
func (a *App) Scheduler() *schedule.Service { return a.sched }

// Events exposes the in-process event bus.
func (a *App) Events() eventbus.Bus { return a.bus }

// Status is a point-in-time aggregate across the queue, the scheduler, and
// the session counters.
type Status struct {
	Queue    dispatch.Snapshot `json:"queue"`
	Schedule schedule.Snapshot `json:"schedule"`
	Metrics  metrics.Snapshot  `json:"metrics"`
}

func (a *App) Status() Status {
	return Status{
		Queue:    a.queue.Snapshot(),
		Schedule: a.sched.Snapshot(),
		Metrics:  a.met.Snapshot(),
	}
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
			if cfg.Dispatch.MaxPending < 0 {
				return fmt.Errorf("dispatch.max_pending must be >= 0")
			}
			if _, err := mapTypingPolicy(cfg); err != nil {
				return err
			}
			if _, err := mapRateLimitConfig(cfg); err != nil {
				return err
			}

			// timezone validation (reject bad hot-reload)
			if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
				if _, err := time.LoadLocation(tz); err != nil {
					return fmt.Errorf("schedules.timezone: invalid %q: %w", tz, err)
				}
			}
			// Seed entries are shape-checked here; fire time and cron spec
			// syntax are judged by the schedule service when they register.
			for i := range cfg.Schedule.Messages {
				m := &cfg.Schedule.Messages[i]
				if strings.TrimSpace(m.At) == "" {
					return fmt.Errorf("schedules.messages[%d].at is required", i)
				}
				if strings.TrimSpace(m.Payload) == "" {
					return fmt.Errorf("schedules.messages[%d].payload is required", i)
				}
				if _, err := schedule.ParseRepeat(m.Repeat); err != nil {
					return fmt.Errorf("schedules.messages[%d]: %w", i, err)
				}
			}
			for i := range cfg.Schedule.Crons {
				cs := &cfg.Schedule.Crons[i]
				if strings.TrimSpace(cs.Spec) == "" {
					return fmt.Errorf("schedules.crons[%d].spec is required", i)
				}
				if strings.TrimSpace(cs.Payload) == "" {
					return fmt.Errorf("schedules.crons[%d].payload is required", i)
				}
			}

			// pprof validation (safe even when disabled)
			if _, err := mapPprofConfig(cfg); err != nil {
				return err
			}
			// journal validation
			if _, _, err := mapJournalConfig(cfg); err != nil {
				return err
			}
			return nil
		})
	}

	a.queue.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())
	a.seedSchedules(a.cfgm.Get())

	if a.pprof != nil && a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	// Optional: log events for observability/debug (components can also subscribe themselves).
	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					// Feed entries came from the log; writing them back would loop.
					if e.Type == eventbus.TypeLogEntry {
						continue
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		// Track last applied config to generate a safe diff summary for logx.
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				prev := lastApplied
				lastApplied = newCfg

				for _, s := range sections {
					if s == "journal" {
						a.log.Warn("journal config changed; restart required for changes to take effect")
						break
					}
				}

				// apply logging first so later steps log at the new level
				a.logs.Apply(mapLoggingConfig(newCfg))

				if rl, err := mapRateLimitConfig(newCfg); err != nil {
					a.log.Warn("invalid ratelimit config; keeping previous", logx.Any("err", err))
				} else {
					a.limiter.Apply(rl)
				}

				if pol, err := mapTypingPolicy(newCfg); err != nil {
					a.log.Warn("invalid typing config; keeping previous", logx.Any("err", err))
				} else {
					a.queue.Apply(dispatch.Config{
						MaxPending: newCfg.Dispatch.MaxPending,
						Policy:     pol,
					})
				}

				a.driver.Apply(desktop.Config{Title: strings.TrimSpace(newCfg.Window.Title)})

				// Timezone changes restart the cron runner inside Apply.
				a.sched.Apply(schedule.Config{Timezone: newCfg.Schedule.Timezone})
				if prev == nil ||
					!reflect.DeepEqual(prev.Schedule.Messages, newCfg.Schedule.Messages) ||
					!reflect.DeepEqual(prev.Schedule.Crons, newCfg.Schedule.Crons) {
					a.reseedSchedules(newCfg)
				}

				// apply pprof updates (live)
				if a.pprof != nil {
					if ppc, err := mapPprofConfig(newCfg); err != nil {
						a.log.Warn("invalid pprof config; keeping previous", logx.Any("err", err))
					} else {
						a.pprof.Reconfigure(c, ppc)
					}
				}

				if a.bus != nil {
					a.bus.Publish(eventbus.Event{
						Type: eventbus.TypeConfigApplied,
						Time: time.Now(),
						Data: sections,
					})
				}

				// Keep the final log line concise and human-friendly (details are in debug logs).
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.notifyReady()

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notifyStopping()

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", elapsed),
			)
			// Leak logging: observe when/if the step eventually finishes.
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.String("err", err.Error()), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Stop the scheduler before the queue so no new work lands mid-teardown.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("dispatch", 2*time.Second, func(c context.Context) error { a.queue.Stop(c); return nil })
	step("pprof", 1*time.Second, func(c context.Context) error {
		if a.pprof != nil {
			a.pprof.Stop(c)
		}
		return nil
	})
	step("journal", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	// Finally, wait for supervised goroutines (config watch/reload, event log, etc.)
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	if cfg == nil {
		return logx.Config{}
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Feed: logx.FeedConfig{
			Enabled:    cfg.Logging.Feed.Enabled,
			MinLevel:   cfg.Logging.Feed.MinLevel,
			RatePerSec: cfg.Logging.Feed.RatePerSec,
		},
	}
}

// mapTypingPolicy validates and converts the typing section. Zero fields
// defer to the transmit defaults.
func mapTypingPolicy(cfg *config.Config) (transmit.Policy, error) {
	var pol transmit.Policy
	if cfg == nil {
		return pol, nil
	}
	tc := cfg.Typing

	if tc.MaxAttempts < 0 {
		return pol, fmt.Errorf("typing.max_attempts must be >= 0")
	}
	if tc.MistakeRate < 0 || tc.MistakeRate > 1 {
		return pol, fmt.Errorf("typing.mistake_rate must be within [0, 1]")
	}

	charDelay, err := parseDurationField("typing.char_delay", tc.CharDelay)
	if err != nil {
		return pol, err
	}
	minCD, err := parseDurationField("typing.min_char_delay", tc.MinCharDelay)
	if err != nil {
		return pol, err
	}
	maxCD, err := parseDurationField("typing.max_char_delay", tc.MaxCharDelay)
	if err != nil {
		return pol, err
	}
	focusSettle, err := parseDurationField("typing.focus_settle", tc.FocusSettle)
	if err != nil {
		return pol, err
	}
	attemptPause, err := parseDurationField("typing.attempt_pause", tc.AttemptPause)
	if err != nil {
		return pol, err
	}
	sendTimeout, err := parseDurationField("typing.send_timeout", tc.SendTimeout)
	if err != nil {
		return pol, err
	}

	return transmit.Policy{
		MaxAttempts:  tc.MaxAttempts,
		CharDelay:    charDelay,
		RandomDelay:  tc.RandomDelay,
		MinCharDelay: minCD,
		MaxCharDelay: maxCD,
		MistakeRate:  tc.MistakeRate,
		FocusSettle:  focusSettle,
		AttemptPause: attemptPause,
		SendTimeout:  sendTimeout,
	}, nil
}

// mapRateLimitConfig validates and converts the ratelimit section. Zero
// fields defer to the limiter defaults.
func mapRateLimitConfig(cfg *config.Config) (ratelimit.Config, error) {
	var out ratelimit.Config
	if cfg == nil {
		return out, nil
	}
	rc := cfg.RateLimit

	if rc.BurstThreshold < 0 {
		return out, fmt.Errorf("ratelimit.burst_threshold must be >= 0")
	}
	window, err := parseDurationField("ratelimit.burst_window", rc.BurstWindow)
	if err != nil {
		return out, err
	}
	minIv, err := parseDurationField("ratelimit.min_interval", rc.MinInterval)
	if err != nil {
		return out, err
	}
	startBO, err := parseDurationField("ratelimit.start_backoff", rc.StartBackoff)
	if err != nil {
		return out, err
	}
	maxBO, err := parseDurationField("ratelimit.max_backoff", rc.MaxBackoff)
	if err != nil {
		return out, err
	}

	return ratelimit.Config{
		BurstThreshold: rc.BurstThreshold,
		BurstWindow:    window,
		MinInterval:    minIv,
		StartBackoff:   startBO,
		MaxBackoff:     maxBO,
	}, nil
}
