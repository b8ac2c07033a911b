package config

import (
	"reflect"
	"sort"
	"strings"

	logx "github.com/Vaxity1/Aether/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets like the pprof token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 20)

	// Logging
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.feed_enabled", newCfg.Logging.Feed.Enabled),
		)
	}

	// Window
	if strings.TrimSpace(oldCfg.Window.Title) != strings.TrimSpace(newCfg.Window.Title) {
		changed = append(changed, "window")
		attrs = append(attrs,
			logx.String("window.title", strings.TrimSpace(newCfg.Window.Title)),
		)
	}

	// Typing
	if !reflect.DeepEqual(oldCfg.Typing, newCfg.Typing) {
		changed = append(changed, "typing")
		attrs = append(attrs,
			logx.Int("typing.max_attempts", newCfg.Typing.MaxAttempts),
			logx.String("typing.char_delay", strings.TrimSpace(newCfg.Typing.CharDelay)),
			logx.Bool("typing.random_delay", newCfg.Typing.RandomDelay),
			logx.Float64("typing.mistake_rate", newCfg.Typing.MistakeRate),
		)
	}

	// Rate limit
	if !reflect.DeepEqual(oldCfg.RateLimit, newCfg.RateLimit) {
		changed = append(changed, "ratelimit")
		attrs = append(attrs,
			logx.Int("ratelimit.burst_threshold", newCfg.RateLimit.BurstThreshold),
			logx.String("ratelimit.burst_window", strings.TrimSpace(newCfg.RateLimit.BurstWindow)),
			logx.String("ratelimit.min_interval", strings.TrimSpace(newCfg.RateLimit.MinInterval)),
			logx.String("ratelimit.max_backoff", strings.TrimSpace(newCfg.RateLimit.MaxBackoff)),
		)
	}

	// Dispatch
	if oldCfg.Dispatch.MaxPending != newCfg.Dispatch.MaxPending {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.max_pending", newCfg.Dispatch.MaxPending),
		)
	}

	// Schedule (timezone change restarts cron; message lists are re-seeded)
	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, "schedules")
		attrs = append(attrs,
			logx.String("schedules.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
			logx.Int("schedules.messages", len(newCfg.Schedule.Messages)),
			logx.Int("schedules.crons", len(newCfg.Schedule.Crons)),
		)
	}

	// Journal. Nil means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldCfg.Journal != nil {
		oDriver = strings.TrimSpace(oldCfg.Journal.Driver)
		oBusy = strings.TrimSpace(oldCfg.Journal.BusyTimeout)
		oPathSet = strings.TrimSpace(oldCfg.Journal.Path) != ""
	}
	if newCfg.Journal != nil {
		nDriver = strings.TrimSpace(newCfg.Journal.Driver)
		nBusy = strings.TrimSpace(newCfg.Journal.BusyTimeout)
		nPathSet = strings.TrimSpace(newCfg.Journal.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "journal")
		attrs = append(attrs,
			logx.String("journal.driver", nDriver),
			logx.Bool("journal.path_set", nPathSet),
			logx.String("journal.busy_timeout", nBusy),
		)
	}

	// Pprof (never log token)
	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled ||
		strings.TrimSpace(oldCfg.Pprof.Addr) != strings.TrimSpace(newCfg.Pprof.Addr) ||
		strings.TrimSpace(oldCfg.Pprof.Prefix) != strings.TrimSpace(newCfg.Pprof.Prefix) ||
		oldCfg.Pprof.AllowInsecure != newCfg.Pprof.AllowInsecure ||
		strings.TrimSpace(oldCfg.Pprof.ReadTimeout) != strings.TrimSpace(newCfg.Pprof.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.WriteTimeout) != strings.TrimSpace(newCfg.Pprof.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.IdleTimeout) != strings.TrimSpace(newCfg.Pprof.IdleTimeout) ||
		oldCfg.Pprof.MutexProfileFraction != newCfg.Pprof.MutexProfileFraction ||
		oldCfg.Pprof.BlockProfileRate != newCfg.Pprof.BlockProfileRate ||
		oldCfg.Pprof.MemProfileRate != newCfg.Pprof.MemProfileRate ||
		(strings.TrimSpace(oldCfg.Pprof.Token) != "") != (strings.TrimSpace(newCfg.Pprof.Token) != "") {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
			logx.Bool("pprof.allow_insecure", newCfg.Pprof.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
