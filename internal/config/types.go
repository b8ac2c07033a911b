package config

// Config is the on-disk configuration. All durations are Go duration strings
// (e.g. "500ms", "10s", "1m"); mapping into runtime types happens in
// internal/app so a bad edit is rejected before anything is applied.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Window    WindowConfig    `json:"window"`
	Typing    TypingConfig    `json:"typing"`
	RateLimit RateLimitConfig `json:"ratelimit"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Schedule  ScheduleConfig  `json:"schedules"`

	// Journal persists dispatch outcomes. Omitted means disabled.
	Journal *JournalConfig `json:"journal,omitempty"`

	Pprof PprofConfig `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Feed    LoggingFeed `json:"feed"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingFeed republishes log records onto the event bus so an attached
// presentation layer can render them live.
type LoggingFeed struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// WindowConfig names the target application window. An empty title means
// keystrokes go to whichever window currently has focus.
type WindowConfig struct {
	Title string `json:"title"`
}

// TypingConfig tunes keystroke delivery.
//
// Defaults (when fields are omitted/zero):
//   - max_attempts: 3
//   - char_delay: "10ms"
//   - min_char_delay / max_char_delay: "10ms" / "50ms" (random mode)
//   - mistake_rate: 0 (off; 0.01 is a plausible human rate)
//   - focus_settle: "500ms"
//   - attempt_pause: "1s"
//   - send_timeout: "2m"
type TypingConfig struct {
	MaxAttempts int `json:"max_attempts,omitempty"`

	CharDelay string `json:"char_delay,omitempty"`

	// RandomDelay switches pacing to a uniform draw between min and max.
	RandomDelay  bool   `json:"random_delay,omitempty"`
	MinCharDelay string `json:"min_char_delay,omitempty"`
	MaxCharDelay string `json:"max_char_delay,omitempty"`

	// MistakeRate is the per-character probability of a simulated typo.
	MistakeRate float64 `json:"mistake_rate,omitempty"`

	FocusSettle  string `json:"focus_settle,omitempty"`
	AttemptPause string `json:"attempt_pause,omitempty"`
	SendTimeout  string `json:"send_timeout,omitempty"`
}

// RateLimitConfig tunes the send pacing guard.
//
// Defaults (when fields are omitted/zero):
//   - burst_threshold: 5
//   - burst_window: "10s"
//   - min_interval: "500ms"
//   - start_backoff: "1s"
//   - max_backoff: "30s"
type RateLimitConfig struct {
	BurstThreshold int    `json:"burst_threshold,omitempty"`
	BurstWindow    string `json:"burst_window,omitempty"`
	MinInterval    string `json:"min_interval,omitempty"`
	StartBackoff   string `json:"start_backoff,omitempty"`
	MaxBackoff     string `json:"max_backoff,omitempty"`
}

type DispatchConfig struct {
	// MaxPending bounds the queue; Enqueue fails rather than blocks when
	// it is full. Default 1024.
	MaxPending int `json:"max_pending,omitempty"`
}

// ScheduleConfig seeds the scheduler at startup. More schedules can be added
// at runtime; these are just the ones that survive a restart.
type ScheduleConfig struct {
	// Timezone for wall-clock fire times and cron specs (IANA name).
	Timezone string `json:"timezone,omitempty"`

	Messages []ScheduledMessage `json:"messages,omitempty"`
	Crons    []CronSchedule     `json:"crons,omitempty"`
}

type ScheduledMessage struct {
	// At is "HH:MM", "HH:MM:SS", or RFC3339.
	At      string `json:"at"`
	Payload string `json:"payload"`
	// Repeat is "daily", "weekly", or "monthly"; empty fires once.
	Repeat string `json:"repeat,omitempty"`
}

type CronSchedule struct {
	Spec    string `json:"spec"`
	Payload string `json:"payload"`
}

// JournalConfig controls the dispatch outcome journal.
//
// Example:
//
//	"journal": { "driver": "file", "path": "./aether_journal" }
type JournalConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}
