package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadJSON(t *testing.T) {
	p := writeTemp(t, "config.json", `{
		"logging": {"level": "DEBUG", "console": true, "file": {"enabled": true, "path": "./aether.log"}, "feed": {"enabled": true, "min_level": "INFO", "rate_per_sec": 3}},
		"window": {"title": "Discord"},
		"typing": {"max_attempts": 5, "char_delay": "15ms", "random_delay": true, "mistake_rate": 0.01, "send_timeout": "90s"},
		"ratelimit": {"burst_threshold": 4, "burst_window": "8s", "min_interval": "400ms"},
		"dispatch": {"max_pending": 64},
		"schedules": {"timezone": "UTC", "messages": [{"at": "09:00", "payload": "good morning", "repeat": "daily"}], "crons": [{"spec": "*/5 * * * *", "payload": "ping"}]},
		"journal": {"driver": "file", "path": "./journal"}
	}`)

	m := NewConfigManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" || !cfg.Logging.File.Enabled {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Window.Title != "Discord" {
		t.Fatalf("window = %+v", cfg.Window)
	}
	if cfg.Typing.MaxAttempts != 5 || !cfg.Typing.RandomDelay || cfg.Typing.MistakeRate != 0.01 {
		t.Fatalf("typing = %+v", cfg.Typing)
	}
	if cfg.RateLimit.BurstThreshold != 4 || cfg.RateLimit.MinInterval != "400ms" {
		t.Fatalf("rate_limit = %+v", cfg.RateLimit)
	}
	if cfg.Dispatch.MaxPending != 64 {
		t.Fatalf("dispatch = %+v", cfg.Dispatch)
	}
	if len(cfg.Schedule.Messages) != 1 || cfg.Schedule.Messages[0].Repeat != "daily" {
		t.Fatalf("schedule = %+v", cfg.Schedule)
	}
	if len(cfg.Schedule.Crons) != 1 || cfg.Schedule.Crons[0].Spec != "*/5 * * * *" {
		t.Fatalf("crons = %+v", cfg.Schedule.Crons)
	}
	if cfg.Journal == nil || cfg.Journal.Driver != "file" {
		t.Fatalf("journal = %+v", cfg.Journal)
	}

	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	p := writeTemp(t, "config.yaml", `
logging:
  level: INFO
  console: true
window:
  title: Notepad
typing:
  char_delay: 20ms
ratelimit:
  burst_threshold: 6
dispatch:
  max_pending: 10
schedules:
  timezone: Asia/Jakarta
`)

	cfg, err := NewConfigManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Window.Title != "Notepad" || cfg.Typing.CharDelay != "20ms" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Schedule.Timezone != "Asia/Jakarta" || cfg.RateLimit.BurstThreshold != 6 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	p := writeTemp(t, "config.json", `{"window": {"title": "x"}, "typo_section": {}}`)
	if _, err := NewConfigManager(p).Load(); err == nil {
		t.Fatal("unknown section accepted")
	}

	p = writeTemp(t, "config2.json", `{"typing": {"char_dely": "10ms"}}`)
	if _, err := NewConfigManager(p).Load(); err == nil {
		t.Fatal("misspelled field accepted")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	p := writeTemp(t, "config.json", `{"window": {"title": "x"}}{"window": {"title": "y"}}`)
	if _, err := NewConfigManager(p).Load(); err == nil {
		t.Fatal("concatenated JSON accepted")
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("t", ""); err != nil || d != 0 {
		t.Fatalf("empty: %v %v", d, err)
	}
	if d, err := ParseDurationField("t", "500ms"); err != nil || d != 500*time.Millisecond {
		t.Fatalf("500ms: %v %v", d, err)
	}
	if _, err := ParseDurationField("t", "-1s"); err == nil {
		t.Fatal("negative accepted")
	}
	if _, err := ParseDurationField("t", "fast"); err == nil {
		t.Fatal("garbage accepted")
	}
	if d, err := ParseDurationOrDefault("t", "", 3*time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("default: %v %v", d, err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{Window: WindowConfig{Title: "A"}}
	newCfg := &Config{
		Window:    WindowConfig{Title: "B"},
		RateLimit: RateLimitConfig{BurstThreshold: 9},
	}

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"ratelimit", "window"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v", changed)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs for changed sections")
	}

	if c, _ := SummarizeConfigChange(newCfg, newCfg); len(c) != 0 {
		t.Fatalf("identical configs reported changes: %v", c)
	}
}
