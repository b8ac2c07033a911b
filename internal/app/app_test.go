package app

import (
	"strings"
	"testing"
	"time"

	"github.com/Vaxity1/Aether/internal/config"
)

func TestMapTypingPolicy(t *testing.T) {
	cfg := &config.Config{Typing: config.TypingConfig{
		MaxAttempts:  5,
		CharDelay:    "25ms",
		RandomDelay:  true,
		MinCharDelay: "5ms",
		MaxCharDelay: "80ms",
		MistakeRate:  0.02,
		FocusSettle:  "250ms",
		AttemptPause: "2s",
		SendTimeout:  "1m",
	}}

	pol, err := mapTypingPolicy(cfg)
	if err != nil {
		t.Fatalf("mapTypingPolicy: %v", err)
	}
	if pol.MaxAttempts != 5 || pol.CharDelay != 25*time.Millisecond || !pol.RandomDelay {
		t.Fatalf("policy = %+v", pol)
	}
	if pol.MinCharDelay != 5*time.Millisecond || pol.MaxCharDelay != 80*time.Millisecond {
		t.Fatalf("policy = %+v", pol)
	}
	if pol.MistakeRate != 0.02 || pol.FocusSettle != 250*time.Millisecond {
		t.Fatalf("policy = %+v", pol)
	}
	if pol.AttemptPause != 2*time.Second || pol.SendTimeout != time.Minute {
		t.Fatalf("policy = %+v", pol)
	}

	// Empty section maps to the zero policy; defaults live in transmit.
	if pol, err := mapTypingPolicy(&config.Config{}); err != nil || pol.MaxAttempts != 0 {
		t.Fatalf("empty section: %+v %v", pol, err)
	}
}

func TestMapTypingPolicyRejects(t *testing.T) {
	cases := []config.TypingConfig{
		{MaxAttempts: -1},
		{MistakeRate: -0.1},
		{MistakeRate: 1.5},
		{CharDelay: "soon"},
		{FocusSettle: "-1s"},
	}
	for i, tc := range cases {
		if _, err := mapTypingPolicy(&config.Config{Typing: tc}); err == nil {
			t.Errorf("case %d: %+v accepted", i, tc)
		}
	}
}

func TestMapRateLimitConfig(t *testing.T) {
	cfg := &config.Config{RateLimit: config.RateLimitConfig{
		BurstThreshold: 7,
		BurstWindow:    "20s",
		MinInterval:    "300ms",
		StartBackoff:   "2s",
		MaxBackoff:     "1m",
	}}

	rl, err := mapRateLimitConfig(cfg)
	if err != nil {
		t.Fatalf("mapRateLimitConfig: %v", err)
	}
	if rl.BurstThreshold != 7 || rl.BurstWindow != 20*time.Second {
		t.Fatalf("config = %+v", rl)
	}
	if rl.MinInterval != 300*time.Millisecond || rl.StartBackoff != 2*time.Second || rl.MaxBackoff != time.Minute {
		t.Fatalf("config = %+v", rl)
	}

	bad := &config.Config{RateLimit: config.RateLimitConfig{BurstWindow: "wide"}}
	if _, err := mapRateLimitConfig(bad); err == nil {
		t.Fatal("bad burst_window accepted")
	}
	neg := &config.Config{RateLimit: config.RateLimitConfig{BurstThreshold: -1}}
	if _, err := mapRateLimitConfig(neg); err == nil {
		t.Fatal("negative burst_threshold accepted")
	}
}

func TestMapJournalConfig(t *testing.T) {
	if _, enabled, err := mapJournalConfig(&config.Config{}); err != nil || enabled {
		t.Fatalf("nil journal: enabled=%v err=%v", enabled, err)
	}
	if _, enabled, err := mapJournalConfig(&config.Config{Journal: &config.JournalConfig{Driver: "none"}}); err != nil || enabled {
		t.Fatalf("driver none: enabled=%v err=%v", enabled, err)
	}

	jc, enabled, err := mapJournalConfig(&config.Config{Journal: &config.JournalConfig{Driver: "file", Path: "x.jsonl"}})
	if err != nil || !enabled || jc.Driver != "file" || jc.Path != "x.jsonl" {
		t.Fatalf("file: %+v enabled=%v err=%v", jc, enabled, err)
	}

	if _, _, err := mapJournalConfig(&config.Config{Journal: &config.JournalConfig{Driver: "sqlite"}}); err == nil {
		t.Fatal("sqlite without path accepted")
	}
	jc, enabled, err = mapJournalConfig(&config.Config{Journal: &config.JournalConfig{
		Driver: "sqlite", Path: "j.db", BusyTimeout: "3s",
	}})
	if err != nil || !enabled || jc.BusyTimeout != 3*time.Second {
		t.Fatalf("sqlite: %+v enabled=%v err=%v", jc, enabled, err)
	}

	if _, _, err := mapJournalConfig(&config.Config{Journal: &config.JournalConfig{Driver: "redis"}}); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestMapPprofConfig(t *testing.T) {
	pp, err := mapPprofConfig(&config.Config{})
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	if pp.Addr != "127.0.0.1:6060" || pp.Prefix != "/debug/pprof/" {
		t.Fatalf("defaults = %+v", pp)
	}
	if pp.ReadTimeout != 5*time.Second || pp.IdleTimeout != 120*time.Second || pp.WriteTimeout != 0 {
		t.Fatalf("timeouts = %+v", pp)
	}

	_, err = mapPprofConfig(&config.Config{Pprof: config.PprofConfig{Enabled: true, Addr: "0.0.0.0:6060"}})
	if err == nil || !strings.Contains(err.Error(), "non-loopback") {
		t.Fatalf("insecure bind err = %v", err)
	}
	if _, err := mapPprofConfig(&config.Config{Pprof: config.PprofConfig{Enabled: true, Addr: "0.0.0.0:6060", Token: "s"}}); err != nil {
		t.Fatalf("token bind: %v", err)
	}
	if _, err := mapPprofConfig(&config.Config{Pprof: config.PprofConfig{Enabled: true, Addr: "nonsense"}}); err == nil {
		t.Fatal("bad addr accepted")
	}
	if _, err := mapPprofConfig(&config.Config{Pprof: config.PprofConfig{BlockProfileRate: -1}}); err == nil {
		t.Fatal("negative rate accepted")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:6060": true,
		"[::1]:6060":     true,
		"0.0.0.0:6060":   false,
		"10.0.0.5:6060":  false,
		":6060":          false,
		"no-port":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestMapLoggingConfig(t *testing.T) {
	cfg := &config.Config{Logging: config.LoggingConfig{
		Level:   "DEBUG",
		Console: true,
		File:    config.LoggingFile{Enabled: true, Path: "a.log"},
		Feed:    config.LoggingFeed{Enabled: true, MinLevel: "WARN", RatePerSec: 2},
	}}
	lc := mapLoggingConfig(cfg)
	if lc.Level != "DEBUG" || !lc.Console || !lc.File.Enabled || lc.File.Path != "a.log" {
		t.Fatalf("config = %+v", lc)
	}
	if !lc.Feed.Enabled || lc.Feed.MinLevel != "WARN" || lc.Feed.RatePerSec != 2 {
		t.Fatalf("feed = %+v", lc.Feed)
	}
}
