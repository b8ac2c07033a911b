// Package ratelimit paces outbound sends with a sliding-window burst cap and
// an adaptive backoff delay.
//
// The two signals are deliberately separate: the window bounds bursts no
// matter the absolute throughput, while the backoff reacts specifically to
// externally observed throttling (a "hit") and relaxes again on successful
// sends. Callers never hard-code sleeps; they ask RecommendedDelay.
package ratelimit

import (
	"sync"
	"time"
)

// Config tunes the limiter. Zero fields fall back to defaults.
type Config struct {
	// BurstThreshold caps how many sends may land inside BurstWindow. Default 5.
	BurstThreshold int
	// BurstWindow is the sliding window over which bursts are counted. Default 10s.
	BurstWindow time.Duration
	// MinInterval is the minimum spacing between consecutive sends. Default 500ms.
	MinInterval time.Duration
	// StartBackoff is the initial backoff delay. Default 1s.
	StartBackoff time.Duration
	// MaxBackoff caps backoff growth. Default 30s.
	MaxBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.BurstThreshold <= 0 {
		c.BurstThreshold = 5
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = 10 * time.Second
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 500 * time.Millisecond
	}
	if c.StartBackoff <= 0 {
		c.StartBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.MinInterval {
		c.MaxBackoff = c.MinInterval
	}
	return c
}

// Status is a read-only snapshot for polling by a presentation layer.
type Status struct {
	CanSend          bool          `json:"can_send"`
	RecentCount      int           `json:"recent_count"`
	BurstThreshold   int           `json:"burst_threshold"`
	RecommendedDelay time.Duration `json:"recommended_delay"`
	TotalSent        uint64        `json:"total_sent"`
	RateLimitHits    uint64        `json:"rate_limit_hits"`
	BackoffDelay     time.Duration `json:"backoff_delay"`
}

// Limiter is safe for concurrent use. All methods take an explicit now so
// behavior is deterministic under test.
type Limiter struct {
	mu  sync.Mutex
	cfg Config

	// history holds send timestamps, newest last. Entries older than
	// BurstWindow relative to the most recent query are pruned.
	history []time.Time
	backoff time.Duration

	totalSent     uint64
	rateLimitHits uint64
}

func New(cfg Config) *Limiter {
	cfg = cfg.withDefaults()
	return &Limiter{
		cfg:     cfg,
		backoff: clampBackoff(cfg.StartBackoff, cfg),
	}
}

// Apply retunes the limiter at runtime. Counters and history are retained;
// the current backoff is re-clamped into the new bounds.
func (l *Limiter) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	l.mu.Lock()
	l.cfg = cfg
	l.backoff = clampBackoff(l.backoff, cfg)
	l.mu.Unlock()
}

// CanSend reports whether a send at now would stay inside both limits.
// The only mutation is pruning expired history entries, which is idempotent.
func (l *Limiter) CanSend(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canSendLocked(now)
}

func (l *Limiter) canSendLocked(now time.Time) bool {
	l.pruneLocked(now)
	if len(l.history) >= l.cfg.BurstThreshold {
		return false
	}
	if len(l.history) > 0 && now.Sub(l.history[len(l.history)-1]) < l.cfg.MinInterval {
		return false
	}
	return true
}

func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.cfg.BurstWindow)
	i := 0
	for i < len(l.history) && !l.history[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.history = append(l.history[:0], l.history[i:]...)
	}
}

// RegisterSent records a completed send: the timestamp joins the window,
// totalSent increments, and the backoff relaxes by 10% (floored at
// MinInterval).
func (l *Limiter) RegisterSent(now time.Time) {
	l.mu.Lock()
	l.history = append(l.history, now)
	l.totalSent++
	l.backoff = clampBackoff(time.Duration(float64(l.backoff)*0.9), l.cfg)
	l.mu.Unlock()
}

// RegisterLimitHit records externally observed throttling: rateLimitHits
// increments and the backoff doubles (capped at MaxBackoff).
func (l *Limiter) RegisterLimitHit(now time.Time) {
	_ = now
	l.mu.Lock()
	l.rateLimitHits++
	l.backoff = clampBackoff(l.backoff*2, l.cfg)
	l.mu.Unlock()
}

// RecommendedDelay is the wait callers should observe before the next send:
// the current backoff while sending is disallowed, otherwise the steady-state
// pacing floor.
func (l *Limiter) RecommendedDelay(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recommendedLocked(now)
}

func (l *Limiter) recommendedLocked(now time.Time) time.Duration {
	if !l.canSendLocked(now) {
		return l.backoff
	}
	d := l.cfg.MinInterval
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}

// Status never mutates counters; only the idempotent history prune runs.
func (l *Limiter) Status(now time.Time) Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		CanSend:          l.canSendLocked(now),
		RecentCount:      len(l.history),
		BurstThreshold:   l.cfg.BurstThreshold,
		RecommendedDelay: l.recommendedLocked(now),
		TotalSent:        l.totalSent,
		RateLimitHits:    l.rateLimitHits,
		BackoffDelay:     l.backoff,
	}
}

func clampBackoff(d time.Duration, cfg Config) time.Duration {
	if d < cfg.MinInterval {
		return cfg.MinInterval
	}
	if d > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return d
}
