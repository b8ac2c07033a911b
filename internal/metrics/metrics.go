// Package metrics aggregates dispatch session counters.
//
// Counters are written only by the dispatch loop and read by anything that
// polls Snapshot (UI layers, logging, tests). No push contract: polling keeps
// the core decoupled from presentation threading.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// labelCounter is a lock-free, label-keyed counter map backed by sync.Map
// and atomic.Uint64 values.
type labelCounter struct {
	vals sync.Map // key string -> *atomic.Uint64
}

func (lc *labelCounter) get(key string) *atomic.Uint64 {
	v, _ := lc.vals.LoadOrStore(key, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

func (lc *labelCounter) inc(key string) { lc.get(key).Add(1) }

func (lc *labelCounter) each(fn func(key string, val uint64)) {
	lc.vals.Range(func(k, v any) bool {
		fn(k.(string), v.(*atomic.Uint64).Load())
		return true
	})
}

// Metrics holds the session counters. The zero value is not usable; call New.
type Metrics struct {
	sessionStart time.Time

	sent          atomic.Uint64
	errors        atomic.Uint64
	rateLimitHits atomic.Uint64

	sentByOrigin labelCounter
	errorsByKind labelCounter
}

func New() *Metrics {
	return &Metrics{sessionStart: time.Now()}
}

// RecordSent counts one delivered message. origin is the enqueue path
// ("immediate", "scheduled", "cron").
func (m *Metrics) RecordSent(origin string) {
	m.sent.Add(1)
	if origin != "" {
		m.sentByOrigin.inc(origin)
	}
}

// RecordError counts one permanently failed message. kind is the error class
// ("focus", "transmission", "throttled", "timeout", "internal").
func (m *Metrics) RecordError(kind string) {
	m.errors.Add(1)
	if kind != "" {
		m.errorsByKind.inc(kind)
	}
}

// RecordRateLimitHit counts one throttle observation.
func (m *Metrics) RecordRateLimitHit() {
	m.rateLimitHits.Add(1)
}

// Snapshot is a point-in-time copy for polling.
type Snapshot struct {
	SessionStart  time.Time         `json:"session_start"`
	Uptime        time.Duration     `json:"uptime"`
	Sent          uint64            `json:"sent"`
	Errors        uint64            `json:"errors"`
	RateLimitHits uint64            `json:"rate_limit_hits"`
	SentByOrigin  map[string]uint64 `json:"sent_by_origin,omitempty"`
	ErrorsByKind  map[string]uint64 `json:"errors_by_kind,omitempty"`
}

func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		SessionStart:  m.sessionStart,
		Uptime:        time.Since(m.sessionStart),
		Sent:          m.sent.Load(),
		Errors:        m.errors.Load(),
		RateLimitHits: m.rateLimitHits.Load(),
	}
	m.sentByOrigin.each(func(key string, val uint64) {
		if s.SentByOrigin == nil {
			s.SentByOrigin = map[string]uint64{}
		}
		s.SentByOrigin[key] = val
	})
	m.errorsByKind.each(func(key string, val uint64) {
		if s.ErrorsByKind == nil {
			s.ErrorsByKind = map[string]uint64{}
		}
		s.ErrorsByKind[key] = val
	})
	return s
}
