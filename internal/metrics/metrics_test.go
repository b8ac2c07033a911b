package metrics

import (
	"sync"
	"testing"
)

func TestCountersAccumulate(t *testing.T) {
	t.Parallel()

	m := New()
	m.RecordSent("immediate")
	m.RecordSent("immediate")
	m.RecordSent("scheduled")
	m.RecordError("focus")
	m.RecordRateLimitHit()

	s := m.Snapshot()
	if s.Sent != 3 {
		t.Fatalf("Sent = %d, want 3", s.Sent)
	}
	if s.Errors != 1 {
		t.Fatalf("Errors = %d, want 1", s.Errors)
	}
	if s.RateLimitHits != 1 {
		t.Fatalf("RateLimitHits = %d, want 1", s.RateLimitHits)
	}
	if s.SentByOrigin["immediate"] != 2 || s.SentByOrigin["scheduled"] != 1 {
		t.Fatalf("SentByOrigin = %v", s.SentByOrigin)
	}
	if s.ErrorsByKind["focus"] != 1 {
		t.Fatalf("ErrorsByKind = %v", s.ErrorsByKind)
	}
	if s.Uptime < 0 {
		t.Fatalf("Uptime = %v, want >= 0", s.Uptime)
	}
}

func TestSnapshotDoesNotMutate(t *testing.T) {
	t.Parallel()

	m := New()
	m.RecordSent("immediate")
	first := m.Snapshot()
	for i := 0; i < 3; i++ {
		s := m.Snapshot()
		if s.Sent != first.Sent || s.Errors != first.Errors || s.RateLimitHits != first.RateLimitHits {
			t.Fatalf("snapshot %d mutated counters: %+v", i, s)
		}
	}
}

func TestConcurrentRecording(t *testing.T) {
	t.Parallel()

	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordSent("immediate")
				m.RecordError("transmission")
			}
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	if s.Sent != 800 || s.Errors != 800 {
		t.Fatalf("sent/errors = %d/%d, want 800/800", s.Sent, s.Errors)
	}
	if s.SentByOrigin["immediate"] != 800 {
		t.Fatalf("SentByOrigin[immediate] = %d, want 800", s.SentByOrigin["immediate"])
	}
}
