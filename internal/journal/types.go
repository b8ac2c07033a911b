package journal

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the journal.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry records one completed dispatch attempt series.
// Keep it compact and schema-stable; payload text is deliberately not stored.
type Entry struct {
	At       time.Time `json:"at"`
	ID       string    `json:"id"`
	Origin   string    `json:"origin"`
	Chars    int       `json:"chars"`
	Attempts int       `json:"attempts"`
	OK       bool      `json:"ok"`
	ErrKind  string    `json:"err_kind,omitempty"`
	Error    string    `json:"err,omitempty"`
	TookMS   int64     `json:"took_ms"`
}
