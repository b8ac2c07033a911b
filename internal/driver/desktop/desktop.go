// Package desktop drives the host desktop through robotgo: window
// activation plus synthetic keystrokes into whichever application owns the
// target window. It is the outward edge of the dispatcher; pacing, retry
// and mistake simulation live upstream in transmit.
package desktop

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-vgo/robotgo"

	logx "github.com/Vaxity1/Aether/pkg/logx"

	_ "github.com/go-vgo/robotgo/base"  // Blank import for robotgo C sources
	_ "github.com/go-vgo/robotgo/key"   // Blank import for robotgo C sources
	_ "github.com/go-vgo/robotgo/mouse" // Blank import for robotgo C sources
)

type Config struct {
	// Title selects the window to activate before typing. Empty means
	// "type into whatever is focused" and makes Focus a no-op.
	Title string
}

// WindowInfo is a point-in-time probe of the target window, surfaced in
// dispatcher snapshots.
type WindowInfo struct {
	Target  string `json:"target"`
	Present bool   `json:"present"`
	Active  string `json:"active_title,omitempty"`
}

type Driver struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Driver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Driver{cfg: cfg, log: log}
}

// Apply swaps the target window at runtime. Keystrokes already in flight
// finish against the old window; the next Focus or Probe sees the new title.
func (d *Driver) Apply(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

func (d *Driver) title() string {
	d.mu.Lock()
	t := d.cfg.Title
	d.mu.Unlock()
	return t
}

// Focus raises the target window. Reported as a boolean because the caller
// only branches on it; the underlying error is logged here.
func (d *Driver) Focus() bool {
	title := d.title()
	if title == "" {
		return true
	}
	if err := robotgo.ActiveName(title); err != nil {
		d.log.Debug("window activation failed",
			logx.String("title", title),
			logx.Err(err),
		)
		return false
	}
	return true
}

func (d *Driver) TypeChar(r rune) error {
	switch r {
	case '\n':
		return d.tap("enter")
	case '\t':
		return d.tap("tab")
	}
	robotgo.TypeStr(string(r))
	return nil
}

func (d *Driver) Backspace() error {
	return d.tap("backspace")
}

// Submit presses Enter, the send trigger in every chat-style target.
func (d *Driver) Submit() error {
	return d.tap("enter")
}

func (d *Driver) tap(key string) error {
	if err := robotgo.KeyTap(key); err != nil {
		return fmt.Errorf("key tap %q: %w", key, err)
	}
	return nil
}

// Probe reports whether the target window currently exists without
// activating it.
func (d *Driver) Probe() WindowInfo {
	title := d.title()
	info := WindowInfo{Target: title, Active: robotgo.GetTitle()}
	if title == "" {
		info.Present = true
		return info
	}
	if strings.Contains(strings.ToLower(info.Active), strings.ToLower(title)) {
		info.Present = true
		return info
	}
	ids, err := robotgo.FindIds(title)
	info.Present = err == nil && len(ids) > 0
	return info
}
