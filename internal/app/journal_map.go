package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/Vaxity1/Aether/internal/journal"
)

func mapJournalConfig(cfg *Config) (journal.Config, bool, error) {
	if cfg == nil || cfg.Journal == nil {
		return journal.Config{}, false, nil
	}
	jc := cfg.Journal
	driver := strings.TrimSpace(jc.Driver)
	if driver == "" || strings.EqualFold(driver, "none") {
		return journal.Config{}, false, nil
	}
	path := strings.TrimSpace(jc.Path)

	dl := strings.ToLower(strings.TrimSpace(driver))
	switch dl {
	case "file":
		return journal.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return journal.Config{}, false, fmt.Errorf("journal.path is required when journal.driver=sqlite")
		}
		busy := 1 * time.Second
		var err error
		busy, err = parseDurationOrDefault("journal.busy_timeout", jc.BusyTimeout, busy)
		if err != nil {
			return journal.Config{}, false, err
		}
		return journal.Config{Driver: dl, Path: path, BusyTimeout: busy}, true, nil
	default:
		return journal.Config{}, false, fmt.Errorf("unknown journal.driver: %s", driver)
	}
}
