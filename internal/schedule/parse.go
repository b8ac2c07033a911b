package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reClock = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// ScheduleAt is Schedule with a textual fire time. Accepted forms:
//
//	"15:04"                today at that wall-clock time (tomorrow once passed)
//	"15:04:05"             same, with seconds
//	"2026-01-02T15:04:05Z" RFC3339, any offset
//
// Wall-clock forms resolve in the scheduler timezone.
func (s *Service) ScheduleAt(payload, at string, repeat Repeat) (string, error) {
	loc := s.location()
	fireAt, err := parseFireAt(at, time.Now(), loc)
	if err != nil {
		return "", err
	}
	return s.Schedule(payload, fireAt, repeat)
}

func parseFireAt(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	sp := strings.TrimSpace(raw)
	if sp == "" {
		return time.Time{}, fmt.Errorf("%w: fire time required", ErrInvalidSchedule)
	}

	if m := reClock.FindStringSubmatch(sp); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		sec := 0
		if m[3] != "" {
			sec, _ = strconv.Atoi(m[3])
		}
		if h > 23 || min > 59 || sec > 59 {
			return time.Time{}, fmt.Errorf("%w: clock time %q out of range", ErrInvalidSchedule, raw)
		}
		n := now.In(loc)
		return time.Date(n.Year(), n.Month(), n.Day(), h, min, sec, 0, loc), nil
	}

	t, err := time.Parse(time.RFC3339, sp)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (want HH:MM, HH:MM:SS or RFC3339)", ErrInvalidSchedule, raw)
	}
	return t.In(loc), nil
}
