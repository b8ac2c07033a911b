package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestParseFireAt(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)

	cases := []struct {
		in   string
		want time.Time
	}{
		{"15:04", time.Date(2026, 3, 10, 15, 4, 0, 0, loc)},
		{"09:30", time.Date(2026, 3, 10, 9, 30, 0, 0, loc)},
		{"9:30", time.Date(2026, 3, 10, 9, 30, 0, 0, loc)},
		{"15:04:05", time.Date(2026, 3, 10, 15, 4, 5, 0, loc)},
		{" 23:59 ", time.Date(2026, 3, 10, 23, 59, 0, 0, loc)},
		{"2026-04-01T08:00:00Z", time.Date(2026, 4, 1, 8, 0, 0, 0, loc)},
		{"2026-04-01T08:00:00+07:00", time.Date(2026, 4, 1, 1, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseFireAt(tc.in, now, loc)
			if err != nil {
				t.Fatalf("parseFireAt(%q): %v", tc.in, err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("parseFireAt(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseFireAtRejects(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)

	for _, in := range []string{"", "   ", "24:00", "12:60", "12:00:60", "noon", "2026-13-01T00:00:00Z"} {
		if _, err := parseFireAt(in, now, loc); !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("parseFireAt(%q) err = %v, want ErrInvalidSchedule", in, err)
		}
	}
}

func TestNormalizeFireAt(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	future := now.Add(time.Minute)
	if got, moved := normalizeFireAt(future, now); moved || !got.Equal(future) {
		t.Fatalf("future input changed: %v moved=%v", got, moved)
	}

	// 26 hours ago at 10:00 lands tomorrow at 10:00.
	past := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	got, moved := normalizeFireAt(past, now)
	want := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	if !moved || !got.Equal(want) {
		t.Fatalf("normalizeFireAt = %v moved=%v, want %v", got, moved, want)
	}
}

func TestNextOccurrence(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		rep  Repeat
		now  time.Time
		want time.Time
	}{
		{"daily", RepeatDaily, base, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"weekly", RepeatWeekly, base, time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC)},
		{"monthly", RepeatMonthly, base, time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)},
		{"daily catches up", RepeatDaily, base.Add(80 * time.Hour), time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
		{"weekly catches up", RepeatWeekly, base.AddDate(0, 0, 15), time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := nextOccurrence(base, tc.rep, tc.now); !got.Equal(tc.want) {
				t.Fatalf("nextOccurrence = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseRepeat(t *testing.T) {
	for in, want := range map[string]Repeat{
		"":        RepeatNone,
		"none":    RepeatNone,
		"daily":   RepeatDaily,
		"weekly":  RepeatWeekly,
		"monthly": RepeatMonthly,
	} {
		got, err := ParseRepeat(in)
		if err != nil || got != want {
			t.Fatalf("ParseRepeat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseRepeat("yearly"); err == nil {
		t.Fatal("ParseRepeat accepted yearly")
	}
}
