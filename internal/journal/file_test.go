package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "github.com/Vaxity1/Aether/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none", " None "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q) err = %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) returned a store for disabled journal", driver)
		}
	}

	if _, err := Open(Config{Driver: "bolt"}, logx.Nop()); err == nil {
		t.Fatal("Open accepted unknown driver")
	}
}

func TestFileJournalAppendAndRecent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "aether.db")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e := Entry{
			At:       base.Add(time.Duration(i) * time.Second),
			ID:       string(rune('a' + i)),
			Origin:   "queue",
			Chars:    10 + i,
			Attempts: 1,
			OK:       i != 1,
			TookMS:   int64(100 * i),
		}
		if e.ErrKind == "" && !e.OK {
			e.ErrKind = "transmission"
		}
		if err := st.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d entries", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("Recent order = [%s %s], want newest first [c b]", got[0].ID, got[1].ID)
	}

	all, err := st.Recent(ctx, 50)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Recent(50) returned %d entries, want 3", len(all))
	}
	if none, _ := st.Recent(ctx, 0); none != nil {
		t.Fatal("Recent(0) returned entries")
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFileJournalSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "aether.db")
	cfg := Config{Driver: "file", Path: path}
	ctx := context.Background()

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 5; i++ {
		e := Entry{At: time.Now(), ID: string(rune('a' + i)), Origin: "schedule", OK: true, Attempts: 1}
		if err := st.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	got, err := st2.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent after reopen: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("replayed %d entries, want 5", len(got))
	}
	if got[0].ID != "e" {
		t.Fatalf("newest replayed entry = %s, want e", got[0].ID)
	}
}

func TestFileJournalClosedAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "aether.db")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Append(context.Background(), Entry{ID: "x"}); err == nil {
		t.Fatal("Append succeeded on closed store")
	}
}
