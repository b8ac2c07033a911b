package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "github.com/Vaxity1/Aether/pkg/logx"
)

// ringCap bounds how much history Recent can serve from memory. Older
// records stay in the jsonl file but are not replayed.
const ringCap = 256

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.dispatch.jsonl (append-only JSON Lines)
//
// The tail of the file is replayed at open so Recent works across restarts.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	file   *os.File
	recent []Entry
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("journal.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	logPath := prefix + ".dispatch.jsonl"
	recent := replayTail(logPath, ringCap)

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:    log,
		file:   f,
		recent: recent,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) Append(ctx context.Context, e Entry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("dispatch log closed")
	}
	enc := json.NewEncoder(s.file)
	if err := enc.Encode(e); err != nil {
		return err
	}
	if len(s.recent) == ringCap {
		copy(s.recent, s.recent[1:])
		s.recent[ringCap-1] = e
	} else {
		s.recent = append(s.recent, e)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *fileStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || len(s.recent) == 0 {
		return nil, nil
	}
	if n > len(s.recent) {
		n = len(s.recent)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = s.recent[len(s.recent)-1-i]
	}
	return out, nil
}

func replayTail(path string, keep int) []Entry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
		if len(out) > keep {
			out = out[1:]
		}
	}
	return out
}
