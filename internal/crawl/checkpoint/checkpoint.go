// Package checkpoint persists crawl progress as a JSON snapshot plus
// append-only NDJSON logs.
package checkpoint

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// LogExt is the extension of incremental log files.
const LogExt = ".ldjson"

// Store is the merged view of a snapshot file and every log in a directory.
// Entries are keyed by a stable remote identifier and are never removed.
// A Store has a single writer.
type Store[T any] struct {
	snapshotPath string
	logPath      string
	key          func(T) string
	items        []T
	index        map[string]int
	log          *os.File
	logger       *zap.Logger
}

// Paths locates the files of one crawl window.
type Paths struct {
	Snapshot string // consolidated JSON array
	LogDir   string // every *.ldjson here is merged on load
	LogName  string // log appended to by this run, inside LogDir
}

// Open loads the snapshot then the logs (in name order), skipping log
// entries whose key is already known, and opens this run's log for
// appending. Unparseable log lines are logged and skipped.
func Open[T any](p Paths, key func(T) string, logger *zap.Logger) (*Store[T], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store[T]{
		snapshotPath: p.Snapshot,
		logPath:      filepath.Join(p.LogDir, p.LogName),
		key:          key,
		index:        map[string]int{},
		logger:       logger,
	}
	if err := s.loadSnapshot(); err != nil {
		return nil, err
	}
	fromSnapshot := len(s.items)
	if err := s.loadLogs(p.LogDir); err != nil {
		return nil, err
	}
	logger.Info("checkpoint loaded",
		zap.String("snapshot", p.Snapshot),
		zap.Int("snapshot_items", fromSnapshot),
		zap.Int("total_items", len(s.items)))

	if err := os.MkdirAll(p.LogDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := terminateLastLine(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("repair %s: %w", s.logPath, err)
	}
	s.log = f
	return s, nil
}

// terminateLastLine ends a log torn by a crash mid-write with a newline, so
// the next entry starts on a line of its own.
func terminateLastLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return err
	}
	return f.Sync()
}

func (s *Store[T]) loadSnapshot() error {
	data, err := os.ReadFile(s.snapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("snapshot %s: %w", s.snapshotPath, err)
	}
	for _, it := range items {
		s.add(it)
	}
	return nil
}

func (s *Store[T]) loadLogs(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), LogExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.loadLog(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store[T]) loadLog(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var it T
		if err := json.Unmarshal([]byte(text), &it); err != nil {
			s.logger.Warn("unparseable checkpoint line, skipping",
				zap.String("path", path), zap.Int("line", line), zap.Error(err))
			continue
		}
		s.add(it)
	}
	return sc.Err()
}

func (s *Store[T]) add(it T) bool {
	k := s.key(it)
	if k == "" {
		return false
	}
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = len(s.items)
	s.items = append(s.items, it)
	return true
}

// Has reports whether key was already fetched.
func (s *Store[T]) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Get returns the entry for key.
func (s *Store[T]) Get(key string) (T, bool) {
	i, ok := s.index[key]
	if !ok {
		var zero T
		return zero, false
	}
	return s.items[i], true
}

func (s *Store[T]) Len() int { return len(s.items) }

// Items returns the entries in load-then-append order.
func (s *Store[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Append records a newly fetched entry and writes it to the log before
// returning. Appending a known key is a no-op.
func (s *Store[T]) Append(it T) error {
	if !s.add(it) {
		return nil
	}
	line, err := json.Marshal(it)
	if err != nil {
		return err
	}
	if _, err := s.log.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", s.logPath, err)
	}
	return s.log.Sync()
}

// SaveSnapshot writes every entry to the snapshot file. rewrite, when not
// nil, is applied to each entry on the way out (the stored entries are not
// changed). Logs are kept.
func (s *Store[T]) SaveSnapshot(rewrite func(T) T) error {
	out := s.Items()
	if rewrite != nil {
		for i := range out {
			out[i] = rewrite(out[i])
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.snapshotPath), 0o755); err != nil {
		return err
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	s.logger.Info("checkpoint snapshot saved", zap.String("path", s.snapshotPath), zap.Int("items", len(out)))
	return nil
}

// Close closes this run's log.
func (s *Store[T]) Close() error {
	if s.log == nil {
		return nil
	}
	err := s.log.Close()
	s.log = nil
	return err
}
