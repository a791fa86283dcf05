package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the history as a single JSON record on disk, the
// equivalent of one browser storage key. Every Append rewrites the record
// and syncs it before returning.
type FileStore struct {
	mu      sync.Mutex
	path    string
	maxRows int
	entries []Entry
	logger  *slog.Logger
}

// RecordPath is where a FileStore rooted at dir keeps its record.
func RecordPath(dir string) string {
	return filepath.Join(dir, RecordKey+".json")
}

// NewFileStore opens the record under dir, creating dir if needed. An
// unreadable or corrupt record is logged and treated as empty history.
func NewFileStore(dir string, maxRows int, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRows <= 0 {
		maxRows = MaxEntries
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	s := &FileStore{
		path:    RecordPath(dir),
		maxRows: maxRows,
		logger:  logger,
	}
	entries, err := s.read()
	if err != nil {
		logger.Warn("discarding unreadable history record", "path", s.path, "err", err)
		entries = nil
	}
	s.entries = trim(entries, maxRows)
	return s, nil
}

// Path returns the record file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) read() ([]Entry, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Append adds an entry, evicts beyond capacity and flushes synchronously.
func (s *FileStore) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := trim(append(append([]Entry(nil), s.entries...), e), s.maxRows)
	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

// List returns entries oldest first.
func (s *FileStore) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...), nil
}

// Reload re-reads the record, picking up writes by other processes.
func (s *FileStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return fmt.Errorf("reload history: %w", err)
	}
	s.entries = trim(entries, s.maxRows)
	return nil
}

// Clear removes every entry and flushes the empty record.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked([]Entry{}); err != nil {
		return err
	}
	s.entries = nil
	return nil
}

// Close is a no-op; every write is already durable.
func (s *FileStore) Close() error {
	return nil
}

// writeLocked replaces the record atomically. Caller must hold s.mu.
func (s *FileStore) writeLocked(entries []Entry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), RecordKey+".*.tmp")
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
