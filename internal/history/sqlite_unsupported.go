//go:build mips64 || mips64le || ppc64 || s390x

package history

import (
	"errors"
	"log/slog"
	"path/filepath"
)

var errSQLiteUnavailable = errors.New("SQLite history is not supported on this platform, use file or memory storage instead")

// SQLiteStore is unavailable on this platform.
type SQLiteStore struct{}

// SQLitePath is the database file a SQLiteStore rooted at dir uses.
func SQLitePath(dir string) string {
	return filepath.Join(dir, RecordKey+".sqlite")
}

// NewSQLiteStore always fails on this platform.
func NewSQLiteStore(path string, maxRows int, logger *slog.Logger) (*SQLiteStore, error) {
	return nil, errSQLiteUnavailable
}

func (s *SQLiteStore) Append(e Entry) error   { return errSQLiteUnavailable }
func (s *SQLiteStore) List() ([]Entry, error) { return nil, errSQLiteUnavailable }
func (s *SQLiteStore) Clear() error           { return errSQLiteUnavailable }
func (s *SQLiteStore) Close() error           { return nil }
