//go:build !mips64 && !mips64le && !ppc64 && !s390x

package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)

	"iris-predict/internal/iris"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    ts INTEGER NOT NULL,
    model_type TEXT NOT NULL DEFAULT '',
    features TEXT NOT NULL DEFAULT '[]',
    prediction TEXT NOT NULL DEFAULT 'null',
    label TEXT
);
`

// SQLiteStore implements Store using SQLite with WAL mode.
type SQLiteStore struct {
	db      *sql.DB
	maxRows int
	logger  *slog.Logger
}

// SQLitePath is the database file a SQLiteStore rooted at dir uses.
func SQLitePath(dir string) string {
	return filepath.Join(dir, RecordKey+".sqlite")
}

// NewSQLiteStore creates a new SQLite store at the given path.
func NewSQLiteStore(path string, maxRows int, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	// FULL sync: every append must survive a crash.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	if maxRows <= 0 {
		maxRows = MaxEntries
	}

	return &SQLiteStore{
		db:      db,
		maxRows: maxRows,
		logger:  logger,
	}, nil
}

// Append inserts an entry and prunes the oldest rows in the same transaction.
func (s *SQLiteStore) Append(e Entry) error {
	features, err := json.Marshal(e.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	pred, err := json.Marshal(e.Prediction)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO history (id, ts, model_type, features, prediction, label)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Timestamp.UnixMilli(), e.ModelType, string(features), string(pred), e.Label); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	res, err := tx.Exec(`
		DELETE FROM history WHERE seq NOT IN (
			SELECT seq FROM history ORDER BY seq DESC LIMIT ?
		)
	`, s.maxRows)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("pruned old history entries", "deleted", n)
	}
	return nil
}

// List returns entries oldest first.
func (s *SQLiteStore) List() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, ts, model_type, features, prediction, label
		FROM history ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear deletes every row.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var ts int64
	var features, pred string
	var label sql.NullString

	if err := row.Scan(&e.ID, &ts, &e.ModelType, &features, &pred, &label); err != nil {
		return Entry{}, err
	}
	e.Timestamp = time.UnixMilli(ts)
	e.Label = label.String

	if err := json.Unmarshal([]byte(features), &e.Features); err != nil {
		return Entry{}, fmt.Errorf("decode features: %w", err)
	}
	var p iris.Prediction
	if err := json.Unmarshal([]byte(pred), &p); err != nil {
		return Entry{}, fmt.Errorf("decode prediction: %w", err)
	}
	e.Prediction = p
	return e, nil
}
