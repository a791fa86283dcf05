// Package history keeps the bounded log of successful predictions.
package history

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"iris-predict/internal/iris"
)

// MaxEntries is the number of most recent predictions retained.
const MaxEntries = 20

// RecordKey names the persisted record. The version suffix keeps older
// formats from being read as this one.
const RecordKey = "iris_history_v2"

// Entry is one successful prediction. Entries are never mutated after append.
type Entry struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"ts"`
	ModelType  string          `json:"model_type"`
	Features   []float64       `json:"features"`
	Prediction iris.Prediction `json:"prediction"`
	Label      string          `json:"label,omitempty"`
}

// NewEntry builds an entry from a rendered result. requested is the model
// the action asked for; it is used when the server does not echo one.
func NewEntry(ts time.Time, res iris.Result, requested string) Entry {
	features := make([]float64, len(res.Features))
	copy(features, res.Features)
	model := res.ModelType
	if model == "" {
		model = requested
	}
	return Entry{
		ID:         uuid.NewString(),
		Timestamp:  ts,
		ModelType:  model,
		Features:   features,
		Prediction: res.Prediction,
		Label:      res.Label(),
	}
}

// Store is the interface for history storage. Implementations keep at most
// their capacity of entries and drop the oldest first.
type Store interface {
	// Append records an entry and evicts the oldest beyond capacity.
	Append(e Entry) error

	// List returns retained entries, oldest first.
	List() ([]Entry, error)

	// Clear removes every entry.
	Clear() error

	// Close releases resources.
	Close() error
}

// trim keeps the newest max entries of entries.
func trim(entries []Entry, max int) []Entry {
	if len(entries) <= max {
		return entries
	}
	return append([]Entry(nil), entries[len(entries)-max:]...)
}

// Open returns the Store for a backend name: "file", "sqlite" or "memory".
func Open(backend, dir string, logger *slog.Logger) (Store, error) {
	switch backend {
	case "file", "":
		return NewFileStore(dir, MaxEntries, logger)
	case "sqlite":
		return NewSQLiteStore(SQLitePath(dir), MaxEntries, logger)
	case "memory":
		return NewMemoryStore(MaxEntries), nil
	default:
		return nil, fmt.Errorf("unknown history storage %q", backend)
	}
}
