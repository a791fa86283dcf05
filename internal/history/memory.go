package history

import "sync"

// MemoryStore implements Store using an in-memory ring buffer.
// Nothing survives the process; used for STORAGE=memory and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	maxRows int
	head    int // next write position
	count   int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(maxRows int) *MemoryStore {
	if maxRows <= 0 {
		maxRows = MaxEntries
	}
	return &MemoryStore{
		entries: make([]Entry, maxRows),
		maxRows: maxRows,
	}
}

// Append adds an entry, overwriting the oldest once full.
func (s *MemoryStore) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[s.head] = e
	s.head = (s.head + 1) % s.maxRows
	if s.count < s.maxRows {
		s.count++
	}
	return nil
}

// List returns entries oldest first.
func (s *MemoryStore) List() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, s.count)
	start := (s.head - s.count + s.maxRows) % s.maxRows
	for i := 0; i < s.count; i++ {
		out = append(out, s.entries[(start+i)%s.maxRows])
	}
	return out, nil
}

// Clear empties the ring.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]Entry, s.maxRows)
	s.head = 0
	s.count = 0
	return nil
}

// Close is a no-op for memory store.
func (s *MemoryStore) Close() error {
	return nil
}
