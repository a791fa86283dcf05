package lifecycle

import (
	"sync"
	"time"
)

// ActionInfo summarises one predict action.
type ActionInfo struct {
	ID        string     `json:"id"`
	Model     string     `json:"model,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Attempts  int        `json:"attempts"`
	Outcome   string     `json:"outcome,omitempty"` // "success" or an error kind
	Error     string     `json:"error,omitempty"`
	Stale     bool       `json:"stale,omitempty"`
}

// ActionLog keeps the in-flight action and a ring of recently finished ones.
// A nil *ActionLog records nothing.
type ActionLog struct {
	mu          sync.RWMutex
	inFlight    map[string]*ActionInfo
	recent      []ActionInfo // circular buffer
	recentHead  int          // index of oldest entry (next to overwrite)
	recentCount int
	now         func() time.Time
}

// NewActionLog creates a log retaining the last maxRecent finished actions.
func NewActionLog(maxRecent int) *ActionLog {
	if maxRecent <= 0 {
		maxRecent = 50
	}
	return &ActionLog{
		inFlight: make(map[string]*ActionInfo),
		recent:   make([]ActionInfo, maxRecent),
		now:      time.Now,
	}
}

func (l *ActionLog) start(id, model string, at time.Time) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.inFlight[id] = &ActionInfo{ID: id, Model: model, StartTime: at}
	l.mu.Unlock()
}

func (l *ActionLog) finish(id string, attempts int, outcome, errMsg string, stale bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.inFlight[id]
	if !ok {
		return
	}
	delete(l.inFlight, id)

	end := l.now()
	info.EndTime = &end
	info.Attempts = attempts
	info.Outcome = outcome
	info.Error = errMsg
	info.Stale = stale

	size := len(l.recent)
	if l.recentCount < size {
		l.recent[(l.recentHead+l.recentCount)%size] = *info
		l.recentCount++
		return
	}
	l.recent[l.recentHead] = *info
	l.recentHead = (l.recentHead + 1) % size
}

// ActionSnapshot is a point-in-time view of the log.
type ActionSnapshot struct {
	InFlight []ActionInfo `json:"in_flight"`
	Recent   []ActionInfo `json:"recent"` // newest first
}

// Snapshot returns in-flight and recent actions.
func (l *ActionLog) Snapshot() ActionSnapshot {
	snap := ActionSnapshot{InFlight: []ActionInfo{}, Recent: []ActionInfo{}}
	if l == nil {
		return snap
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, info := range l.inFlight {
		snap.InFlight = append(snap.InFlight, *info)
	}
	size := len(l.recent)
	for i := l.recentCount - 1; i >= 0; i-- {
		snap.Recent = append(snap.Recent, l.recent[(l.recentHead+i)%size])
	}
	return snap
}
