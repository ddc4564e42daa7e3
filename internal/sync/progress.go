// Package sync runs supplier catalog synchronization and tracks its
// progress per user so the dashboard can poll while a run is active.
package sync

import (
	"sync"
	"time"
)

// Status values for a sync run.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

// Progress is a snapshot of one user's sync run.
type Progress struct {
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Success   int       `json:"success"`
	Errors    int       `json:"errors"`
	LastError string    `json:"last_error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker holds sync progress keyed by user ID. The worker goroutine
// writes, API handlers read concurrently while polling.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]*Progress
}

func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]*Progress)}
}

// Begin registers a new run for the user. It fails when a run is
// already active so two syncs never interleave for the same user.
func (t *Tracker) Begin(userID string, total int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.runs[userID]; ok && p.Status == StatusRunning {
		return false
	}
	now := time.Now()
	t.runs[userID] = &Progress{
		Status:    StatusRunning,
		Total:     total,
		StartedAt: now,
		UpdatedAt: now,
	}
	return true
}

// Step records the outcome of one processed product.
func (t *Tracker) Step(userID string, ok bool, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, found := t.runs[userID]
	if !found {
		return
	}
	p.Processed++
	if ok {
		p.Success++
	} else {
		p.Errors++
		if errMsg != "" {
			p.LastError = errMsg
		}
	}
	p.UpdatedAt = time.Now()
}

// Finish marks the run completed or failed.
func (t *Tracker) Finish(userID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, found := t.runs[userID]
	if !found {
		return
	}
	if err != nil {
		p.Status = StatusError
		p.LastError = err.Error()
	} else {
		p.Status = StatusDone
	}
	p.UpdatedAt = time.Now()
}

// Get returns a copy of the user's progress, or an idle snapshot when
// the user has never started a run.
func (t *Tracker) Get(userID string) Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if p, ok := t.runs[userID]; ok {
		return *p
	}
	return Progress{Status: StatusIdle}
}
