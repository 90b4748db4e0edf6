package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/filmmeta/internal/progress"
)

// RunStatus is the latest known state of a batch run.
type RunStatus struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Step      int       `json:"step"`
	Total     int       `json:"total"`
	Degraded  int       `json:"degraded"`
	LastTitle string    `json:"last_title,omitempty"`
	Note      string    `json:"note,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusSink keeps the status of every run seen in memory so the ops server
// can report it.
type StatusSink struct {
	mu     sync.RWMutex
	runs   map[[16]byte]*RunStatus
	latest [16]byte
}

// NewStatusSink constructs an empty StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{runs: make(map[[16]byte]*RunStatus)}
}

// Consume folds batch into the per-run status.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		st, ok := s.runs[evt.RunID]
		if !ok {
			st = &RunStatus{RunID: evt.RunUUID().String(), StartedAt: evt.TS}
			s.runs[evt.RunID] = st
		}
		s.latest = evt.RunID
		st.Stage = string(evt.Stage)
		st.UpdatedAt = evt.TS
		if evt.Total > 0 {
			st.Total = evt.Total
		}
		if evt.Note != "" {
			st.Note = evt.Note
		}
		if evt.Degraded > st.Degraded {
			st.Degraded = evt.Degraded
		}
		if !evt.IsItem() {
			continue
		}
		if evt.Step > st.Step {
			st.Step = evt.Step
		}
		st.LastTitle = evt.Title
		if evt.Stage == progress.StageItemDegraded {
			st.Degraded++
		}
	}
	return nil
}

// Latest returns the most recently updated run.
func (s *StatusSink) Latest() (RunStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.runs[s.latest]
	if !ok {
		return RunStatus{}, false
	}
	return *st, true
}

// Get returns the status for runID (textual UUID).
func (s *StatusSink) Get(runID string) (RunStatus, bool) {
	key := progress.ParseRunID(runID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.runs[key]
	if !ok {
		return RunStatus{}, false
	}
	return *st, true
}

// Close implements progress.Sink.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
