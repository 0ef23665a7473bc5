package httpd

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joshharrison/qsched/internal/engine"
	"github.com/joshharrison/qsched/internal/model"
)

// RunStatus is the lifecycle state of a submitted run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one submitted scheduling job.
type Run struct {
	ID          string            `json:"id"`
	Status      RunStatus         `json:"status"`
	SubmittedAt time.Time         `json:"submittedAt"`
	FinishedAt  *time.Time        `json:"finishedAt,omitempty"`
	Result      *engine.RunResult `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`

	instance *model.Instance
}

// Store is an in-memory run registry. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewStore creates an empty registry.
func NewStore() *Store {
	return &Store{runs: make(map[string]*Run)}
}

// Create registers a queued run for the instance and returns a snapshot.
func (s *Store) Create(in *model.Instance) Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := &Run{
		ID:          uuid.NewString(),
		Status:      RunQueued,
		SubmittedAt: time.Now(),
		instance:    in,
	}
	s.runs[run.ID] = run
	return *run
}

// Get returns a snapshot of the run.
func (s *Store) Get(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// SetStatus moves a run to the given lifecycle state.
func (s *Store) SetStatus(id string, status RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Status = status
	}
}

// Complete records the result. A run that finished with a best-effort
// schedule and a remaining violation error is completed, not failed; the
// verdict lives in the result itself.
func (s *Store) Complete(id string, result *engine.RunResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return
	}
	now := time.Now()
	run.FinishedAt = &now
	run.Result = result
	run.Status = RunCompleted
	if err != nil {
		run.Error = err.Error()
	}
}

// Fail records a run that produced no result at all.
func (s *Store) Fail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return
	}
	now := time.Now()
	run.FinishedAt = &now
	run.Status = RunFailed
	run.Error = err.Error()
}
