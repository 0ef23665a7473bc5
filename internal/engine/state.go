package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const stateDir = ".qsched"
const stateFile = "lastrun.json"

// RunState is the persisted record of the most recent run, written so
// `qsched status` can answer without re-solving anything.
type RunState struct {
	RunID       string     `json:"run_id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Status      string     `json:"status"` // "running", "completed", "failed"
	SubProblems int        `json:"sub_problems"`
	Solvers     []string   `json:"solvers,omitempty"`
	Makespan    int        `json:"makespan"`
	Valid       bool       `json:"valid"`
	QuotaUsed   int64      `json:"quota_used"`

	mu   sync.Mutex `json:"-"`
	path string     `json:"-"`
}

// NewRunState creates a fresh record with a generated run ID and persists it.
func NewRunState() (*RunState, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	s := &RunState{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Status:    "running",
		path:      filepath.Join(stateDir, stateFile),
	}
	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadRunState reads the last persisted record from disk.
func LoadRunState() (*RunState, error) {
	path := filepath.Join(stateDir, stateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run state: %w", err)
	}
	var s RunState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse run state: %w", err)
	}
	s.path = path
	return &s, nil
}

// StateExists checks whether a persisted record is present.
func StateExists() bool {
	_, err := os.Stat(filepath.Join(stateDir, stateFile))
	return err == nil
}

// Save persists the record to disk.
func (s *RunState) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// Finish folds the run result into the record and saves.
func (s *RunState) Finish(r *RunResult, runErr error) error {
	s.mu.Lock()
	now := time.Now()
	s.FinishedAt = &now
	if runErr != nil {
		s.Status = "failed"
	} else {
		s.Status = "completed"
	}
	if r != nil {
		s.SubProblems = r.SubProblems
		s.Solvers = r.SolverNames
		s.Makespan = r.Makespan
		s.Valid = r.Valid
		s.QuotaUsed = r.QuotaUsed
	}
	s.mu.Unlock()
	return s.Save()
}
