// Package solver provides interchangeable QUBO solving backends behind a
// single three-call contract (submit, poll, fetch) plus the preference-order
// cascade that owns retry and fallback policy.
package solver

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/joshharrison/qsched/internal/qubo"
)

// ErrUnavailable marks transport, auth, or quota trouble on a backend. It is
// recoverable: the cascade logs it and moves to the next solver.
var ErrUnavailable = errors.New("solver unavailable")

// JobID is an opaque handle for a submitted job.
type JobID string

// Status of a submitted job.
type Status string

const (
	StatusQueued    Status = "Queued"
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	StatusTimedOut  Status = "TimedOut"
)

// Result is a raw solution: the bit vector, its energy, and solve
// diagnostics.
type Result struct {
	Bits       []int     `json:"solutionBits"`
	Energy     float64   `json:"energy"`
	Iterations int       `json:"iterations,omitempty"`
	History    []float64 `json:"history,omitempty"`
}

// Solver is the uniform contract every backend implements, quantum or not.
type Solver interface {
	Name() string
	// Cost is the quota charge per submission. Local heuristics are free.
	Cost() int
	Submit(ctx context.Context, p *qubo.Problem) (JobID, error)
	Poll(ctx context.Context, id JobID) (Status, error)
	Fetch(ctx context.Context, id JobID) (*Result, error)
}

// Releaser is implemented by backends holding local job state. The cascade
// releases jobs it abandons so state never outlives the attempt.
type Releaser interface {
	Release(id JobID)
}

// job tracks one in-flight or finished local solve.
type job struct {
	status Status
	result *Result
	err    error
}

// jobStore is the shared bookkeeping for in-process backends. Job state is
// released when fetched or when the cascade abandons the attempt.
type jobStore struct {
	mu   sync.Mutex
	jobs map[JobID]*job
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[JobID]*job)}
}

func (s *jobStore) create() JobID {
	id := JobID(uuid.NewString())
	s.mu.Lock()
	s.jobs[id] = &job{status: StatusQueued}
	s.mu.Unlock()
	return id
}

func (s *jobStore) setRunning(id JobID) {
	s.mu.Lock()
	if j, ok := s.jobs[id]; ok {
		j.status = StatusRunning
	}
	s.mu.Unlock()
}

func (s *jobStore) finish(id JobID, r *Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		j.status = StatusTimedOut
		j.err = err
	case err != nil:
		j.status = StatusFailed
		j.err = err
	default:
		j.status = StatusSucceeded
		j.result = r
	}
}

func (s *jobStore) status(id JobID) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return "", errors.New("unknown job")
	}
	return j.status, nil
}

// take returns the result and releases the job state.
func (s *jobStore) take(id JobID) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, errors.New("unknown job")
	}
	delete(s.jobs, id)
	if j.err != nil {
		return nil, j.err
	}
	if j.result == nil {
		return nil, errors.New("job has no result yet")
	}
	return j.result, nil
}

// release drops job state without fetching, for aborted attempts.
func (s *jobStore) release(id JobID) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}
