package solver

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joshharrison/qsched/internal/qubo"
)

// Cascade tries solvers in preference order and owns all retry/fallback
// policy; individual backends never retry internally. Each attempt is
// bounded by PerSolverTimeout. Submit, poll, and fetch failures are
// recoverable events: they are logged and the cascade falls through to the
// next solver, terminating at the classical fallback, which always answers.
type Cascade struct {
	Solvers          []Solver
	PerSolverTimeout time.Duration
	PollInterval     time.Duration
	Quota            *Ledger

	// BestOf keeps attempting later solvers after a success and returns the
	// lowest-energy result seen, bounded by the caller's context.
	BestOf bool

	// Logf receives recoverable-event log lines. Defaults to stderr.
	Logf func(format string, args ...any)

	fallback *Fallback
}

// NewCascade builds a cascade over the given preference order. A classical
// fallback is appended when the order does not already include one.
func NewCascade(solvers []Solver, perSolverTimeout time.Duration, quota *Ledger) *Cascade {
	c := &Cascade{
		Solvers:          solvers,
		PerSolverTimeout: perSolverTimeout,
		PollInterval:     2 * time.Millisecond,
		Quota:            quota,
	}
	for _, s := range solvers {
		if f, ok := s.(*Fallback); ok {
			c.fallback = f
		}
	}
	if c.fallback == nil {
		c.fallback = NewFallback()
		c.Solvers = append(c.Solvers, c.fallback)
	}
	return c
}

func (c *Cascade) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// Optimize runs the preference order against the problem and returns the
// best raw solution along with the name of the solver that produced it. It
// cannot fail while the fallback exists: once the context expires or every
// backend errors out, the fallback solves synchronously, detached from the
// dead deadline.
func (c *Cascade) Optimize(ctx context.Context, p *qubo.Problem) (*Result, string, error) {
	var best *Result
	bestName := ""

	for _, s := range c.Solvers {
		if ctx.Err() != nil {
			break
		}
		if c.Quota != nil && s.Cost() > 0 && !c.Quota.TryCharge(s.Cost()) {
			c.logf("solver %s skipped: quota budget exhausted", s.Name())
			continue
		}

		r, err := c.attempt(ctx, s, p)
		if err != nil {
			c.logf("solver %s failed (falling through): %v", s.Name(), err)
			continue
		}
		if best == nil || r.Energy < best.Energy {
			best, bestName = r, s.Name()
		}
		if !c.BestOf {
			return best, bestName, nil
		}
	}

	if best != nil {
		return best, bestName, nil
	}

	// Every backend failed or the deadline passed mid-cascade. The fallback
	// answer is still owed.
	r := c.fallback.Solve(p)
	return r, c.fallback.Name(), nil
}

// attempt drives one solver through the submit/poll/fetch lifecycle under
// the per-solver timeout.
func (c *Cascade) attempt(ctx context.Context, s Solver, p *qubo.Problem) (*Result, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if c.PerSolverTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, c.PerSolverTimeout)
		defer cancel()
	}

	id, err := s.Submit(attemptCtx, p)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	interval := c.PollInterval
	if interval <= 0 {
		interval = 2 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-attemptCtx.Done():
			c.abandon(s, id)
			return nil, fmt.Errorf("job %s: %w", id, attemptCtx.Err())
		case <-ticker.C:
		}

		status, err := s.Poll(attemptCtx, id)
		if err != nil {
			c.abandon(s, id)
			return nil, fmt.Errorf("poll job %s: %w", id, err)
		}
		switch status {
		case StatusSucceeded:
			r, err := s.Fetch(attemptCtx, id)
			if err != nil {
				c.abandon(s, id)
				return nil, fmt.Errorf("fetch job %s: %w", id, err)
			}
			return r, nil
		case StatusFailed, StatusTimedOut:
			c.abandon(s, id)
			return nil, fmt.Errorf("job %s ended with status %s", id, status)
		}
	}
}

// abandon drops a backend's state for a job the cascade walks away from.
// Fetch releases state on the success path; every other exit owes this call.
func (c *Cascade) abandon(s Solver, id JobID) {
	if rel, ok := s.(Releaser); ok {
		rel.Release(id)
	}
}
