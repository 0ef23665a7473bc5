package solver

import (
	"context"
	"math"
	"math/bits"

	"github.com/joshharrison/qsched/internal/qubo"
)

// ExactLimit is the variable-count ceiling for exhaustive enumeration.
const ExactLimit = 16

// Fallback is the always-available classical solver: exact enumeration for
// tiny problems, deterministic greedy descent otherwise. It consumes no
// quota and never fails, which is what lets the cascade guarantee
// termination.
type Fallback struct {
	jobs *jobStore
}

// NewFallback returns the classical fallback solver.
func NewFallback() *Fallback {
	return &Fallback{jobs: newJobStore()}
}

func (f *Fallback) Name() string { return "fallback" }
func (f *Fallback) Cost() int    { return 0 }

func (f *Fallback) Submit(ctx context.Context, p *qubo.Problem) (JobID, error) {
	id := f.jobs.create()
	go func() {
		f.jobs.setRunning(id)
		r := f.Solve(p)
		f.jobs.finish(id, r, nil)
	}()
	return id, nil
}

func (f *Fallback) Poll(ctx context.Context, id JobID) (Status, error) {
	return f.jobs.status(id)
}

func (f *Fallback) Fetch(ctx context.Context, id JobID) (*Result, error) {
	return f.jobs.take(id)
}

func (f *Fallback) Release(id JobID) { f.jobs.release(id) }

// Solve runs synchronously. Exposed so the cascade can invoke the fallback
// directly once every other backend is exhausted or the deadline has passed.
func (f *Fallback) Solve(p *qubo.Problem) *Result {
	l := newLandscape(p)
	if l.n == 0 {
		return &Result{Energy: l.offset}
	}
	if l.n <= ExactLimit {
		return exact(l)
	}
	return greedy(l)
}

// exact walks all 2^n states in Gray-code order, so each step is a single
// bit flip with an O(degree) energy delta.
func exact(l *landscape) *Result {
	cur := make([]int, l.n)
	energy := l.energy(cur)

	best := append([]int(nil), cur...)
	bestEnergy := energy

	total := uint64(1) << uint(l.n)
	for k := uint64(1); k < total; k++ {
		i := bits.TrailingZeros64(k)
		energy += l.delta(cur, i)
		cur[i] = 1 - cur[i]
		if energy < bestEnergy {
			bestEnergy = energy
			best = append(best[:0], cur...)
		}
	}
	return &Result{Bits: best, Energy: bestEnergy, Iterations: int(total - 1)}
}

// greedy starts from all zeros and repeatedly takes the most-improving
// single flip (lowest id on ties) until no flip improves. Deterministic.
func greedy(l *landscape) *Result {
	cur := make([]int, l.n)
	energy := l.energy(cur)
	iterations := 0

	for {
		bestFlip := -1
		bestDelta := 0.0
		for i := 0; i < l.n; i++ {
			if d := l.delta(cur, i); d < bestDelta {
				bestDelta = d
				bestFlip = i
			}
		}
		if bestFlip < 0 || bestDelta >= 0 || math.IsNaN(bestDelta) {
			break
		}
		cur[bestFlip] = 1 - cur[bestFlip]
		energy += bestDelta
		iterations++
	}
	return &Result{Bits: cur, Energy: energy, Iterations: iterations}
}
