package solver

import (
	"context"
	"math"
	"math/rand"

	"github.com/joshharrison/qsched/internal/qubo"
)

// Inspired is a quantum-inspired tabu search: steepest single-bit flips with
// a tabu tenure to tunnel out of local minima, and aspiration so a tabu move
// that reaches a new global best is still taken.
type Inspired struct {
	MaxIter int
	Tenure  int
	Stall   int

	seed int64
	jobs *jobStore
}

// NewInspired returns a tabu-search solver with stock parameters.
func NewInspired(seed int64) *Inspired {
	return &Inspired{
		MaxIter: 2000,
		Tenure:  8,
		Stall:   200,
		seed:    seed,
		jobs:    newJobStore(),
	}
}

func (s *Inspired) Name() string { return "inspired" }
func (s *Inspired) Cost() int    { return 0 }

func (s *Inspired) Submit(ctx context.Context, p *qubo.Problem) (JobID, error) {
	id := s.jobs.create()
	go func() {
		s.jobs.setRunning(id)
		r, err := s.solve(ctx, p)
		s.jobs.finish(id, r, err)
	}()
	return id, nil
}

func (s *Inspired) Poll(ctx context.Context, id JobID) (Status, error) {
	return s.jobs.status(id)
}

func (s *Inspired) Fetch(ctx context.Context, id JobID) (*Result, error) {
	return s.jobs.take(id)
}

func (s *Inspired) Release(id JobID) { s.jobs.release(id) }

func (s *Inspired) solve(ctx context.Context, p *qubo.Problem) (*Result, error) {
	l := newLandscape(p)
	if l.n == 0 {
		return &Result{Energy: l.offset}, nil
	}
	rng := rand.New(rand.NewSource(s.seed))

	bits := make([]int, l.n)
	for i := range bits {
		bits[i] = rng.Intn(2)
	}
	energy := l.energy(bits)

	best := append([]int(nil), bits...)
	bestEnergy := energy
	tabuUntil := make([]int, l.n)
	sinceImproved := 0
	iterations := 0

	for iter := 0; iter < s.MaxIter; iter++ {
		if iter%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		// Steepest admissible flip; tabu moves qualify only via aspiration.
		bestFlip := -1
		bestDelta := math.Inf(1)
		for i := 0; i < l.n; i++ {
			d := l.delta(bits, i)
			if tabuUntil[i] > iter && energy+d >= bestEnergy {
				continue
			}
			if d < bestDelta {
				bestDelta = d
				bestFlip = i
			}
		}
		if bestFlip < 0 {
			break
		}

		bits[bestFlip] = 1 - bits[bestFlip]
		energy += bestDelta
		tabuUntil[bestFlip] = iter + s.Tenure
		iterations++

		if energy < bestEnergy {
			bestEnergy = energy
			best = append(best[:0], bits...)
			sinceImproved = 0
		} else {
			sinceImproved++
			if sinceImproved > s.Stall {
				break
			}
		}
	}

	return &Result{Bits: best, Energy: bestEnergy, Iterations: iterations}, nil
}
