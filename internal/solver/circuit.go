package solver

import (
	"context"
	"math"
	"math/rand"

	"github.com/joshharrison/qsched/internal/qubo"
)

// Circuit approximates a QAOA-style optimizer classically: alternating
// "phase" sweeps (greedy flips gated by a gamma threshold) and "mixing"
// perturbations (random flips with probability beta), over several starts,
// with a per-iteration energy history and convergence cutoff. The layer
// structure mirrors the circuit it stands in for; the arithmetic is plain.
type Circuit struct {
	Layers    int
	MaxIter   int
	Starts    int
	Converge  float64
	GammaInit float64
	BetaInit  float64

	seed int64
	jobs *jobStore
}

// NewCircuit returns a circuit-style solver with stock parameters.
func NewCircuit(seed int64) *Circuit {
	return &Circuit{
		Layers:    2,
		MaxIter:   100,
		Starts:    3,
		Converge:  1e-5,
		GammaInit: 1.0,
		BetaInit:  0.3,
		seed:      seed,
		jobs:      newJobStore(),
	}
}

func (c *Circuit) Name() string { return "circuit" }
func (c *Circuit) Cost() int    { return 1 }

func (c *Circuit) Submit(ctx context.Context, p *qubo.Problem) (JobID, error) {
	id := c.jobs.create()
	go func() {
		c.jobs.setRunning(id)
		r, err := c.solve(ctx, p)
		c.jobs.finish(id, r, err)
	}()
	return id, nil
}

func (c *Circuit) Poll(ctx context.Context, id JobID) (Status, error) {
	return c.jobs.status(id)
}

func (c *Circuit) Fetch(ctx context.Context, id JobID) (*Result, error) {
	return c.jobs.take(id)
}

func (c *Circuit) Release(id JobID) { c.jobs.release(id) }

func (c *Circuit) solve(ctx context.Context, p *qubo.Problem) (*Result, error) {
	l := newLandscape(p)
	if l.n == 0 {
		return &Result{Energy: l.offset}, nil
	}
	rng := rand.New(rand.NewSource(c.seed))

	var best []int
	bestEnergy := math.Inf(1)
	var history []float64
	iterations := 0

	for start := 0; start < c.Starts; start++ {
		bits := make([]int, l.n)
		for i := range bits {
			bits[i] = rng.Intn(2)
		}
		energy := l.energy(bits)
		gamma, beta := c.GammaInit, c.BetaInit
		prev := math.Inf(1)

		for iter := 0; iter < c.MaxIter; iter++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for layer := 0; layer < c.Layers; layer++ {
				// Phase separation: accept flips improving by more than
				// -gamma, so early layers take broad steps and late layers
				// only strict descents.
				for i := 0; i < l.n; i++ {
					if d := l.delta(bits, i); d < -gamma {
						bits[i] = 1 - bits[i]
						energy += d
					}
				}
				// Mixing: random exploration proportional to beta.
				for i := 0; i < l.n; i++ {
					if rng.Float64() < beta {
						d := l.delta(bits, i)
						bits[i] = 1 - bits[i]
						energy += d
					}
				}
			}
			// Final strict-descent pass for this iteration.
			for i := 0; i < l.n; i++ {
				if d := l.delta(bits, i); d < 0 {
					bits[i] = 1 - bits[i]
					energy += d
				}
			}

			iterations++
			history = append(history, energy)
			if energy < bestEnergy {
				bestEnergy = energy
				best = append([]int(nil), bits...)
			}
			if math.Abs(prev-energy) < c.Converge {
				break
			}
			prev = energy

			gamma *= 0.9
			beta *= 0.9
		}
	}

	return &Result{Bits: best, Energy: bestEnergy, Iterations: iterations, History: history}, nil
}
