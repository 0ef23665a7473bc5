package solver

import (
	"context"
	"math"
	"math/rand"

	"github.com/joshharrison/qsched/internal/qubo"
)

// Annealer seeks low-energy states with simulated annealing: random restarts,
// geometric cooling, Metropolis acceptance. Seeded so runs are reproducible.
type Annealer struct {
	Restarts int
	Sweeps   int
	T0       float64
	Cooling  float64

	seed int64
	jobs *jobStore
}

// NewAnnealer returns an annealer with stock parameters and the given seed.
func NewAnnealer(seed int64) *Annealer {
	return &Annealer{
		Restarts: 4,
		Sweeps:   300,
		T0:       10,
		Cooling:  0.97,
		seed:     seed,
		jobs:     newJobStore(),
	}
}

func (a *Annealer) Name() string { return "annealer" }
func (a *Annealer) Cost() int    { return 1 }

func (a *Annealer) Submit(ctx context.Context, p *qubo.Problem) (JobID, error) {
	id := a.jobs.create()
	go func() {
		a.jobs.setRunning(id)
		r, err := a.solve(ctx, p)
		a.jobs.finish(id, r, err)
	}()
	return id, nil
}

func (a *Annealer) Poll(ctx context.Context, id JobID) (Status, error) {
	return a.jobs.status(id)
}

func (a *Annealer) Fetch(ctx context.Context, id JobID) (*Result, error) {
	return a.jobs.take(id)
}

func (a *Annealer) Release(id JobID) { a.jobs.release(id) }

func (a *Annealer) solve(ctx context.Context, p *qubo.Problem) (*Result, error) {
	l := newLandscape(p)
	if l.n == 0 {
		return &Result{Energy: l.offset}, nil
	}
	rng := rand.New(rand.NewSource(a.seed))

	var best []int
	bestEnergy := math.Inf(1)
	var history []float64
	iterations := 0

	for restart := 0; restart < a.Restarts; restart++ {
		bits := make([]int, l.n)
		for i := range bits {
			bits[i] = rng.Intn(2)
		}
		energy := l.energy(bits)
		temp := a.T0

		for sweep := 0; sweep < a.Sweeps; sweep++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for k := 0; k < l.n; k++ {
				i := rng.Intn(l.n)
				d := l.delta(bits, i)
				if d < 0 || rng.Float64() < math.Exp(-d/temp) {
					bits[i] = 1 - bits[i]
					energy += d
				}
			}
			temp *= a.Cooling
			iterations++
			if energy < bestEnergy {
				bestEnergy = energy
				best = append([]int(nil), bits...)
			}
		}
		history = append(history, bestEnergy)
	}

	return &Result{Bits: best, Energy: bestEnergy, Iterations: iterations, History: history}, nil
}
