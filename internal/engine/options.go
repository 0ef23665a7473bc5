package engine

import (
	"time"

	"github.com/joshharrison/qsched/internal/config"
	"github.com/joshharrison/qsched/internal/qubo"
	"github.com/joshharrison/qsched/internal/solver"
)

// OptionsFromConfig maps a validated config onto run options, building the
// cascade preference order by name. Unknown names were already rejected by
// config validation.
func OptionsFromConfig(cfg *config.Config) Options {
	seed := resolveSeed(cfg.Solver.Seed)

	var solvers []solver.Solver
	for _, name := range cfg.Solver.Order {
		switch name {
		case "remote":
			solvers = append(solvers, solver.NewRemote("remote", cfg.Solver.Endpoint, cfg.Solver.Token))
		case "anneal":
			solvers = append(solvers, solver.NewAnnealer(seed))
		case "circuit":
			solvers = append(solvers, solver.NewCircuit(seed))
		case "inspired":
			solvers = append(solvers, solver.NewInspired(seed))
		case "fallback":
			solvers = append(solvers, solver.NewFallback())
		}
	}

	weights := qubo.DefaultWeights()
	if cfg.Weights.OneTaskOnce > 0 {
		weights.OneTaskOnce = cfg.Weights.OneTaskOnce
	}
	if cfg.Weights.NoOverlap > 0 {
		weights.NoOverlap = cfg.Weights.NoOverlap
	}
	if cfg.Weights.ResourceCapacity > 0 {
		weights.ResourceCapacity = cfg.Weights.ResourceCapacity
	}
	if cfg.Weights.Precedence > 0 {
		weights.Precedence = cfg.Weights.Precedence
	}
	if cfg.Weights.Objective > 0 {
		weights.Objective = cfg.Weights.Objective
	}

	return Options{
		Weights:           weights,
		Solvers:           solvers,
		PerSolverTimeout:  cfg.Solver.PerSolverTimeout(),
		GlobalTimeout:     cfg.Solver.GlobalTimeout(),
		MaxVariables:      cfg.Decompose.MaxVariables,
		MaxParallel:       cfg.Decompose.MaxParallel,
		QuotaBudget:       cfg.Solver.QuotaBudget,
		MaxRepairAttempts: cfg.Repair.MaxAttempts,
	}
}

// resolveSeed keeps an explicit seed verbatim for reproducibility; zero draws
// one from the clock.
func resolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}
