// Package engine drives a full scheduling run: validate, encode, solve
// through the cascade, decode, and reconcile, with decomposition when the
// instance exceeds the variable ceiling.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joshharrison/qsched/internal/decode"
	"github.com/joshharrison/qsched/internal/decompose"
	"github.com/joshharrison/qsched/internal/feedback"
	"github.com/joshharrison/qsched/internal/model"
	"github.com/joshharrison/qsched/internal/qubo"
	"github.com/joshharrison/qsched/internal/solver"
)

// ErrSchedulingFailed marks a run whose best-effort schedule still violates a
// hard constraint. The partial result is returned alongside.
var ErrSchedulingFailed = errors.New("scheduling failed")

// Options configures a run. Zero values get sensible defaults in New.
type Options struct {
	Weights qubo.Weights

	// Solvers is the cascade preference order. A classical fallback is
	// always present even when the list omits one.
	Solvers          []solver.Solver
	PerSolverTimeout time.Duration
	GlobalTimeout    time.Duration

	// MaxVariables bounds each encoded sub-problem; instances above it are
	// decomposed. Zero disables decomposition.
	MaxVariables int
	MaxParallel  int

	// QuotaBudget caps total paid solver charges for the run. Zero means
	// unlimited.
	QuotaBudget int64

	MaxRepairAttempts int

	// Feedback, when set, adjusts penalty weights before the run and records
	// the outcome after it.
	Feedback *feedback.State

	// Logf receives progress and recoverable-event lines. Defaults to stderr.
	Logf func(format string, args ...any)
}

// RunResult is everything a run produced: the schedule, its verdict, and the
// metrics the caller reports on.
type RunResult struct {
	Schedule    model.Schedule     `json:"schedule"`
	Valid       bool               `json:"valid"`
	Violations  []decode.Violation `json:"violations,omitempty"`
	Energy      float64            `json:"energy"`
	Makespan    int                `json:"makespan"`
	Utilization map[string]float64 `json:"resourceUtilizationByTag"`

	SubProblems int           `json:"subProblems"`
	SolverNames []string      `json:"solverNames"`
	QuotaUsed   int64         `json:"quotaUsed"`
	Elapsed     time.Duration `json:"elapsedNs"`
}

// Engine owns the cascade and quota ledger across runs.
type Engine struct {
	opts    Options
	quota   *solver.Ledger
	cascade *solver.Cascade
}

// New builds an engine. With no solvers configured the cascade holds the
// annealer, the tabu backend, and the classical fallback, in that order.
func New(opts Options) *Engine {
	if opts.Weights == (qubo.Weights{}) {
		opts.Weights = qubo.DefaultWeights()
	}
	if len(opts.Solvers) == 0 {
		opts.Solvers = []solver.Solver{
			solver.NewAnnealer(0),
			solver.NewInspired(0),
			solver.NewFallback(),
		}
	}
	if opts.PerSolverTimeout == 0 {
		opts.PerSolverTimeout = 10 * time.Second
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	if opts.MaxRepairAttempts <= 0 {
		opts.MaxRepairAttempts = 3
	}

	quota := solver.NewLedger(opts.QuotaBudget)
	cascade := solver.NewCascade(opts.Solvers, opts.PerSolverTimeout, quota)
	cascade.Logf = opts.Logf

	return &Engine{opts: opts, quota: quota, cascade: cascade}
}

func (e *Engine) logf(format string, args ...any) {
	if e.opts.Logf != nil {
		e.opts.Logf(format, args...)
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

type subOutcome struct {
	index  int
	sched  model.Schedule
	name   string
	energy float64
	err    error
}

// Run schedules the instance end to end. The returned result always carries
// a schedule; when it still violates a hard constraint after reconciliation
// and repair, the error wraps ErrSchedulingFailed and the result holds the
// best effort.
func (e *Engine) Run(ctx context.Context, in *model.Instance) (*RunResult, error) {
	started := time.Now()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	if e.opts.GlobalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.GlobalTimeout)
		defer cancel()
	}

	weights := e.opts.Weights
	if e.opts.Feedback != nil {
		weights = e.opts.Feedback.Adjust(weights)
	}

	subs, err := decompose.Decompose(in, e.opts.MaxVariables)
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}
	if len(subs) > 1 {
		e.logf("instance decomposed into %d sub-problems", len(subs))
	}

	// Bounded worker pool: each sub-problem solves independently, results
	// are collected and recombined strictly by index.
	sem := make(chan struct{}, e.opts.MaxParallel)
	done := make(chan subOutcome, len(subs))
	for _, sub := range subs {
		go func(sub decompose.SubProblem) {
			sem <- struct{}{}
			defer func() { <-sem }()
			done <- e.solveSub(ctx, sub, weights)
		}(sub)
	}

	solutions := make([]model.Schedule, len(subs))
	names := make([]string, len(subs))
	totalEnergy := 0.0
	for range subs {
		out := <-done
		if out.err != nil {
			return nil, out.err
		}
		solutions[out.index] = out.sched
		names[out.index] = out.name
		totalEnergy += out.energy
	}

	sched := decompose.Recombine(subs, solutions)
	sched, vr := e.reconcile(ctx, in, sched, weights, &names)

	result := &RunResult{
		Schedule:    sched,
		Valid:       vr.Valid,
		Violations:  vr.Violations,
		Energy:      totalEnergy,
		Makespan:    sched.Makespan(),
		Utilization: model.UtilizationByTag(in, sched),
		SubProblems: len(subs),
		SolverNames: names,
		QuotaUsed:   e.quota.Used(),
		Elapsed:     time.Since(started),
	}

	if e.opts.Feedback != nil {
		e.opts.Feedback.Record(feedback.Outcome{
			Valid:      vr.Valid,
			Violations: vr.Violations,
			Energy:     totalEnergy,
			Makespan:   result.Makespan,
			Solver:     firstName(names),
		})
	}

	if !vr.Valid {
		return result, fmt.Errorf("%w: %v", ErrSchedulingFailed, vr.Err())
	}
	return result, nil
}

// solveSub encodes and solves one sub-problem. The cascade cannot fail, so
// the only error paths are encoding ones.
func (e *Engine) solveSub(ctx context.Context, sub decompose.SubProblem, w qubo.Weights) subOutcome {
	p, err := qubo.Encode(sub.Inst, w)
	if err != nil {
		return subOutcome{index: sub.Index, err: fmt.Errorf("encode sub-problem %d: %w", sub.Index, err)}
	}
	p.Terms = append(p.Terms, e.preferenceTerms(p, sub.Inst)...)
	r, name, err := e.cascade.Optimize(ctx, p)
	if err != nil {
		return subOutcome{index: sub.Index, err: fmt.Errorf("solve sub-problem %d: %w", sub.Index, err)}
	}
	return subOutcome{
		index:  sub.Index,
		sched:  decode.Decode(p, r.Bits, sub.Inst),
		name:   name,
		energy: r.Energy,
	}
}

// reconcile drives seam re-solves over the offending tasks with amplified
// weights for the violated classes, then falls back to greedy repair. The
// best schedule seen is returned either way.
func (e *Engine) reconcile(ctx context.Context, in *model.Instance, sched model.Schedule, w qubo.Weights, names *[]string) (model.Schedule, decode.ValidationResult) {
	vr := decode.Validate(in, sched)

	for attempt := 0; !vr.Valid && attempt < e.opts.MaxRepairAttempts; attempt++ {
		offending := decode.OffendingTasks(in, vr)
		if len(offending) == 0 {
			break
		}
		e.logf("reconciling %d conflicting tasks (attempt %d)", len(offending), attempt+1)

		seam, err := decompose.BuildSeam(in, sched, offending, amplify(w, vr))
		if err != nil {
			e.logf("seam build failed: %v", err)
			break
		}
		seam.Problem.Terms = append(seam.Problem.Terms, e.preferenceTerms(seam.Problem, seam.Inst)...)
		r, name, err := e.cascade.Optimize(ctx, seam.Problem)
		if err != nil {
			e.logf("seam solve failed: %v", err)
			break
		}
		*names = append(*names, name)

		resolved := decode.Decode(seam.Problem, r.Bits, seam.Inst)
		candidate := seam.Merge(sched, resolved)
		cvr := decode.Validate(in, candidate)
		if len(cvr.Violations) <= len(vr.Violations) {
			sched, vr = candidate, cvr
		}
	}

	if !vr.Valid {
		if repaired, ok := decode.Repair(in, sched, e.opts.MaxRepairAttempts*2); ok {
			sched = repaired
			vr = decode.Validate(in, sched)
		}
	}
	return sched, vr
}

// preferenceTerms turns recorded pair outcomes into soft linear nudges on
// the matching assignment variables. Hard constraints are untouched.
func (e *Engine) preferenceTerms(p *qubo.Problem, in *model.Instance) []qubo.Term {
	if e.opts.Feedback == nil {
		return nil
	}
	var out []qubo.Term
	for id := 0; id < p.NumVariables(); id++ {
		key := p.Key(id)
		bias := e.opts.Feedback.PairBias(in.Tasks[key.TaskIdx].ID, p.AgentIDs[key.AgentIdx])
		if bias != 0 {
			out = append(out, qubo.Term{Coefficient: bias, IDs: []int{id}})
		}
	}
	return out
}

// amplify raises the weight of each violated class by half.
func amplify(w qubo.Weights, vr decode.ValidationResult) qubo.Weights {
	out := w
	for _, v := range vr.Violations {
		switch v.Class {
		case decode.ClassAssignment:
			out.OneTaskOnce = w.OneTaskOnce * 1.5
		case decode.ClassOverlap:
			out.NoOverlap = w.NoOverlap * 1.5
		case decode.ClassCapacity:
			out.ResourceCapacity = w.ResourceCapacity * 1.5
		case decode.ClassPrecedence:
			out.Precedence = w.Precedence * 1.5
		}
	}
	return out
}

// QuotaUsed reports the charges accumulated across runs of this engine.
func (e *Engine) QuotaUsed() int64 { return e.quota.Used() }

func firstName(names []string) string {
	for _, n := range names {
		if n != "" {
			return n
		}
	}
	return ""
}
