// Package feedback tunes penalty weights from run outcomes. Violated
// constraint classes get their weights nudged up on the next run, classes
// that stayed clean drift back toward baseline, so repeated solves of
// similar instances converge on feasible schedules faster.
package feedback

import (
	"math"
	"sort"
	"sync"

	"github.com/joshharrison/qsched/internal/decode"
	"github.com/joshharrison/qsched/internal/qubo"
)

const (
	// Multiplier bounds relative to the base weights. Unbounded growth would
	// drown the objective term entirely.
	minFactor = 0.5
	maxFactor = 1.5

	raiseStep = 0.15
	decayStep = 0.05

	// Per-pair preference nudges stay an order of magnitude below the hard
	// penalty weights so they can steer ties but never buy a violation.
	biasStep = 0.2
	maxBias  = 1.0
)

// Outcome summarizes one run for the adapter.
type Outcome struct {
	Valid      bool               `json:"valid"`
	Violations []decode.Violation `json:"violations,omitempty"`
	Energy     float64            `json:"energy"`
	Makespan   int                `json:"makespan"`
	Solver     string             `json:"solver,omitempty"`
}

// State carries the per-class multipliers and per-pair preferences across
// runs. Safe for concurrent use.
type State struct {
	mu       sync.Mutex
	factors  map[decode.Class]float64
	pairBias map[string]float64
	runs     int
}

// NewState starts every multiplier at 1 and every pair unbiased.
func NewState() *State {
	return &State{
		factors: map[decode.Class]float64{
			decode.ClassAssignment: 1,
			decode.ClassOverlap:    1,
			decode.ClassCapacity:   1,
			decode.ClassPrecedence: 1,
		},
		pairBias: make(map[string]float64),
	}
}

// PairOutcome reports how one task/agent pairing worked out downstream.
type PairOutcome struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
	Success bool   `json:"success"`
}

// RecordPair folds a pairing outcome into the preference landscape. Bad
// pairings accumulate a positive linear bias on their assignment variables,
// good ones a negative bias, clamped to ±1.
func (s *State) RecordPair(o PairOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := o.TaskID + "\x00" + o.AgentID
	b := s.pairBias[key]
	if o.Success {
		b -= biasStep
	} else {
		b += biasStep
	}
	if b > maxBias {
		b = maxBias
	}
	if b < -maxBias {
		b = -maxBias
	}
	s.pairBias[key] = b
}

// PairBias returns the linear coefficient nudge for assigning the task to
// the agent. Zero means no recorded preference.
func (s *State) PairBias(taskID, agentID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairBias[taskID+"\x00"+agentID]
}

// Record folds one outcome into the state: raise the multiplier for each
// violated class, decay the rest toward 1.
func (s *State) Record(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++

	violated := make(map[decode.Class]bool)
	for _, v := range o.Violations {
		violated[v.Class] = true
	}
	for class, f := range s.factors {
		if violated[class] {
			f += raiseStep
		} else if f > 1 {
			f = math.Max(1, f-decayStep)
		} else if f < 1 {
			f = math.Min(1, f+decayStep)
		}
		s.factors[class] = clamp(f)
	}
}

// Adjust applies the current multipliers to a base weight set. The base is
// never mutated.
func (s *State) Adjust(base qubo.Weights) qubo.Weights {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := base
	out.OneTaskOnce = base.OneTaskOnce * s.factors[decode.ClassAssignment]
	out.NoOverlap = base.NoOverlap * s.factors[decode.ClassOverlap]
	out.ResourceCapacity = base.ResourceCapacity * s.factors[decode.ClassCapacity]
	out.Precedence = base.Precedence * s.factors[decode.ClassPrecedence]
	return out
}

// Runs reports how many outcomes have been recorded.
func (s *State) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Factors returns a stable snapshot of the multipliers for reporting.
func (s *State) Factors() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.factors))
	for class, f := range s.factors {
		out[string(class)] = f
	}
	return out
}

// Classes lists the tracked constraint classes in stable order.
func Classes() []decode.Class {
	out := []decode.Class{
		decode.ClassAssignment,
		decode.ClassOverlap,
		decode.ClassCapacity,
		decode.ClassPrecedence,
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func clamp(f float64) float64 {
	if f < minFactor {
		return minFactor
	}
	if f > maxFactor {
		return maxFactor
	}
	return f
}
