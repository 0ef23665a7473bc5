package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidInstance marks malformed input caught before encoding. It is
// fatal: the caller gets it immediately and nothing is retried.
var ErrInvalidInstance = errors.New("invalid instance")

// TaskByID returns the task with the given ID, or nil.
func (in *Instance) TaskByID(id string) *Task {
	for i := range in.Tasks {
		if in.Tasks[i].ID == id {
			return &in.Tasks[i]
		}
	}
	return nil
}

// AgentByID returns the agent with the given ID, or nil.
func (in *Instance) AgentByID(id string) *Agent {
	for i := range in.Agents {
		if in.Agents[i].ID == id {
			return &in.Agents[i]
		}
	}
	return nil
}

// FleetCapacity returns the aggregate per-tag capacity across all agents.
func (in *Instance) FleetCapacity() map[string]int {
	fleet := make(map[string]int)
	for _, a := range in.Agents {
		for tag, cap := range a.Capacity {
			fleet[tag] += cap
		}
	}
	return fleet
}

// SerialLowerBound is the horizon needed to run every task back to back on a
// single agent: the trivial upper bound on makespan.
func (in *Instance) SerialLowerBound() int {
	sum := 0
	for _, t := range in.Tasks {
		sum += t.Duration
	}
	return sum
}

// EffectiveHorizon returns the caller-supplied horizon, or derives the serial
// upper bound when none was given.
func (in *Instance) EffectiveHorizon() int {
	if in.Horizon > 0 {
		return in.Horizon
	}
	return in.SerialLowerBound()
}

// Validate checks the instance before any encoding happens. Every failure
// wraps ErrInvalidInstance so callers can fail fast without classifying.
func (in *Instance) Validate() error {
	if len(in.Tasks) == 0 {
		return fmt.Errorf("%w: no tasks", ErrInvalidInstance)
	}
	if len(in.Agents) == 0 {
		return fmt.Errorf("%w: no agents", ErrInvalidInstance)
	}

	seen := make(map[string]bool, len(in.Tasks))
	for _, t := range in.Tasks {
		if t.ID == "" {
			return fmt.Errorf("%w: task with empty id", ErrInvalidInstance)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: duplicate task id %q", ErrInvalidInstance, t.ID)
		}
		seen[t.ID] = true
		if t.Duration <= 0 {
			return fmt.Errorf("%w: task %s has non-positive duration %d", ErrInvalidInstance, t.ID, t.Duration)
		}
		if t.Release < 0 {
			return fmt.Errorf("%w: task %s has negative release %d", ErrInvalidInstance, t.ID, t.Release)
		}
		if t.Deadline > 0 && t.Deadline < t.Release+t.Duration {
			return fmt.Errorf("%w: task %s cannot fit between release %d and deadline %d",
				ErrInvalidInstance, t.ID, t.Release, t.Deadline)
		}
		for _, pred := range t.Predecessors {
			if pred == t.ID {
				return fmt.Errorf("%w: task %s depends on itself", ErrInvalidInstance, t.ID)
			}
		}
	}

	agentSeen := make(map[string]bool, len(in.Agents))
	for _, a := range in.Agents {
		if a.ID == "" {
			return fmt.Errorf("%w: agent with empty id", ErrInvalidInstance)
		}
		if agentSeen[a.ID] {
			return fmt.Errorf("%w: duplicate agent id %q", ErrInvalidInstance, a.ID)
		}
		agentSeen[a.ID] = true
	}

	// Unknown predecessors are malformed input, not missing edges.
	for _, t := range in.Tasks {
		for _, pred := range t.Predecessors {
			if !seen[pred] {
				return fmt.Errorf("%w: task %s references unknown predecessor %q", ErrInvalidInstance, t.ID, pred)
			}
		}
	}

	// Per-tag demand must fit the fleet, or no assignment can ever satisfy it.
	fleet := in.FleetCapacity()
	for _, t := range in.Tasks {
		for tag, need := range t.Resources {
			if need <= 0 {
				return fmt.Errorf("%w: task %s has non-positive demand %d for %q", ErrInvalidInstance, t.ID, need, tag)
			}
			if need > fleet[tag] {
				return fmt.Errorf("%w: task %s needs %d of %q but the fleet supplies %d",
					ErrInvalidInstance, t.ID, need, tag, fleet[tag])
			}
		}
	}

	// The horizon must supply enough agent-slots for every duration. The
	// serial sum spread across the whole fleet is a lower bound: when even
	// that cannot fit, no assignment exists and solving is wasted work.
	if in.Horizon > 0 {
		if in.Horizon*len(in.Agents) < in.SerialLowerBound() {
			return fmt.Errorf("%w: horizon %d supplies %d agent-slots but tasks need %d",
				ErrInvalidInstance, in.Horizon, in.Horizon*len(in.Agents), in.SerialLowerBound())
		}
		longest := 0
		for _, t := range in.Tasks {
			if t.Duration > longest {
				longest = t.Duration
			}
		}
		if in.Horizon < longest {
			return fmt.Errorf("%w: horizon %d is shorter than the longest task (%d slots)",
				ErrInvalidInstance, in.Horizon, longest)
		}
	}
	for _, t := range in.Tasks {
		h := in.EffectiveHorizon()
		if t.Release+t.Duration > h {
			return fmt.Errorf("%w: task %s cannot finish within horizon %d", ErrInvalidInstance, t.ID, h)
		}
	}

	if cycle := in.DetectCycle(); cycle != nil {
		return fmt.Errorf("%w: precedence cycle detected: %v", ErrInvalidInstance, cycle)
	}
	return nil
}

// DetectCycle returns a cycle path through the precedence graph if one
// exists, or nil. DFS with coloring: white (unvisited), gray (in progress),
// black (done).
func (in *Instance) DetectCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	// Edges run predecessor -> successor.
	succ := make(map[string][]string)
	for _, t := range in.Tasks {
		for _, pred := range t.Predecessors {
			succ[pred] = append(succ[pred], t.ID)
		}
	}
	for k := range succ {
		sort.Strings(succ[k])
	}

	color := make(map[string]int)
	parent := make(map[string]string)

	var dfs func(node string) []string
	dfs = func(node string) []string {
		color[node] = gray
		for _, next := range succ[node] {
			if color[next] == gray {
				cycle := []string{next, node}
				cur := node
				for cur != next {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
			if color[next] == white {
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		return nil
	}

	ids := make([]string, 0, len(in.Tasks))
	for _, t := range in.Tasks {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// TopoOrder returns task IDs in a deterministic topological order (Kahn's
// algorithm, lexicographic among ready tasks). Errors if the graph cycles.
func (in *Instance) TopoOrder() ([]string, error) {
	inDegree := make(map[string]int, len(in.Tasks))
	succ := make(map[string][]string)
	for _, t := range in.Tasks {
		inDegree[t.ID] = len(t.Predecessors)
		for _, pred := range t.Predecessors {
			succ[pred] = append(succ[pred], t.ID)
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		var newReady []string
		for _, s := range succ[node] {
			inDegree[s]--
			if inDegree[s] == 0 {
				newReady = append(newReady, s)
			}
		}
		sort.Strings(newReady)
		queue = append(queue, newReady...)
	}

	if len(order) != len(in.Tasks) {
		return nil, fmt.Errorf("topological sort failed: graph has a cycle (%d of %d tasks sorted)",
			len(order), len(in.Tasks))
	}
	return order, nil
}

// EarliestStarts runs a forward pass over the precedence graph: each task's
// earliest start is the max finish of its predecessors, floored by its
// release time. Used for window assignment during decomposition and by the
// greedy fallback.
func (in *Instance) EarliestStarts() (map[string]int, error) {
	order, err := in.TopoOrder()
	if err != nil {
		return nil, err
	}
	es := make(map[string]int, len(order))
	for _, id := range order {
		t := in.TaskByID(id)
		start := t.Release
		for _, pred := range t.Predecessors {
			p := in.TaskByID(pred)
			if fin := es[pred] + p.Duration; fin > start {
				start = fin
			}
		}
		es[id] = start
	}
	return es, nil
}
