package decompose

import (
	"fmt"
	"sort"

	"github.com/joshharrison/qsched/internal/model"
	"github.com/joshharrison/qsched/internal/qubo"
)

// Seam is a small reconciliation problem over the tasks that ended up in
// conflict after recombination. Only those tasks are re-solved; everything
// else stays pinned where the sub-solves put it, expressed as linear
// penalties on the conflicting variables.
type Seam struct {
	Problem *qubo.Problem
	Inst    *model.Instance
	Free    []string
}

// BuildSeam encodes the free tasks against the parent timeline with the
// remaining assignments held fixed. Free tasks whose predecessors are fixed
// get a release floor at the predecessor's finish; conflicts with fixed
// assignments (agent overlap, capacity, a fixed successor's start) become
// linear penalties so the solver steers around them.
func BuildSeam(in *model.Instance, sched model.Schedule, free []string, w qubo.Weights) (*Seam, error) {
	freeSet := make(map[string]bool, len(free))
	for _, id := range free {
		freeSet[id] = true
	}

	fixed := make(map[string]model.Assignment)
	for id, a := range sched.Assignments {
		if !freeSet[id] && in.TaskByID(id) != nil {
			fixed[id] = a
		}
	}

	seamInst := &model.Instance{Agents: in.Agents, Horizon: in.EffectiveHorizon()}
	for _, t := range in.Tasks {
		if !freeSet[t.ID] {
			continue
		}
		lt := t
		lt.Predecessors = nil
		for _, predID := range t.Predecessors {
			if freeSet[predID] {
				lt.Predecessors = append(lt.Predecessors, predID)
				continue
			}
			if pa, ok := fixed[predID]; ok && pa.End > lt.Release {
				lt.Release = pa.End
			}
		}
		seamInst.Tasks = append(seamInst.Tasks, lt)
	}
	if len(seamInst.Tasks) == 0 {
		return nil, fmt.Errorf("seam has no free tasks")
	}

	p, err := qubo.Encode(seamInst, w)
	if err != nil {
		return nil, fmt.Errorf("encode seam: %w", err)
	}

	fleet := in.FleetCapacity()
	fixedDemand := func(tag string, slot int) int {
		demand := 0
		for id, a := range fixed {
			if slot < a.Start || slot >= a.End {
				continue
			}
			if t := in.TaskByID(id); t != nil {
				demand += t.Resources[tag]
			}
		}
		return demand
	}

	fixedSuccStart := make(map[string]int)
	for _, t := range in.Tasks {
		a, ok := fixed[t.ID]
		if !ok {
			continue
		}
		for _, predID := range t.Predecessors {
			if !freeSet[predID] {
				continue
			}
			if cur, ok := fixedSuccStart[predID]; !ok || a.Start < cur {
				fixedSuccStart[predID] = a.Start
			}
		}
	}

	// Penalties against the fixed world, deterministic variable order.
	var extra []qubo.Term
	for id := 0; id < p.NumVariables(); id++ {
		key := p.Key(id)
		task := seamInst.Tasks[key.TaskIdx]
		agentID := p.AgentIDs[key.AgentIdx]
		start, end := key.Slot, key.Slot+task.Duration

		for _, fa := range sortedFixed(fixed) {
			if fa.a.AgentID == agentID && start < fa.a.End && fa.a.Start < end {
				extra = append(extra, qubo.Term{Coefficient: w.NoOverlap, IDs: []int{id}})
				break
			}
		}

		over := false
		for tag, need := range task.Resources {
			for slot := start; slot < end && !over; slot++ {
				if fixedDemand(tag, slot)+need > fleet[tag] {
					over = true
				}
			}
		}
		if over {
			extra = append(extra, qubo.Term{Coefficient: w.ResourceCapacity, IDs: []int{id}})
		}

		if succStart, ok := fixedSuccStart[task.ID]; ok && end > succStart {
			extra = append(extra, qubo.Term{Coefficient: w.Precedence, IDs: []int{id}})
		}
	}
	p.Terms = append(p.Terms, extra...)

	return &Seam{Problem: p, Inst: seamInst, Free: append([]string(nil), free...)}, nil
}

// Merge writes the seam's re-solved assignments over the recombined schedule.
func (s *Seam) Merge(sched model.Schedule, resolved model.Schedule) model.Schedule {
	out := sched.Clone()
	for _, id := range s.Free {
		if a, ok := resolved.Assignments[id]; ok {
			out.Assignments[id] = a
		}
	}
	return out
}

type fixedEntry struct {
	id string
	a  model.Assignment
}

func sortedFixed(fixed map[string]model.Assignment) []fixedEntry {
	out := make([]fixedEntry, 0, len(fixed))
	for id, a := range fixed {
		out = append(out, fixedEntry{id: id, a: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
