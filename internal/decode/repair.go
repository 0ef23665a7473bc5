package decode

import (
	"github.com/joshharrison/qsched/internal/model"
)

// Repair reassigns only the offending tasks, each to its first feasible
// (agent, slot) with the rest of the schedule held fixed. Agents are scanned
// in instance order and slots ascending, so repair is deterministic. It
// returns the repaired schedule and whether it now validates. At most
// maxPasses full passes are made.
func Repair(in *model.Instance, s model.Schedule, maxPasses int) (model.Schedule, bool) {
	cur := s.Clone()

	for pass := 0; pass < maxPasses; pass++ {
		vr := Validate(in, cur)
		if vr.Valid {
			return cur, true
		}

		offending := OffendingTasks(in, vr)
		if len(offending) == 0 {
			return cur, false
		}

		// Unassign the offenders, then place them back one at a time.
		for _, id := range offending {
			delete(cur.Assignments, id)
		}

		progress := false
		for _, id := range offending {
			t := in.TaskByID(id)
			if t == nil {
				continue
			}
			if a, ok := findPlacement(in, cur, t); ok {
				cur.Assignments[id] = a
				progress = true
			}
		}
		if !progress {
			break
		}
	}

	if vr := Validate(in, cur); vr.Valid {
		return cur, true
	}

	// Local moves stalled. Rebuild the whole schedule greedily in topological
	// order before giving up; the caller still gets the stalled schedule as
	// best effort when even that fails.
	if rebuilt, ok := rebuild(in); ok {
		return rebuilt, true
	}
	return cur, false
}

// rebuild constructs a schedule from scratch: tasks in topological order,
// each placed at its first feasible (agent, slot).
func rebuild(in *model.Instance) (model.Schedule, bool) {
	order, err := in.TopoOrder()
	if err != nil {
		return model.NewSchedule(), false
	}
	s := model.NewSchedule()
	for _, id := range order {
		t := in.TaskByID(id)
		a, ok := findPlacement(in, s, t)
		if !ok {
			return s, false
		}
		s.Assignments[id] = a
	}
	vr := Validate(in, s)
	return s, vr.Valid
}

// findPlacement scans agents and slots for the first spot where the task
// fits given everything else already placed.
func findPlacement(in *model.Instance, s model.Schedule, t *model.Task) (model.Assignment, bool) {
	horizon := in.EffectiveHorizon()

	// Precedence floor from already-placed predecessors.
	floor := t.Release
	for _, predID := range t.Predecessors {
		if pred, ok := s.Assignments[predID]; ok && pred.End > floor {
			floor = pred.End
		}
	}

	for _, agent := range in.Agents {
		start := floor
		if agent.AvailableFrom > start {
			start = agent.AvailableFrom
		}
		end := horizon
		if t.Deadline > 0 && t.Deadline < end {
			end = t.Deadline
		}
		if agent.AvailableUntil > 0 && agent.AvailableUntil < end {
			end = agent.AvailableUntil
		}
		for slot := start; slot+t.Duration <= end; slot++ {
			if placementFits(in, s, t, agent.ID, slot) {
				return model.Assignment{AgentID: agent.ID, Start: slot, End: slot + t.Duration}, true
			}
		}
	}
	return model.Assignment{}, false
}

func placementFits(in *model.Instance, s model.Schedule, t *model.Task, agentID string, start int) bool {
	end := start + t.Duration

	// Agent free over the whole interval.
	for _, other := range in.Tasks {
		if other.ID == t.ID {
			continue
		}
		a, ok := s.Assignments[other.ID]
		if !ok || a.AgentID != agentID {
			continue
		}
		if start < a.End && a.Start < end {
			return false
		}
	}

	// Successors already placed must not start before this finishes.
	for _, other := range in.Tasks {
		for _, predID := range other.Predecessors {
			if predID != t.ID {
				continue
			}
			if a, ok := s.Assignments[other.ID]; ok && a.Start < end {
				return false
			}
		}
	}

	// Per-slot capacity with the candidate included.
	fleet := in.FleetCapacity()
	for tag, need := range t.Resources {
		for slot := start; slot < end; slot++ {
			demand := need
			for _, other := range in.Tasks {
				if other.ID == t.ID || other.Resources[tag] == 0 {
					continue
				}
				a, ok := s.Assignments[other.ID]
				if !ok || slot < a.Start || slot >= a.End {
					continue
				}
				demand += other.Resources[tag]
			}
			if demand > fleet[tag] {
				return false
			}
		}
	}
	return true
}
