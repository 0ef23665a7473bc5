// Package decode turns raw solver bit vectors back into schedules, validates
// them against the hard constraints, and applies bounded greedy repair.
package decode

import (
	"github.com/joshharrison/qsched/internal/model"
	"github.com/joshharrison/qsched/internal/qubo"
)

// Decode maps set bits back to assignments through the encoder's index
// mapping. Noisy solvers routinely leave a task with zero or several set
// bits; each task is resolved to the single assignment with the lowest
// marginal energy against the picks made so far. Tasks are resolved in
// instance order and candidates are scanned in (agent, slot) order, so ties
// break toward the lowest agent index, then the lowest slot.
func Decode(p *qubo.Problem, bits []int, in *model.Instance) model.Schedule {
	linear := make([]float64, p.NumVariables())
	adj := make(map[[2]int]float64)
	for _, term := range p.Terms {
		switch len(term.IDs) {
		case 1:
			linear[term.IDs[0]] += term.Coefficient
		case 2:
			i, j := term.IDs[0], term.IDs[1]
			if i > j {
				i, j = j, i
			}
			adj[[2]int{i, j}] += term.Coefficient
		}
	}
	pair := func(i, j int) float64 {
		if i > j {
			i, j = j, i
		}
		return adj[[2]int{i, j}]
	}

	sched := model.NewSchedule()
	var chosen []int

	for ti, r := range p.TaskRanges {
		// Candidates: set bits for this task, or every slot when the solver
		// left the task unassigned.
		var candidates []int
		for id := r.Lo; id < r.Hi; id++ {
			if id < len(bits) && bits[id] == 1 {
				candidates = append(candidates, id)
			}
		}
		if len(candidates) == 0 {
			for id := r.Lo; id < r.Hi; id++ {
				candidates = append(candidates, id)
			}
		}

		bestID := -1
		bestScore := 0.0
		for _, id := range candidates {
			score := linear[id]
			for _, c := range chosen {
				score += pair(id, c)
			}
			if bestID < 0 || score < bestScore {
				bestID = id
				bestScore = score
			}
		}

		chosen = append(chosen, bestID)
		key := p.Key(bestID)
		task := in.Tasks[ti]
		sched.Assignments[task.ID] = model.Assignment{
			AgentID: p.AgentIDs[key.AgentIdx],
			Start:   key.Slot,
			End:     key.Slot + task.Duration,
		}
	}
	return sched
}
