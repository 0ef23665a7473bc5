package qubo

import (
	"fmt"
	"sort"

	"github.com/joshharrison/qsched/internal/model"
)

// Encode maps a scheduling instance onto binary variables x[task,agent,slot]
// and builds the penalty and objective terms. The produced term list is
// byte-for-byte identical across calls for the same instance ordering and
// weights: variables are allocated task-major in caller order, and terms are
// emitted linear-first sorted by id, then quadratic sorted by (i, j).
func Encode(in *model.Instance, w Weights) (*Problem, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	horizon := in.EffectiveHorizon()
	p := &Problem{
		TaskIDs:  make([]string, len(in.Tasks)),
		AgentIDs: make([]string, len(in.Agents)),
		Horizon:  horizon,
		index:    make(map[VarKey]int),
	}
	for i, t := range in.Tasks {
		p.TaskIDs[i] = t.ID
	}
	for i, a := range in.Agents {
		p.AgentIDs[i] = a.ID
	}

	// Variable allocation. Start slots are clamped to the task's
	// [release, deadline-duration] range and the agent's availability window.
	for ti, task := range in.Tasks {
		lo := len(p.Vars)
		for ai, agent := range in.Agents {
			start := task.Release
			if agent.AvailableFrom > start {
				start = agent.AvailableFrom
			}
			end := horizon
			if task.Deadline > 0 && task.Deadline < end {
				end = task.Deadline
			}
			if agent.AvailableUntil > 0 && agent.AvailableUntil < end {
				end = agent.AvailableUntil
			}
			for s := start; s+task.Duration <= end; s++ {
				key := VarKey{TaskIdx: ti, AgentIdx: ai, Slot: s}
				p.index[key] = len(p.Vars)
				p.Vars = append(p.Vars, key)
			}
		}
		if len(p.Vars) == lo {
			return nil, fmt.Errorf("%w: task %s has no feasible start slot on any agent",
				model.ErrInvalidInstance, task.ID)
		}
		p.TaskRanges = append(p.TaskRanges, VarRange{Lo: lo, Hi: len(p.Vars)})
	}

	b := newTermBuilder()
	b.addAssignmentUniqueness(p, w)
	b.addNoOverlap(p, in, w)
	b.addResourceCapacity(p, in, w)
	b.addPrecedence(p, in, w)
	b.addObjective(p, in, w)

	p.Terms, p.Offset = b.emit()
	return p, nil
}

// termBuilder accumulates coefficients so duplicate contributions merge into
// a single canonical term.
type termBuilder struct {
	linear map[int]float64
	quad   map[[2]int]float64
	offset float64
}

func newTermBuilder() *termBuilder {
	return &termBuilder{
		linear: make(map[int]float64),
		quad:   make(map[[2]int]float64),
	}
}

func (b *termBuilder) addLinear(id int, c float64) {
	b.linear[id] += c
}

func (b *termBuilder) addQuad(i, j int, c float64) {
	if i > j {
		i, j = j, i
	}
	b.quad[[2]int{i, j}] += c
}

// addAssignmentUniqueness expands w*(sum_i x_i - 1)^2 per task: -w on each
// variable, +2w on each unordered pair, +w constant.
func (b *termBuilder) addAssignmentUniqueness(p *Problem, w Weights) {
	for _, r := range p.TaskRanges {
		for i := r.Lo; i < r.Hi; i++ {
			b.addLinear(i, -w.OneTaskOnce)
			for j := i + 1; j < r.Hi; j++ {
				b.addQuad(i, j, 2*w.OneTaskOnce)
			}
		}
		b.offset += w.OneTaskOnce
	}
}

// addNoOverlap penalizes any pair of assignments of different tasks to the
// same agent whose occupied intervals intersect.
func (b *termBuilder) addNoOverlap(p *Problem, in *model.Instance, w Weights) {
	// Group variable ids per agent, preserving allocation order.
	perAgent := make([][]int, len(in.Agents))
	for id, key := range p.Vars {
		perAgent[key.AgentIdx] = append(perAgent[key.AgentIdx], id)
	}

	for _, ids := range perAgent {
		for x := 0; x < len(ids); x++ {
			ki := p.Vars[ids[x]]
			di := in.Tasks[ki.TaskIdx].Duration
			for y := x + 1; y < len(ids); y++ {
				kj := p.Vars[ids[y]]
				if ki.TaskIdx == kj.TaskIdx {
					continue
				}
				dj := in.Tasks[kj.TaskIdx].Duration
				if intervalsIntersect(ki.Slot, ki.Slot+di, kj.Slot, kj.Slot+dj) {
					b.addQuad(ids[x], ids[y], w.NoOverlap)
				}
			}
		}
	}
}

// addResourceCapacity penalizes pairs of concurrently running tasks whose
// combined demand for a tag exceeds the fleet's aggregate supply.
//
// Capacity here is per-slot: for every tag and slot, the summed demand of
// tasks active in that slot must stay within total fleet capacity. Pairwise
// conflict terms approximate the aggregate constraint; the validator is the
// authority and triggers repair for anything the pairs miss.
func (b *termBuilder) addResourceCapacity(p *Problem, in *model.Instance, w Weights) {
	fleet := in.FleetCapacity()

	tags := make([]string, 0, len(fleet))
	for tag := range fleet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		cap := fleet[tag]
		// Tasks demanding this tag, in instance order.
		var demanding []int
		for ti, t := range in.Tasks {
			if t.Resources[tag] > 0 {
				demanding = append(demanding, ti)
			}
		}
		for a := 0; a < len(demanding); a++ {
			ti := demanding[a]
			di := in.Tasks[ti].Resources[tag]
			for c := a + 1; c < len(demanding); c++ {
				tj := demanding[c]
				dj := in.Tasks[tj].Resources[tag]
				if di+dj <= cap {
					continue
				}
				ri, rj := p.TaskRanges[ti], p.TaskRanges[tj]
				for i := ri.Lo; i < ri.Hi; i++ {
					si := p.Vars[i].Slot
					ei := si + in.Tasks[ti].Duration
					for j := rj.Lo; j < rj.Hi; j++ {
						sj := p.Vars[j].Slot
						ej := sj + in.Tasks[tj].Duration
						if intervalsIntersect(si, ei, sj, ej) {
							b.addQuad(i, j, w.ResourceCapacity)
						}
					}
				}
			}
		}
	}
}

// addPrecedence penalizes any placement of a successor strictly before its
// predecessor's finish.
func (b *termBuilder) addPrecedence(p *Problem, in *model.Instance, w Weights) {
	taskIdx := make(map[string]int, len(in.Tasks))
	for i, t := range in.Tasks {
		taskIdx[t.ID] = i
	}

	for si, succ := range in.Tasks {
		for _, predID := range succ.Predecessors {
			pi := taskIdx[predID]
			predDur := in.Tasks[pi].Duration
			rp, rs := p.TaskRanges[pi], p.TaskRanges[si]
			for i := rp.Lo; i < rp.Hi; i++ {
				predFinish := p.Vars[i].Slot + predDur
				for j := rs.Lo; j < rs.Hi; j++ {
					if p.Vars[j].Slot < predFinish {
						b.addQuad(i, j, w.Precedence)
					}
				}
			}
		}
	}
}

// addObjective adds a completion-time proxy for makespan: each assignment
// costs its weighted finish slot.
func (b *termBuilder) addObjective(p *Problem, in *model.Instance, w Weights) {
	for ti, r := range p.TaskRanges {
		task := in.Tasks[ti]
		prio := float64(task.PriorityWeight())
		for i := r.Lo; i < r.Hi; i++ {
			finish := float64(p.Vars[i].Slot + task.Duration)
			b.addLinear(i, w.Objective*prio*finish)
		}
	}
}

// emit produces the canonical term list: linear terms by ascending id, then
// quadratic terms by ascending (i, j). Zero coefficients are dropped.
func (b *termBuilder) emit() ([]Term, float64) {
	ids := make([]int, 0, len(b.linear))
	for id := range b.linear {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	pairs := make([][2]int, 0, len(b.quad))
	for pair := range b.quad {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(a, c int) bool {
		if pairs[a][0] != pairs[c][0] {
			return pairs[a][0] < pairs[c][0]
		}
		return pairs[a][1] < pairs[c][1]
	})

	terms := make([]Term, 0, len(ids)+len(pairs))
	for _, id := range ids {
		if c := b.linear[id]; c != 0 {
			terms = append(terms, Term{Coefficient: c, IDs: []int{id}})
		}
	}
	for _, pair := range pairs {
		if c := b.quad[pair]; c != 0 {
			terms = append(terms, Term{Coefficient: c, IDs: []int{pair[0], pair[1]}})
		}
	}
	return terms, b.offset
}

func intervalsIntersect(aLo, aHi, bLo, bHi int) bool {
	return aLo < bHi && bLo < aHi
}
