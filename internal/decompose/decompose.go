// Package decompose splits instances too large for a single solve into
// bounded sub-problems and stitches the partial schedules back together.
// Quantum and quantum-inspired backends carry hard ceilings on variable
// count, so a small loss of global optimality buys feasibility at scale.
package decompose

import (
	"fmt"
	"sort"

	"github.com/joshharrison/qsched/internal/model"
)

// SubProblem is one independently solvable piece: a self-contained instance
// whose slot 0 corresponds to Offset in the parent's timeline. Sub-problems
// are recombined strictly by Index, so concurrent solving stays
// deterministic.
type SubProblem struct {
	Index   int
	Offset  int
	Inst    *model.Instance
	TaskIDs []string
}

// EstimateVariables counts the decision variables an encode of the instance
// would allocate, without building any terms.
func EstimateVariables(in *model.Instance) int {
	horizon := in.EffectiveHorizon()
	count := 0
	for _, task := range in.Tasks {
		for _, agent := range in.Agents {
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
			if n := end - task.Duration - start + 1; n > 0 {
				count += n
			}
		}
	}
	return count
}

// Decompose partitions the instance so each sub-problem's estimated variable
// count stays at or under maxVariables where possible. Tasks are grouped
// into consecutive time windows by earliest start; a window that is still
// too large is split once more by agent cluster. Precedence edges that cross
// a window boundary are folded into release-time floors (the predecessor's
// earliest finish) and reconciled later by the seam pass.
func Decompose(in *model.Instance, maxVariables int) ([]SubProblem, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if maxVariables <= 0 || EstimateVariables(in) <= maxVariables {
		return []SubProblem{{Index: 0, Offset: 0, Inst: in, TaskIDs: taskIDs(in.Tasks)}}, nil
	}

	es, err := in.EarliestStarts()
	if err != nil {
		return nil, err
	}

	// Stable order: earliest start, then instance order.
	ordered := make([]model.Task, len(in.Tasks))
	copy(ordered, in.Tasks)
	pos := make(map[string]int, len(in.Tasks))
	for i, t := range in.Tasks {
		pos[t.ID] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		if es[ordered[a].ID] != es[ordered[b].ID] {
			return es[ordered[a].ID] < es[ordered[b].ID]
		}
		return pos[ordered[a].ID] < pos[ordered[b].ID]
	})

	// Greedy windowing: accumulate tasks until the window's estimated
	// variable count would exceed the ceiling.
	var windows [][]model.Task
	var current []model.Task
	for _, task := range ordered {
		candidate := append(append([]model.Task(nil), current...), task)
		if len(current) > 0 && estimateWindow(in, candidate, es) > maxVariables {
			windows = append(windows, current)
			current = []model.Task{task}
			continue
		}
		current = candidate
	}
	if len(current) > 0 {
		windows = append(windows, current)
	}

	var subs []SubProblem
	for _, windowTasks := range windows {
		offset := es[windowTasks[0].ID]
		for _, t := range windowTasks {
			if es[t.ID] < offset {
				offset = es[t.ID]
			}
		}

		groups := [][]model.Task{windowTasks}
		agentGroups := [][]model.Agent{in.Agents}
		if estimateWindow(in, windowTasks, es) > maxVariables && len(in.Agents) > 1 {
			if tg, ag, ok := clusterByResources(in, windowTasks); ok {
				groups, agentGroups = tg, ag
			}
		}

		for gi, group := range groups {
			sub, err := buildSub(in, group, agentGroups[gi], es, offset)
			if err != nil {
				return nil, err
			}
			sub.Index = len(subs)
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// estimateWindow counts variables for a window's tasks against the full
// fleet, with the window-local horizon the sub-instance would get.
func estimateWindow(in *model.Instance, tasks []model.Task, es map[string]int) int {
	offset := es[tasks[0].ID]
	for _, t := range tasks {
		if es[t.ID] < offset {
			offset = es[t.ID]
		}
	}
	sub := localInstance(in, tasks, in.Agents, es, offset)
	return EstimateVariables(sub)
}

// buildSub assembles a self-contained sub-instance for one task group.
func buildSub(in *model.Instance, tasks []model.Task, agents []model.Agent, es map[string]int, offset int) (SubProblem, error) {
	sub := localInstance(in, tasks, agents, es, offset)
	if err := sub.Validate(); err != nil {
		return SubProblem{}, fmt.Errorf("sub-problem at offset %d: %w", offset, err)
	}
	return SubProblem{Offset: offset, Inst: sub, TaskIDs: taskIDs(tasks)}, nil
}

// localInstance remaps a task group onto a window-local timeline starting at
// slot 0. Predecessors outside the group become release floors; the local
// horizon always fits the group serially.
func localInstance(in *model.Instance, tasks []model.Task, agents []model.Agent, es map[string]int, offset int) *model.Instance {
	inGroup := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		inGroup[t.ID] = true
	}

	sub := &model.Instance{}
	maxRelease := 0
	serial := 0
	for _, t := range tasks {
		lt := t
		release := t.Release
		if es[t.ID] > release {
			release = es[t.ID]
		}
		lt.Release = release - offset
		if lt.Release < 0 {
			lt.Release = 0
		}
		if t.Deadline > 0 {
			lt.Deadline = t.Deadline - offset
		}
		lt.Predecessors = nil
		for _, pred := range t.Predecessors {
			if inGroup[pred] {
				lt.Predecessors = append(lt.Predecessors, pred)
			}
		}
		lt.Resources = t.Resources
		sub.Tasks = append(sub.Tasks, lt)

		if lt.Release > maxRelease {
			maxRelease = lt.Release
		}
		serial += lt.Duration
	}

	for _, a := range agents {
		la := a
		la.AvailableFrom = a.AvailableFrom - offset
		if la.AvailableFrom < 0 {
			la.AvailableFrom = 0
		}
		if a.AvailableUntil > 0 {
			la.AvailableUntil = a.AvailableUntil - offset
		}
		sub.Agents = append(sub.Agents, la)
	}

	sub.Horizon = maxRelease + serial
	for _, t := range sub.Tasks {
		if t.Deadline > 0 && t.Deadline > sub.Horizon {
			sub.Horizon = t.Deadline
		}
	}
	return sub
}

// clusterByResources splits a window's agents into two clusters grouped by
// shared resource tags, then assigns tasks to the cluster that can cover
// their demand. Returns ok=false when any task fits neither cluster, in
// which case the window stays whole.
func clusterByResources(in *model.Instance, tasks []model.Task) ([][]model.Task, [][]model.Agent, bool) {
	// Group agents by their sorted tag signature, then deal groups into two
	// clusters round-robin, largest first. Agents sharing tags stay together.
	type group struct {
		sig    string
		agents []model.Agent
	}
	bySig := make(map[string][]model.Agent)
	for _, a := range in.Agents {
		tags := make([]string, 0, len(a.Capacity))
		for tag := range a.Capacity {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		sig := fmt.Sprint(tags)
		bySig[sig] = append(bySig[sig], a)
	}
	groups := make([]group, 0, len(bySig))
	for sig, agents := range bySig {
		groups = append(groups, group{sig: sig, agents: agents})
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].agents) != len(groups[j].agents) {
			return len(groups[i].agents) > len(groups[j].agents)
		}
		return groups[i].sig < groups[j].sig
	})

	clusters := make([][]model.Agent, 2)
	for i, g := range groups {
		clusters[i%2] = append(clusters[i%2], g.agents...)
	}
	if len(clusters[0]) == 0 || len(clusters[1]) == 0 {
		return nil, nil, false
	}

	capacityOf := func(agents []model.Agent) map[string]int {
		fleet := make(map[string]int)
		for _, a := range agents {
			for tag, c := range a.Capacity {
				fleet[tag] += c
			}
		}
		return fleet
	}
	caps := []map[string]int{capacityOf(clusters[0]), capacityOf(clusters[1])}

	covers := func(fleet map[string]int, t model.Task) bool {
		for tag, need := range t.Resources {
			if fleet[tag] < need {
				return false
			}
		}
		return true
	}

	taskGroups := make([][]model.Task, 2)
	next := 0
	for _, t := range tasks {
		switch {
		case covers(caps[0], t) && covers(caps[1], t):
			// Either works; alternate for balance.
			taskGroups[next%2] = append(taskGroups[next%2], t)
			next++
		case covers(caps[0], t):
			taskGroups[0] = append(taskGroups[0], t)
		case covers(caps[1], t):
			taskGroups[1] = append(taskGroups[1], t)
		default:
			return nil, nil, false
		}
	}
	if len(taskGroups[0]) == 0 || len(taskGroups[1]) == 0 {
		return nil, nil, false
	}
	return taskGroups, clusters, true
}

// Recombine merges sub-schedules back onto the parent timeline, strictly in
// sub-problem index order.
func Recombine(subs []SubProblem, solutions []model.Schedule) model.Schedule {
	out := model.NewSchedule()
	for i, sub := range subs {
		if i >= len(solutions) {
			break
		}
		for id, a := range solutions[i].Assignments {
			out.Assignments[id] = model.Assignment{
				AgentID: a.AgentID,
				Start:   a.Start + sub.Offset,
				End:     a.End + sub.Offset,
			}
		}
	}
	return out
}

func taskIDs(tasks []model.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
