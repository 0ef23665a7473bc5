package decompose

import (
	"reflect"
	"testing"

	"github.com/joshharrison/qsched/internal/model"
	"github.com/joshharrison/qsched/internal/qubo"
)

func chainInstance(n, duration, horizon int) *model.Instance {
	in := &model.Instance{
		Agents: []model.Agent{
			{ID: "a1", Capacity: map[string]int{"cpu": 1}},
			{ID: "a2", Capacity: map[string]int{"cpu": 1}},
		},
		Horizon: horizon,
	}
	for i := 0; i < n; i++ {
		t := model.Task{
			ID:        string(rune('a' + i)),
			Duration:  duration,
			Resources: map[string]int{"cpu": 1},
		}
		if i > 0 {
			t.Predecessors = []string{string(rune('a' + i - 1))}
		}
		in.Tasks = append(in.Tasks, t)
	}
	return in
}

func TestDecompose_SmallInstanceStaysWhole(t *testing.T) {
	in := chainInstance(3, 2, 10)
	subs, err := Decompose(in, 1000)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("subs = %d, want 1", len(subs))
	}
	if subs[0].Offset != 0 || subs[0].Inst != in {
		t.Errorf("whole instance should pass through unchanged: %+v", subs[0])
	}
}

func TestDecompose_WindowsCoverAllTasksOnce(t *testing.T) {
	in := chainInstance(8, 2, 30)
	total := EstimateVariables(in)
	maxVars := total / 3
	subs, err := Decompose(in, maxVars)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(subs) < 2 {
		t.Fatalf("subs = %d, want a real split (estimate %d, ceiling %d)", len(subs), total, maxVars)
	}

	seen := make(map[string]int)
	lastOffset := -1
	for _, sub := range subs {
		if sub.Offset < lastOffset {
			t.Errorf("offsets not nondecreasing: %d after %d", sub.Offset, lastOffset)
		}
		lastOffset = sub.Offset
		if err := sub.Inst.Validate(); err != nil {
			t.Errorf("sub %d invalid: %v", sub.Index, err)
		}
		for _, id := range sub.TaskIDs {
			seen[id]++
		}
	}
	for _, task := range in.Tasks {
		if seen[task.ID] != 1 {
			t.Errorf("task %s appears in %d sub-problems, want 1", task.ID, seen[task.ID])
		}
	}
}

func TestDecompose_Deterministic(t *testing.T) {
	in := chainInstance(8, 2, 30)
	maxVars := EstimateVariables(in) / 3
	first, err := Decompose(in, maxVars)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := Decompose(in, maxVars)
		if err != nil {
			t.Fatalf("decompose: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("sub count changed: %d vs %d", len(again), len(first))
		}
		for j := range first {
			if !reflect.DeepEqual(again[j].TaskIDs, first[j].TaskIDs) || again[j].Offset != first[j].Offset {
				t.Fatalf("sub %d changed between runs", j)
			}
		}
	}
}

func TestRecombine_ShiftsByOffset(t *testing.T) {
	subs := []SubProblem{
		{Index: 0, Offset: 0},
		{Index: 1, Offset: 4},
	}
	s0 := model.NewSchedule()
	s0.Assignments["a"] = model.Assignment{AgentID: "a1", Start: 0, End: 2}
	s1 := model.NewSchedule()
	s1.Assignments["b"] = model.Assignment{AgentID: "a2", Start: 1, End: 3}

	out := Recombine(subs, []model.Schedule{s0, s1})
	if a := out.Assignments["a"]; a.Start != 0 || a.End != 2 {
		t.Errorf("a = %+v, want [0,2)", a)
	}
	if b := out.Assignments["b"]; b.Start != 5 || b.End != 7 {
		t.Errorf("b = %+v, want [5,7)", b)
	}
}

func TestBuildSeam_FixedPredecessorSetsReleaseFloor(t *testing.T) {
	in := &model.Instance{
		Tasks: []model.Task{
			{ID: "t1", Duration: 2, Resources: map[string]int{"cpu": 1}},
			{ID: "t2", Duration: 2, Resources: map[string]int{"cpu": 1}, Predecessors: []string{"t1"}},
		},
		Agents: []model.Agent{
			{ID: "a1", Capacity: map[string]int{"cpu": 1}},
			{ID: "a2", Capacity: map[string]int{"cpu": 1}},
		},
		Horizon: 8,
	}
	sched := model.NewSchedule()
	sched.Assignments["t1"] = model.Assignment{AgentID: "a1", Start: 0, End: 2}
	sched.Assignments["t2"] = model.Assignment{AgentID: "a1", Start: 1, End: 3}

	seam, err := BuildSeam(in, sched, []string{"t2"}, qubo.DefaultWeights())
	if err != nil {
		t.Fatalf("build seam: %v", err)
	}
	if len(seam.Inst.Tasks) != 1 || seam.Inst.Tasks[0].ID != "t2" {
		t.Fatalf("seam tasks = %+v, want just t2", seam.Inst.Tasks)
	}
	// Fixed predecessor t1 finishes at 2, so t2's release floor is 2.
	if got := seam.Inst.Tasks[0].Release; got != 2 {
		t.Errorf("release floor = %d, want 2", got)
	}
	// With the floor in place no variable can overlap the fixed predecessor.
	for id := 0; id < seam.Problem.NumVariables(); id++ {
		if key := seam.Problem.Key(id); key.Slot < 2 {
			t.Errorf("variable %d at slot %d precedes the release floor", id, key.Slot)
		}
	}
}

func TestBuildSeam_OverlapPenaltyRaisesEnergy(t *testing.T) {
	in := &model.Instance{
		Tasks: []model.Task{
			{ID: "t1", Duration: 2, Resources: map[string]int{"cpu": 1}},
			{ID: "t2", Duration: 2, Resources: map[string]int{"cpu": 1}},
		},
		Agents: []model.Agent{
			{ID: "a1", Capacity: map[string]int{"cpu": 2}},
			{ID: "a2", Capacity: map[string]int{"cpu": 2}},
		},
		Horizon: 8,
	}
	sched := model.NewSchedule()
	sched.Assignments["t1"] = model.Assignment{AgentID: "a1", Start: 0, End: 2}
	sched.Assignments["t2"] = model.Assignment{AgentID: "a1", Start: 0, End: 2}

	seam, err := BuildSeam(in, sched, []string{"t2"}, qubo.DefaultWeights())
	if err != nil {
		t.Fatalf("build seam: %v", err)
	}

	onA1, ok1 := seam.Problem.VarID(qubo.VarKey{TaskIdx: 0, AgentIdx: 0, Slot: 0})
	onA2, ok2 := seam.Problem.VarID(qubo.VarKey{TaskIdx: 0, AgentIdx: 1, Slot: 0})
	if !ok1 || !ok2 {
		t.Fatal("expected variables missing")
	}

	bits := make([]int, seam.Problem.NumVariables())
	bits[onA1] = 1
	clash := seam.Problem.Energy(bits)
	bits[onA1] = 0
	bits[onA2] = 1
	clear := seam.Problem.Energy(bits)
	if clash <= clear {
		t.Errorf("overlapping placement energy %v should exceed clear placement %v", clash, clear)
	}
}

func TestSeamMerge_OnlyFreeTasksMove(t *testing.T) {
	seam := &Seam{Free: []string{"t2"}}
	base := model.NewSchedule()
	base.Assignments["t1"] = model.Assignment{AgentID: "a1", Start: 0, End: 2}
	base.Assignments["t2"] = model.Assignment{AgentID: "a1", Start: 1, End: 3}
	resolved := model.NewSchedule()
	resolved.Assignments["t2"] = model.Assignment{AgentID: "a2", Start: 2, End: 4}

	out := seam.Merge(base, resolved)
	if a := out.Assignments["t1"]; a.Start != 0 {
		t.Errorf("t1 moved: %+v", a)
	}
	if a := out.Assignments["t2"]; a.AgentID != "a2" || a.Start != 2 {
		t.Errorf("t2 = %+v, want a2@[2,4)", a)
	}
}
