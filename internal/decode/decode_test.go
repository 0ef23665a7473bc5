package decode

import (
	"math/rand"
	"testing"

	"github.com/joshharrison/qsched/internal/model"
	"github.com/joshharrison/qsched/internal/qubo"
)

func testInstance() *model.Instance {
	return &model.Instance{
		Tasks: []model.Task{
			{ID: "t1", Duration: 2, Resources: map[string]int{"cpu": 1}},
			{ID: "t2", Duration: 1, Resources: map[string]int{"cpu": 1}, Predecessors: []string{"t1"}},
		},
		Agents: []model.Agent{
			{ID: "a1", Capacity: map[string]int{"cpu": 1}},
			{ID: "a2", Capacity: map[string]int{"cpu": 1}},
		},
		Horizon: 5,
	}
}

func encode(t *testing.T, in *model.Instance) *qubo.Problem {
	t.Helper()
	p, err := qubo.Encode(in, qubo.DefaultWeights())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return p
}

func TestDecode_CleanBits(t *testing.T) {
	in := testInstance()
	p := encode(t, in)

	bits := make([]int, p.NumVariables())
	id1, ok1 := p.VarID(qubo.VarKey{TaskIdx: 0, AgentIdx: 0, Slot: 0})
	id2, ok2 := p.VarID(qubo.VarKey{TaskIdx: 1, AgentIdx: 1, Slot: 2})
	if !ok1 || !ok2 {
		t.Fatal("expected variables missing")
	}
	bits[id1], bits[id2] = 1, 1

	s := Decode(p, bits, in)
	if a := s.Assignments["t1"]; a.AgentID != "a1" || a.Start != 0 || a.End != 2 {
		t.Errorf("t1 = %+v, want a1@[0,2)", a)
	}
	if a := s.Assignments["t2"]; a.AgentID != "a2" || a.Start != 2 || a.End != 3 {
		t.Errorf("t2 = %+v, want a2@[2,3)", a)
	}
}

func TestDecode_MultipleSetBitsResolveDeterministically(t *testing.T) {
	in := testInstance()
	p := encode(t, in)

	// t1 set twice, t2 not at all: the decoder must still produce exactly
	// one assignment per task, the same way every time.
	bits := make([]int, p.NumVariables())
	for _, key := range []qubo.VarKey{
		{TaskIdx: 0, AgentIdx: 0, Slot: 0},
		{TaskIdx: 0, AgentIdx: 1, Slot: 3},
	} {
		id, ok := p.VarID(key)
		if !ok {
			t.Fatalf("missing variable %+v", key)
		}
		bits[id] = 1
	}

	first := Decode(p, bits, in)
	if len(first.Assignments) != 2 {
		t.Fatalf("assignments = %d, want 2", len(first.Assignments))
	}
	for i := 0; i < 3; i++ {
		again := Decode(p, bits, in)
		for id, a := range first.Assignments {
			if again.Assignments[id] != a {
				t.Fatalf("decode not deterministic for %s: %+v vs %+v", id, a, again.Assignments[id])
			}
		}
	}
}

func TestValidate_CatchesEachClass(t *testing.T) {
	in := testInstance()

	cases := []struct {
		name  string
		sched func() model.Schedule
		class Class
	}{
		{
			name: "missing assignment",
			sched: func() model.Schedule {
				s := model.NewSchedule()
				s.Assignments["t1"] = model.Assignment{AgentID: "a1", Start: 0, End: 2}
				return s
			},
			class: ClassAssignment,
		},
		{
			name: "agent overlap",
			sched: func() model.Schedule {
				s := model.NewSchedule()
				s.Assignments["t1"] = model.Assignment{AgentID: "a1", Start: 0, End: 2}
				s.Assignments["t2"] = model.Assignment{AgentID: "a1", Start: 1, End: 2}
				return s
			},
			class: ClassOverlap,
		},
		{
			name: "precedence broken",
			sched: func() model.Schedule {
				s := model.NewSchedule()
				s.Assignments["t1"] = model.Assignment{AgentID: "a1", Start: 2, End: 4}
				s.Assignments["t2"] = model.Assignment{AgentID: "a2", Start: 0, End: 1}
				return s
			},
			class: ClassPrecedence,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vr := Validate(in, tc.sched())
			if vr.Valid {
				t.Fatal("expected invalid schedule")
			}
			found := false
			for _, v := range vr.Violations {
				if v.Class == tc.class {
					found = true
				}
			}
			if !found {
				t.Errorf("no %s violation in %+v", tc.class, vr.Violations)
			}
		})
	}
}

func TestValidate_CapacityPerSlot(t *testing.T) {
	in := &model.Instance{
		Tasks: []model.Task{
			{ID: "t1", Duration: 2, Resources: map[string]int{"gpu": 1}},
			{ID: "t2", Duration: 2, Resources: map[string]int{"gpu": 1}},
		},
		Agents: []model.Agent{
			{ID: "a1", Capacity: map[string]int{"gpu": 1}},
			{ID: "a2"},
		},
		Horizon: 6,
	}
	s := model.NewSchedule()
	// Different agents, but concurrent demand 2 > fleet gpu capacity 1.
	s.Assignments["t1"] = model.Assignment{AgentID: "a1", Start: 0, End: 2}
	s.Assignments["t2"] = model.Assignment{AgentID: "a2", Start: 1, End: 3}

	vr := Validate(in, s)
	if vr.Valid {
		t.Fatal("expected capacity violation")
	}
	found := false
	for _, v := range vr.Violations {
		if v.Class == ClassCapacity {
			found = true
		}
	}
	if !found {
		t.Errorf("no capacity violation in %+v", vr.Violations)
	}

	// Sequential placement is fine.
	s.Assignments["t2"] = model.Assignment{AgentID: "a2", Start: 2, End: 4}
	if vr := Validate(in, s); !vr.Valid {
		t.Errorf("sequential schedule should validate, got %+v", vr.Violations)
	}
}

func TestValidate_AcceptedDecodeSatisfiesInvariants(t *testing.T) {
	// Random feasible instances, decoded from arbitrary solver bits and then
	// repaired, must always validate.
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 25; trial++ {
		n := 2 + rng.Intn(3)
		in := &model.Instance{
			Agents: []model.Agent{
				{ID: "a1", Capacity: map[string]int{"cpu": 2}},
				{ID: "a2", Capacity: map[string]int{"cpu": 2}},
			},
		}
		for i := 0; i < n; i++ {
			task := model.Task{
				ID:        string(rune('a' + i)),
				Duration:  1 + rng.Intn(3),
				Resources: map[string]int{"cpu": 1},
			}
			if i > 0 && rng.Intn(2) == 0 {
				task.Predecessors = []string{string(rune('a' + i - 1))}
			}
			in.Tasks = append(in.Tasks, task)
		}

		p := encode(t, in)
		bits := make([]int, p.NumVariables())
		for i := range bits {
			bits[i] = rng.Intn(2)
		}

		s := Decode(p, bits, in)
		repaired, ok := Repair(in, s, 10)
		if !ok {
			t.Fatalf("trial %d: repair failed on feasible instance", trial)
		}
		if vr := Validate(in, repaired); !vr.Valid {
			t.Fatalf("trial %d: repaired schedule invalid: %+v", trial, vr.Violations)
		}
	}
}

func TestRepair_FixesOverlap(t *testing.T) {
	in := testInstance()
	s := model.NewSchedule()
	s.Assignments["t1"] = model.Assignment{AgentID: "a1", Start: 0, End: 2}
	s.Assignments["t2"] = model.Assignment{AgentID: "a1", Start: 0, End: 1} // overlaps and breaks precedence

	repaired, ok := Repair(in, s, 5)
	if !ok {
		t.Fatal("repair failed")
	}
	if vr := Validate(in, repaired); !vr.Valid {
		t.Fatalf("repaired schedule still invalid: %+v", vr.Violations)
	}
	// t1 must be untouched; only the offender moves.
	if a := repaired.Assignments["t1"]; a.Start != 0 || a.AgentID != "a1" {
		t.Errorf("t1 moved during repair: %+v", a)
	}
}
