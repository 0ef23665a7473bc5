package qubo

import (
	"errors"
	"reflect"
	"testing"

	"github.com/joshharrison/qsched/internal/model"
)

func smallInstance() *model.Instance {
	return &model.Instance{
		Tasks: []model.Task{
			{ID: "t1", Duration: 2},
			{ID: "t2", Duration: 1, Predecessors: []string{"t1"}},
		},
		Agents: []model.Agent{
			{ID: "a1", Capacity: map[string]int{"cpu": 1}},
			{ID: "a2", Capacity: map[string]int{"cpu": 1}},
		},
		Horizon: 4,
	}
}

func TestEncode_Deterministic(t *testing.T) {
	in := smallInstance()
	w := DefaultWeights()

	first, err := Encode(in, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := Encode(in, w)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first.Terms, again.Terms) {
			t.Fatal("term lists differ between identical encodes")
		}
		if first.Offset != again.Offset {
			t.Fatalf("offsets differ: %v vs %v", first.Offset, again.Offset)
		}
		firstWire, _ := MarshalWire(first)
		againWire, _ := MarshalWire(again)
		if string(firstWire) != string(againWire) {
			t.Fatal("wire documents differ between identical encodes")
		}
	}
}

func TestEncode_VariableMapping(t *testing.T) {
	in := smallInstance()
	p, err := Encode(in, DefaultWeights())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// t1 (duration 2, horizon 4): starts 0..2 on each of 2 agents = 6 vars.
	// t2 (duration 1): starts 0..3 on each of 2 agents = 8 vars.
	if got := p.NumVariables(); got != 14 {
		t.Errorf("variable count = %d, want 14", got)
	}

	// The mapping must be injective and invertible.
	seen := make(map[int]bool)
	for id := 0; id < p.NumVariables(); id++ {
		key := p.Key(id)
		back, ok := p.VarID(key)
		if !ok || back != id {
			t.Fatalf("mapping not invertible for id %d (key %+v)", id, key)
		}
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}

	// Per-task ranges are contiguous and cover everything.
	if p.TaskRanges[0].Lo != 0 || p.TaskRanges[0].Hi != 6 {
		t.Errorf("t1 range = %+v, want [0,6)", p.TaskRanges[0])
	}
	if p.TaskRanges[1].Lo != 6 || p.TaskRanges[1].Hi != 14 {
		t.Errorf("t2 range = %+v, want [6,14)", p.TaskRanges[1])
	}
}

func TestEncode_ReleaseAndDeadlineClampStarts(t *testing.T) {
	in := &model.Instance{
		Tasks: []model.Task{
			{ID: "t1", Duration: 2, Release: 1, Deadline: 5},
		},
		Agents:  []model.Agent{{ID: "a1"}},
		Horizon: 10,
	}
	p, err := Encode(in, DefaultWeights())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Starts 1, 2, 3 only.
	if p.NumVariables() != 3 {
		t.Fatalf("variable count = %d, want 3", p.NumVariables())
	}
	for id := 0; id < p.NumVariables(); id++ {
		s := p.Key(id).Slot
		if s < 1 || s > 3 {
			t.Errorf("start slot %d outside [1,3]", s)
		}
	}
}

func TestEncode_AgentAvailabilityWindow(t *testing.T) {
	in := &model.Instance{
		Tasks: []model.Task{{ID: "t1", Duration: 2}},
		Agents: []model.Agent{
			{ID: "a1", AvailableFrom: 3, AvailableUntil: 7},
		},
		Horizon: 10,
	}
	p, err := Encode(in, DefaultWeights())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for id := 0; id < p.NumVariables(); id++ {
		s := p.Key(id).Slot
		if s < 3 || s+2 > 7 {
			t.Errorf("start slot %d violates agent window [3,7)", s)
		}
	}
}

func TestEncode_InvalidInstance(t *testing.T) {
	in := smallInstance()
	in.Tasks[0].Predecessors = []string{"t2"} // cycle with t2 -> t1
	if _, err := Encode(in, DefaultWeights()); !errors.Is(err, model.ErrInvalidInstance) {
		t.Fatalf("expected ErrInvalidInstance, got %v", err)
	}
}

func TestEnergy_PenaltyDominatesObjective(t *testing.T) {
	in := smallInstance()
	p, err := Encode(in, DefaultWeights())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A feasible solution: t1 on a1 at 0, t2 on a2 at 2.
	good := make([]int, p.NumVariables())
	id1, ok1 := p.VarID(VarKey{TaskIdx: 0, AgentIdx: 0, Slot: 0})
	id2, ok2 := p.VarID(VarKey{TaskIdx: 1, AgentIdx: 1, Slot: 2})
	if !ok1 || !ok2 {
		t.Fatal("expected variables missing from mapping")
	}
	good[id1], good[id2] = 1, 1

	// All zeros leaves both uniqueness penalties unpaid.
	empty := make([]int, p.NumVariables())

	// Precedence violated: t2 before t1 finishes.
	bad := make([]int, p.NumVariables())
	id3, _ := p.VarID(VarKey{TaskIdx: 1, AgentIdx: 1, Slot: 0})
	bad[id1], bad[id3] = 1, 1

	eGood, eEmpty, eBad := p.Energy(good), p.Energy(empty), p.Energy(bad)
	if eGood >= eEmpty {
		t.Errorf("feasible energy %v should beat empty %v", eGood, eEmpty)
	}
	if eGood >= eBad {
		t.Errorf("feasible energy %v should beat precedence-violating %v", eGood, eBad)
	}
}

func TestWire_RoundTrip(t *testing.T) {
	in := smallInstance()
	p, err := Encode(in, DefaultWeights())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := MarshalWire(p)
	if err != nil {
		t.Fatalf("marshal wire: %v", err)
	}
	w, err := ParseWire(data)
	if err != nil {
		t.Fatalf("parse wire: %v", err)
	}
	if w.ProblemType != TypeQUBO {
		t.Errorf("problem type = %q, want %q", w.ProblemType, TypeQUBO)
	}
	if !reflect.DeepEqual(w.Terms, p.Terms) {
		t.Error("terms did not round-trip losslessly")
	}
}

func TestParseWire_RejectsBadArity(t *testing.T) {
	data := []byte(`{"problemType":"qubo","terms":[{"coefficient":1,"variableIds":[0,1,2]}]}`)
	if _, err := ParseWire(data); err == nil {
		t.Fatal("expected arity error, got nil")
	}
}
