package model

import (
	"errors"
	"testing"
)

func twoAgentFleet() []Agent {
	return []Agent{
		{ID: "a1", Capacity: map[string]int{"cpu": 2}},
		{ID: "a2", Capacity: map[string]int{"cpu": 2}},
	}
}

func TestValidate_OK(t *testing.T) {
	in := &Instance{
		Tasks: []Task{
			{ID: "t1", Duration: 3, Resources: map[string]int{"cpu": 1}},
			{ID: "t2", Duration: 2, Predecessors: []string{"t1"}},
		},
		Agents:  twoAgentFleet(),
		Horizon: 10,
	}
	if err := in.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Cycle(t *testing.T) {
	in := &Instance{
		Tasks: []Task{
			{ID: "t1", Duration: 1, Predecessors: []string{"t3"}},
			{ID: "t2", Duration: 1, Predecessors: []string{"t1"}},
			{ID: "t3", Duration: 1, Predecessors: []string{"t2"}},
		},
		Agents:  twoAgentFleet(),
		Horizon: 10,
	}
	err := in.Validate()
	if err == nil {
		t.Fatal("expected cycle error, got nil")
	}
	if !errors.Is(err, ErrInvalidInstance) {
		t.Errorf("expected ErrInvalidInstance, got %v", err)
	}
}

func TestValidate_FleetCapacityExceeded(t *testing.T) {
	in := &Instance{
		Tasks: []Task{
			{ID: "t1", Duration: 1, Resources: map[string]int{"gpu": 5}},
		},
		Agents:  twoAgentFleet(), // supplies no gpu at all
		Horizon: 10,
	}
	err := in.Validate()
	if !errors.Is(err, ErrInvalidInstance) {
		t.Fatalf("expected ErrInvalidInstance, got %v", err)
	}
}

func TestValidate_HorizonTooShortForLongestTask(t *testing.T) {
	in := &Instance{
		Tasks: []Task{
			{ID: "t1", Duration: 8},
		},
		Agents:  twoAgentFleet(),
		Horizon: 5,
	}
	if err := in.Validate(); !errors.Is(err, ErrInvalidInstance) {
		t.Fatalf("expected ErrInvalidInstance, got %v", err)
	}
}

func TestValidate_HorizonTooShortForTotalWork(t *testing.T) {
	in := &Instance{
		Tasks: []Task{
			{ID: "t1", Duration: 3},
			{ID: "t2", Duration: 3},
		},
		Agents:  []Agent{{ID: "a1", Capacity: map[string]int{"cpu": 2}}},
		Horizon: 4, // one agent, 6 slots of work
	}
	if err := in.Validate(); !errors.Is(err, ErrInvalidInstance) {
		t.Fatalf("expected ErrInvalidInstance, got %v", err)
	}

	// The same load spread over two agents fits.
	in.Agents = twoAgentFleet()
	if err := in.Validate(); err != nil {
		t.Fatalf("parallel-feasible instance rejected: %v", err)
	}
}

func TestValidate_DeadlineBeforeReleasePlusDuration(t *testing.T) {
	in := &Instance{
		Tasks: []Task{
			{ID: "t1", Duration: 4, Release: 2, Deadline: 5},
		},
		Agents:  twoAgentFleet(),
		Horizon: 10,
	}
	if err := in.Validate(); !errors.Is(err, ErrInvalidInstance) {
		t.Fatalf("expected ErrInvalidInstance, got %v", err)
	}
}

func TestValidate_UnknownPredecessor(t *testing.T) {
	in := &Instance{
		Tasks: []Task{
			{ID: "t1", Duration: 1, Predecessors: []string{"ghost"}},
		},
		Agents:  twoAgentFleet(),
		Horizon: 10,
	}
	if err := in.Validate(); !errors.Is(err, ErrInvalidInstance) {
		t.Fatalf("expected ErrInvalidInstance, got %v", err)
	}
}

func TestTopoOrder_Deterministic(t *testing.T) {
	in := &Instance{
		Tasks: []Task{
			{ID: "b", Duration: 1, Predecessors: []string{"a"}},
			{ID: "a", Duration: 1},
			{ID: "c", Duration: 1, Predecessors: []string{"a"}},
			{ID: "d", Duration: 1, Predecessors: []string{"b", "c"}},
		},
		Agents:  twoAgentFleet(),
		Horizon: 10,
	}

	first, err := in.TopoOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := in.TopoOrder()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("topo order not deterministic: %v vs %v", first, again)
			}
		}
	}
	if first[0] != "a" || first[len(first)-1] != "d" {
		t.Errorf("unexpected topo order: %v", first)
	}
}

func TestEarliestStarts(t *testing.T) {
	in := &Instance{
		Tasks: []Task{
			{ID: "t1", Duration: 3},
			{ID: "t2", Duration: 2, Predecessors: []string{"t1"}},
			{ID: "t3", Duration: 1, Release: 7},
		},
		Agents:  twoAgentFleet(),
		Horizon: 12,
	}
	es, err := in.EarliestStarts()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if es["t1"] != 0 {
		t.Errorf("t1 ES = %d, want 0", es["t1"])
	}
	if es["t2"] != 3 {
		t.Errorf("t2 ES = %d, want 3", es["t2"])
	}
	if es["t3"] != 7 {
		t.Errorf("t3 ES = %d, want 7", es["t3"])
	}
}

func TestEffectiveHorizon_Derived(t *testing.T) {
	in := &Instance{
		Tasks: []Task{
			{ID: "t1", Duration: 3},
			{ID: "t2", Duration: 4},
		},
		Agents: twoAgentFleet(),
	}
	if h := in.EffectiveHorizon(); h != 7 {
		t.Errorf("derived horizon = %d, want 7", h)
	}
}

func TestUtilizationByTag(t *testing.T) {
	in := &Instance{
		Tasks: []Task{
			{ID: "t1", Duration: 4, Resources: map[string]int{"cpu": 2}},
		},
		Agents:  twoAgentFleet(),
		Horizon: 8,
	}
	s := NewSchedule()
	s.Assignments["t1"] = Assignment{AgentID: "a1", Start: 0, End: 4}

	util := UtilizationByTag(in, s)
	// 2 units * 4 slots used of 4 units * 4 slots available over the makespan.
	if got := util["cpu"]; got != 0.5 {
		t.Errorf("cpu utilization = %v, want 0.5", got)
	}
}
