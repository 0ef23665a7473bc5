package model

// Task is a single unit of work to be scheduled. Tasks are immutable once a
// scheduling run begins; the caller owns them and discards them when the run
// completes.
type Task struct {
	ID           string         `json:"id"`
	Duration     int            `json:"duration"` // positive, in time slots
	Resources    map[string]int `json:"resources,omitempty"`
	Predecessors []string       `json:"predecessors,omitempty"`
	Priority     int            `json:"priority,omitempty"` // 0 means default (1)
	Release      int            `json:"release,omitempty"`  // earliest start slot
	Deadline     int            `json:"deadline,omitempty"` // latest finish slot, 0 = none
}

// PriorityWeight returns the objective multiplier for the task.
func (t Task) PriorityWeight() int {
	if t.Priority <= 0 {
		return 1
	}
	return t.Priority
}

// Agent supplies resource capacity. One agent may back multiple concurrent
// resource units up to its per-tag capacity.
type Agent struct {
	ID       string         `json:"id"`
	Capacity map[string]int `json:"capacity,omitempty"`

	// Optional availability window in slots. AvailableUntil == 0 means open.
	AvailableFrom  int `json:"available_from,omitempty"`
	AvailableUntil int `json:"available_until,omitempty"`
}

// Instance is the complete input to one scheduling run: tasks, the agent
// fleet, and the horizon in slots. Horizon 0 asks the engine to derive one.
type Instance struct {
	Tasks   []Task  `json:"tasks"`
	Agents  []Agent `json:"agents"`
	Horizon int     `json:"horizon,omitempty"`
}

// Assignment places one task: which agent runs it and over which slot range.
// End is exclusive (Start + Duration).
type Assignment struct {
	AgentID string `json:"agentId"`
	Start   int    `json:"startSlot"`
	End     int    `json:"endSlot"`
}

// Schedule maps task IDs to assignments.
type Schedule struct {
	Assignments map[string]Assignment `json:"assignments"`
}

// NewSchedule returns an empty schedule.
func NewSchedule() Schedule {
	return Schedule{Assignments: make(map[string]Assignment)}
}

// Makespan returns the largest end slot across all assignments.
func (s Schedule) Makespan() int {
	max := 0
	for _, a := range s.Assignments {
		if a.End > max {
			max = a.End
		}
	}
	return max
}

// Clone returns a deep copy of the schedule.
func (s Schedule) Clone() Schedule {
	out := NewSchedule()
	for id, a := range s.Assignments {
		out.Assignments[id] = a
	}
	return out
}
