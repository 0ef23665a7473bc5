package qubo

// Weights scales each penalty class and the objective. Penalty weights must
// stay large relative to the objective so that any constraint violation
// dominates the energy landscape.
type Weights struct {
	OneTaskOnce      float64 `json:"one_task_once"`
	NoOverlap        float64 `json:"no_overlap"`
	ResourceCapacity float64 `json:"resource_capacity"`
	Precedence       float64 `json:"precedence"`
	Objective        float64 `json:"objective"`
}

// DefaultWeights returns the stock penalty scaling.
func DefaultWeights() Weights {
	return Weights{
		OneTaskOnce:      20,
		NoOverlap:        15,
		ResourceCapacity: 15,
		Precedence:       15,
		Objective:        0.1,
	}
}

// Term is one linear (one id) or quadratic (two ids) contribution to the
// energy. This is also the wire representation consumed by solver backends.
type Term struct {
	Coefficient float64 `json:"coefficient"`
	IDs         []int   `json:"variableIds"`
}

// VarKey identifies a decision variable: task TaskIdx starts on agent
// AgentIdx at slot Slot. Indices refer to the instance's task/agent order.
type VarKey struct {
	TaskIdx  int
	AgentIdx int
	Slot     int
}

// VarRange is the half-open [Lo, Hi) id range owned by one task. Variables
// are allocated task-major, so each task's ids are contiguous.
type VarRange struct {
	Lo, Hi int
}

// Problem is a fully built QUBO: the term list plus the variable index
// mapping needed to decode solutions back into assignments.
type Problem struct {
	Terms  []Term
	Offset float64 // constant energy from expanded squared penalties

	Vars       []VarKey
	TaskRanges []VarRange // per task, same order as TaskIDs
	TaskIDs    []string
	AgentIDs   []string
	Horizon    int

	index map[VarKey]int
}

// NumVariables returns the variable count.
func (p *Problem) NumVariables() int {
	return len(p.Vars)
}

// VarID returns the id for a key, if the key was ever allocated.
func (p *Problem) VarID(key VarKey) (int, bool) {
	id, ok := p.index[key]
	return id, ok
}

// Key is the inverse mapping: id back to (task, agent, slot).
func (p *Problem) Key(id int) VarKey {
	return p.Vars[id]
}

// Energy evaluates the bit vector against the full term list, constant
// offset included. Lower is better.
func (p *Problem) Energy(bits []int) float64 {
	e := p.Offset
	for _, term := range p.Terms {
		switch len(term.IDs) {
		case 1:
			if bits[term.IDs[0]] == 1 {
				e += term.Coefficient
			}
		case 2:
			if bits[term.IDs[0]] == 1 && bits[term.IDs[1]] == 1 {
				e += term.Coefficient
			}
		}
	}
	return e
}
