package qubo

import (
	"encoding/json"
	"fmt"
)

// ProblemType values for the wire document.
const (
	TypeQUBO  = "qubo"
	TypeIsing = "ising"
)

// WireProblem is the canonical hand-off document between the encoder and
// solver backends: a problem type and a flat term list.
type WireProblem struct {
	ProblemType string `json:"problemType"`
	Terms       []Term `json:"terms"`
}

// Wire returns the wire document for the problem.
func (p *Problem) Wire() WireProblem {
	return WireProblem{ProblemType: TypeQUBO, Terms: p.Terms}
}

// MarshalWire serializes the problem for an external backend.
func MarshalWire(p *Problem) ([]byte, error) {
	return json.Marshal(p.Wire())
}

// ParseWire decodes a wire document and checks term arity. The term list
// round-trips losslessly: coefficients and ids come back exactly as emitted.
func ParseWire(data []byte) (*WireProblem, error) {
	var w WireProblem
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse wire problem: %w", err)
	}
	if w.ProblemType != TypeQUBO && w.ProblemType != TypeIsing {
		return nil, fmt.Errorf("unknown problem type %q", w.ProblemType)
	}
	for i, term := range w.Terms {
		if len(term.IDs) < 1 || len(term.IDs) > 2 {
			return nil, fmt.Errorf("term %d has %d variable ids, want 1 or 2", i, len(term.IDs))
		}
	}
	return &w, nil
}
