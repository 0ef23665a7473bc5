package decode

import (
	"errors"
	"fmt"
	"sort"

	"github.com/joshharrison/qsched/internal/model"
)

// ErrConstraintViolation marks a decoded schedule that breaks a hard
// invariant. Recoverable: callers retry with repair or amplified weights.
var ErrConstraintViolation = errors.New("constraint violation")

// Class names a violated constraint family.
type Class string

const (
	ClassAssignment Class = "assignment"
	ClassOverlap    Class = "overlap"
	ClassCapacity   Class = "capacity"
	ClassPrecedence Class = "precedence"
)

// Violation pins one broken invariant to the offending task/agent/slot.
type Violation struct {
	Class   Class  `json:"class"`
	TaskID  string `json:"taskId,omitempty"`
	AgentID string `json:"agentId,omitempty"`
	Slot    int    `json:"slot,omitempty"`
	Detail  string `json:"detail"`
}

// ValidationResult is the structured verdict on a decoded schedule.
type ValidationResult struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Validate re-checks the four hard invariants directly against the schedule
// rather than trusting QUBO energy, which solver noise can game: every task
// assigned exactly once, no agent double-booked, per-slot resource demand
// within fleet capacity, and precedence edges honored.
func Validate(in *model.Instance, s model.Schedule) ValidationResult {
	var out []Violation

	// Single assignment: every task present with a sane slot range.
	for _, t := range in.Tasks {
		a, ok := s.Assignments[t.ID]
		if !ok {
			out = append(out, Violation{
				Class: ClassAssignment, TaskID: t.ID,
				Detail: "task not assigned",
			})
			continue
		}
		if in.AgentByID(a.AgentID) == nil {
			out = append(out, Violation{
				Class: ClassAssignment, TaskID: t.ID, AgentID: a.AgentID,
				Detail: fmt.Sprintf("unknown agent %q", a.AgentID),
			})
			continue
		}
		if a.Start < 0 || a.End != a.Start+t.Duration {
			out = append(out, Violation{
				Class: ClassAssignment, TaskID: t.ID, AgentID: a.AgentID, Slot: a.Start,
				Detail: fmt.Sprintf("slot range [%d,%d) does not match duration %d", a.Start, a.End, t.Duration),
			})
		}
		if h := in.EffectiveHorizon(); a.End > h {
			out = append(out, Violation{
				Class: ClassAssignment, TaskID: t.ID, AgentID: a.AgentID, Slot: a.Start,
				Detail: fmt.Sprintf("ends at %d, beyond horizon %d", a.End, h),
			})
		}
	}
	for id := range s.Assignments {
		if in.TaskByID(id) == nil {
			out = append(out, Violation{
				Class: ClassAssignment, TaskID: id,
				Detail: "assignment for unknown task",
			})
		}
	}

	// No agent double-booked.
	perAgent := make(map[string][]string)
	for _, t := range in.Tasks {
		if a, ok := s.Assignments[t.ID]; ok {
			perAgent[a.AgentID] = append(perAgent[a.AgentID], t.ID)
		}
	}
	agentIDs := make([]string, 0, len(perAgent))
	for id := range perAgent {
		agentIDs = append(agentIDs, id)
	}
	sort.Strings(agentIDs)
	for _, agentID := range agentIDs {
		ids := perAgent[agentID]
		sort.Strings(ids)
		for x := 0; x < len(ids); x++ {
			ax := s.Assignments[ids[x]]
			for y := x + 1; y < len(ids); y++ {
				ay := s.Assignments[ids[y]]
				if ax.Start < ay.End && ay.Start < ax.End {
					out = append(out, Violation{
						Class: ClassOverlap, TaskID: ids[y], AgentID: agentID, Slot: ay.Start,
						Detail: fmt.Sprintf("overlaps task %s on agent %s", ids[x], agentID),
					})
				}
			}
		}
	}

	// Per-slot resource capacity against aggregate fleet supply.
	fleet := in.FleetCapacity()
	tags := make([]string, 0, len(fleet))
	for tag := range fleet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	makespan := s.Makespan()
	for _, tag := range tags {
		cap := fleet[tag]
		for slot := 0; slot < makespan; slot++ {
			demand := 0
			worst := ""
			for _, t := range in.Tasks {
				need := t.Resources[tag]
				if need == 0 {
					continue
				}
				a, ok := s.Assignments[t.ID]
				if !ok || slot < a.Start || slot >= a.End {
					continue
				}
				demand += need
				worst = t.ID
			}
			if demand > cap {
				out = append(out, Violation{
					Class: ClassCapacity, TaskID: worst, Slot: slot,
					Detail: fmt.Sprintf("demand %d for %q exceeds fleet capacity %d at slot %d", demand, tag, cap, slot),
				})
			}
		}
	}

	// Precedence: predecessor must finish before the successor starts.
	for _, t := range in.Tasks {
		succ, ok := s.Assignments[t.ID]
		if !ok {
			continue
		}
		for _, predID := range t.Predecessors {
			pred, ok := s.Assignments[predID]
			if !ok {
				continue
			}
			if succ.Start < pred.End {
				out = append(out, Violation{
					Class: ClassPrecedence, TaskID: t.ID, AgentID: succ.AgentID, Slot: succ.Start,
					Detail: fmt.Sprintf("starts at %d before predecessor %s finishes at %d", succ.Start, predID, pred.End),
				})
			}
		}
	}

	return ValidationResult{Valid: len(out) == 0, Violations: out}
}

// Err returns nil for a valid result, or an ErrConstraintViolation wrapping
// error naming the first violation.
func (vr ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	v := vr.Violations[0]
	return fmt.Errorf("%w: %d broken, first: %s %s", ErrConstraintViolation, len(vr.Violations), v.Class, v.Detail)
}

// OffendingTasks returns the distinct task IDs named in the violations, in
// instance order, so repair is deterministic.
func OffendingTasks(in *model.Instance, vr ValidationResult) []string {
	named := make(map[string]bool)
	for _, v := range vr.Violations {
		if v.TaskID != "" {
			named[v.TaskID] = true
		}
	}
	var out []string
	for _, t := range in.Tasks {
		if named[t.ID] {
			out = append(out, t.ID)
		}
	}
	return out
}
