// Package report renders run results for terminals and machine consumers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/joshharrison/qsched/internal/decode"
	"github.com/joshharrison/qsched/internal/engine"
	"github.com/joshharrison/qsched/internal/model"
	"github.com/joshharrison/qsched/internal/ui"
)

// Reporter formats one run result against its instance.
type Reporter struct {
	Inst   *model.Instance
	Result *engine.RunResult
}

// New creates a Reporter.
func New(in *model.Instance, r *engine.RunResult) *Reporter {
	return &Reporter{Inst: in, Result: r}
}

// PrintSchedule writes a per-agent timeline table.
func (r *Reporter) PrintSchedule(w io.Writer) {
	byAgent := make(map[string][]string)
	for _, t := range r.Inst.Tasks {
		if a, ok := r.Result.Schedule.Assignments[t.ID]; ok {
			byAgent[a.AgentID] = append(byAgent[a.AgentID], t.ID)
		}
	}

	for _, agent := range r.Inst.Agents {
		ids := byAgent[agent.ID]
		sort.Slice(ids, func(i, j int) bool {
			return r.Result.Schedule.Assignments[ids[i]].Start < r.Result.Schedule.Assignments[ids[j]].Start
		})

		fmt.Fprintf(w, "  %s\n", ui.AgentPrefix(agent.ID))
		if len(ids) == 0 {
			fmt.Fprintf(w, "    %s\n", ui.Dim("idle"))
			continue
		}
		for _, id := range ids {
			a := r.Result.Schedule.Assignments[id]
			fmt.Fprintf(w, "    %-12s %s\n", id, ui.Dim(fmt.Sprintf("slots [%d,%d)", a.Start, a.End)))
		}
	}
	fmt.Fprintln(w)
}

// PrintSummary writes the verdict line plus metrics and any violations.
func (r *Reporter) PrintSummary(w io.Writer) {
	res := r.Result
	fmt.Fprintf(w, "%s %s: makespan %s, %d/%d tasks placed\n",
		ui.BoldCyan("qsched"),
		ui.Verdict(res.Valid),
		ui.Bold(fmt.Sprintf("%d", res.Makespan)),
		len(res.Schedule.Assignments), len(r.Inst.Tasks))

	tags := make([]string, 0, len(res.Utilization))
	for tag := range res.Utilization {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		fmt.Fprintf(w, "  %-12s %s\n", tag, utilizationBar(res.Utilization[tag]))
	}

	solvers := strings.Join(res.SolverNames, ", ")
	fmt.Fprintf(w, "  %s %s", ui.Dim("solved by"), ui.SolverBadge(firstNonEmpty(res.SolverNames)))
	if len(res.SolverNames) > 1 {
		fmt.Fprintf(w, " %s", ui.Dim("("+solvers+")"))
	}
	if res.SubProblems > 1 {
		fmt.Fprintf(w, " %s", ui.Dim(fmt.Sprintf("across %d sub-problems", res.SubProblems)))
	}
	if res.QuotaUsed > 0 {
		fmt.Fprintf(w, " %s", ui.Yellow(fmt.Sprintf("quota used: %d", res.QuotaUsed)))
	}
	fmt.Fprintln(w)

	for _, v := range res.Violations {
		fmt.Fprintf(w, "  %s %s: %s\n", ui.Red("✗"), v.Class, v.Detail)
	}
}

// jsonMetrics is the machine-readable metrics block.
type jsonMetrics struct {
	Makespan             int                `json:"makespan"`
	Utilization          map[string]float64 `json:"resourceUtilizationByTag"`
	ConstraintViolations []decode.Violation `json:"constraintViolations"`
	SubProblems          int                `json:"subProblems"`
	SolverNames          []string           `json:"solverNames"`
	QuotaUsed            int64              `json:"quotaUsed"`
}

type jsonReport struct {
	Valid    bool                        `json:"valid"`
	Schedule map[string]model.Assignment `json:"schedule"`
	Metrics  jsonMetrics                 `json:"metrics"`
}

// JSON renders the full machine-readable report.
func (r *Reporter) JSON() ([]byte, error) {
	res := r.Result
	violations := res.Violations
	if violations == nil {
		violations = []decode.Violation{}
	}
	return json.MarshalIndent(jsonReport{
		Valid:    res.Valid,
		Schedule: res.Schedule.Assignments,
		Metrics: jsonMetrics{
			Makespan:             res.Makespan,
			Utilization:          res.Utilization,
			ConstraintViolations: violations,
			SubProblems:          res.SubProblems,
			SolverNames:          res.SolverNames,
			QuotaUsed:            res.QuotaUsed,
		},
	}, "", "  ")
}

// utilizationBar renders a ten-cell bar with the percentage.
func utilizationBar(u float64) string {
	if u < 0 {
		u = 0
	}
	if u > 1 {
		u = 1
	}
	filled := int(u*10 + 0.5)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
	return fmt.Sprintf("%s %s", ui.Cyan(bar), ui.Dim(fmt.Sprintf("%3.0f%%", u*100)))
}

func firstNonEmpty(names []string) string {
	for _, n := range names {
		if n != "" {
			return n
		}
	}
	return ""
}
