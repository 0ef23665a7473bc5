// Package ui holds the terminal styling helpers shared by the CLI.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Sprint color functions for building styled strings.
var (
	Bold       = color.New(color.Bold).SprintFunc()
	Dim        = color.New(color.Faint).SprintFunc()
	Cyan       = color.New(color.FgCyan).SprintFunc()
	Green      = color.New(color.FgGreen).SprintFunc()
	Red        = color.New(color.FgRed).SprintFunc()
	Yellow     = color.New(color.FgYellow).SprintFunc()
	Magenta    = color.New(color.FgMagenta).SprintFunc()
	BoldCyan   = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen  = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed    = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldWhite  = color.New(color.Bold, color.FgWhite).SprintFunc()
	BoldYellow = color.New(color.Bold, color.FgYellow).SprintFunc()
)

// PrintLogo renders the colored qsched banner to stderr.
func PrintLogo() {
	w := os.Stderr
	frame := color.New(color.FgCyan)
	brand := color.New(color.Bold, color.FgMagenta)
	tag := color.New(color.Faint)

	fmt.Fprintln(w)
	frame.Fprintln(w, "   +---------------------+")
	brand.Fprintln(w, "   |  q  s  c  h  e  d   |")
	frame.Fprintln(w, "   +---------------------+")
	tag.Fprintln(w, "   QUBO schedule optimizer")
	fmt.Fprintln(w)
}

// agentColors is a palette of distinct bold colors for differentiating
// agents in schedule tables.
var agentColors = []func(a ...interface{}) string{
	BoldCyan,
	BoldGreen,
	BoldYellow,
	color.New(color.Bold, color.FgHiBlue).SprintFunc(),
	color.New(color.Bold, color.FgHiMagenta).SprintFunc(),
	color.New(color.Bold, color.FgHiRed).SprintFunc(),
}

// agentColorIndex hashes an agent ID to a palette index.
func agentColorIndex(agentID string) int {
	var h uint32
	for _, c := range agentID {
		h = h*31 + uint32(c)
	}
	return int(h % uint32(len(agentColors)))
}

// AgentPrefix returns a colored [agent-id] prefix string. Each agent gets a
// distinct color from the palette.
func AgentPrefix(agentID string) string {
	c := agentColors[agentColorIndex(agentID)]
	return Dim("[") + c(agentID) + Dim("]")
}

// Verdict returns a colored validity marker for schedule summaries.
func Verdict(valid bool) string {
	if valid {
		return Green("✓ valid")
	}
	return Red("✗ invalid")
}

// SolverBadge returns a colored tag for the backend that produced a result.
func SolverBadge(name string) string {
	switch name {
	case "remote":
		return BoldCyan(name)
	case "fallback":
		return Yellow(name)
	default:
		return Cyan(name)
	}
}
