package engine

import (
	"testing"

	"github.com/joshharrison/qsched/internal/config"
)

func TestOptionsFromConfig_BuildsCascadeOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Solver.Order = []string{"inspired", "fallback"}

	opts := OptionsFromConfig(cfg)
	if len(opts.Solvers) != 2 {
		t.Fatalf("solvers = %d, want 2", len(opts.Solvers))
	}
	if got := opts.Solvers[0].Name(); got != "inspired" {
		t.Errorf("first solver = %q, want inspired", got)
	}
	if got := opts.Solvers[1].Name(); got != "fallback" {
		t.Errorf("second solver = %q, want fallback", got)
	}
}

func TestResolveSeed(t *testing.T) {
	if got := resolveSeed(42); got != 42 {
		t.Errorf("explicit seed rewritten to %d", got)
	}
	if got := resolveSeed(0); got == 0 {
		t.Error("zero seed must resolve to a clock-derived one")
	}
}
