package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // config field path, e.g. "solver.order"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidSolverNames returns the backends the cascade knows how to build.
func ValidSolverNames() []string {
	return []string{"remote", "anneal", "circuit", "inspired", "fallback"}
}

// Validate checks the Config and returns all validation errors found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	for _, name := range c.Solver.Order {
		if !slices.Contains(ValidSolverNames(), name) {
			errors = append(errors, ValidationError{
				Field:   "solver.order",
				Value:   name,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidSolverNames(), ", ")),
			})
		}
	}
	if slices.Contains(c.Solver.Order, "remote") && c.Solver.Endpoint == "" {
		errors = append(errors, ValidationError{
			Field:   "solver.endpoint",
			Value:   c.Solver.Endpoint,
			Message: "required when the remote backend is in solver.order",
		})
	}
	if c.Solver.PerSolverTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "solver.per_solver_timeout_ms",
			Value:   c.Solver.PerSolverTimeoutMs,
			Message: "must be non-negative",
		})
	}
	if c.Solver.GlobalTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "solver.global_timeout_ms",
			Value:   c.Solver.GlobalTimeoutMs,
			Message: "must be non-negative",
		})
	}
	if c.Solver.QuotaBudget < 0 {
		errors = append(errors, ValidationError{
			Field:   "solver.quota_budget",
			Value:   c.Solver.QuotaBudget,
			Message: "must be non-negative",
		})
	}

	weights := []struct {
		field string
		value float64
	}{
		{"weights.one_task_once", c.Weights.OneTaskOnce},
		{"weights.no_overlap", c.Weights.NoOverlap},
		{"weights.resource_capacity", c.Weights.ResourceCapacity},
		{"weights.precedence", c.Weights.Precedence},
		{"weights.objective", c.Weights.Objective},
	}
	for _, w := range weights {
		if w.value < 0 {
			errors = append(errors, ValidationError{
				Field:   w.field,
				Value:   w.value,
				Message: "must be non-negative",
			})
		}
	}

	if c.Decompose.MaxVariables < 0 {
		errors = append(errors, ValidationError{
			Field:   "decompose.max_variables",
			Value:   c.Decompose.MaxVariables,
			Message: "must be non-negative",
		})
	}
	if c.Decompose.MaxParallel < 0 {
		errors = append(errors, ValidationError{
			Field:   "decompose.max_parallel",
			Value:   c.Decompose.MaxParallel,
			Message: "must be non-negative",
		})
	}
	if c.Repair.MaxAttempts < 0 {
		errors = append(errors, ValidationError{
			Field:   "repair.max_attempts",
			Value:   c.Repair.MaxAttempts,
			Message: "must be non-negative",
		})
	}

	return errors
}
