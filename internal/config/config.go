// Package config loads and validates qsched configuration through viper.
// Values resolve in the usual order: flags bound by the CLI, environment
// (QSCHED_*), config file, then defaults.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete qsched configuration.
type Config struct {
	Solver    SolverConfig    `mapstructure:"solver"`
	Weights   WeightsConfig   `mapstructure:"weights"`
	Decompose DecomposeConfig `mapstructure:"decompose"`
	Repair    RepairConfig    `mapstructure:"repair"`
	Server    ServerConfig    `mapstructure:"server"`
}

// SolverConfig controls the cascade.
type SolverConfig struct {
	// Order is the backend preference order. Known names: "remote",
	// "anneal", "circuit", "inspired", "fallback". The classical fallback
	// is always appended when missing.
	Order []string `mapstructure:"order"`
	// PerSolverTimeoutMs bounds each backend attempt.
	PerSolverTimeoutMs int `mapstructure:"per_solver_timeout_ms"`
	// GlobalTimeoutMs bounds the whole run; 0 disables it.
	GlobalTimeoutMs int `mapstructure:"global_timeout_ms"`
	// QuotaBudget caps total paid charges per run; 0 means unlimited.
	QuotaBudget int64 `mapstructure:"quota_budget"`
	// Seed makes the stochastic backends reproducible; 0 seeds from time.
	Seed int64 `mapstructure:"seed"`
	// Endpoint and Token configure the remote backend.
	Endpoint string `mapstructure:"endpoint"`
	Token    string `mapstructure:"token"`
}

// WeightsConfig holds the penalty weights. Zero values fall back to the
// built-in defaults.
type WeightsConfig struct {
	OneTaskOnce      float64 `mapstructure:"one_task_once"`
	NoOverlap        float64 `mapstructure:"no_overlap"`
	ResourceCapacity float64 `mapstructure:"resource_capacity"`
	Precedence       float64 `mapstructure:"precedence"`
	Objective        float64 `mapstructure:"objective"`
}

// DecomposeConfig controls hierarchical decomposition.
type DecomposeConfig struct {
	// MaxVariables is the per-sub-problem variable ceiling; 0 disables
	// decomposition.
	MaxVariables int `mapstructure:"max_variables"`
	// MaxParallel bounds concurrent sub-problem solves.
	MaxParallel int `mapstructure:"max_parallel"`
}

// RepairConfig controls post-decode reconciliation.
type RepairConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Solver: SolverConfig{
			Order:              []string{"anneal", "inspired", "fallback"},
			PerSolverTimeoutMs: 10000,
			GlobalTimeoutMs:    0,
			QuotaBudget:        0,
			Seed:               0,
		},
		Decompose: DecomposeConfig{
			MaxVariables: 0,
			MaxParallel:  4,
		},
		Repair: RepairConfig{
			MaxAttempts: 3,
		},
		Server: ServerConfig{
			Addr: ":8321",
		},
	}
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("solver.order", defaults.Solver.Order)
	viper.SetDefault("solver.per_solver_timeout_ms", defaults.Solver.PerSolverTimeoutMs)
	viper.SetDefault("solver.global_timeout_ms", defaults.Solver.GlobalTimeoutMs)
	viper.SetDefault("solver.quota_budget", defaults.Solver.QuotaBudget)
	viper.SetDefault("solver.seed", defaults.Solver.Seed)
	viper.SetDefault("solver.endpoint", defaults.Solver.Endpoint)
	viper.SetDefault("solver.token", defaults.Solver.Token)

	viper.SetDefault("weights.one_task_once", defaults.Weights.OneTaskOnce)
	viper.SetDefault("weights.no_overlap", defaults.Weights.NoOverlap)
	viper.SetDefault("weights.resource_capacity", defaults.Weights.ResourceCapacity)
	viper.SetDefault("weights.precedence", defaults.Weights.Precedence)
	viper.SetDefault("weights.objective", defaults.Weights.Objective)

	viper.SetDefault("decompose.max_variables", defaults.Decompose.MaxVariables)
	viper.SetDefault("decompose.max_parallel", defaults.Decompose.MaxParallel)

	viper.SetDefault("repair.max_attempts", defaults.Repair.MaxAttempts)

	viper.SetDefault("server.addr", defaults.Server.Addr)
}

// Load reads the configuration from viper and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// PerSolverTimeout returns the per-backend timeout as a duration.
func (s *SolverConfig) PerSolverTimeout() time.Duration {
	return time.Duration(s.PerSolverTimeoutMs) * time.Millisecond
}

// GlobalTimeout returns the run timeout as a duration (0 means disabled).
func (s *SolverConfig) GlobalTimeout() time.Duration {
	return time.Duration(s.GlobalTimeoutMs) * time.Millisecond
}

// ConfigDir returns the directory qsched reads its config file from.
func ConfigDir() string {
	if dir := os.Getenv("QSCHED_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".qsched"
	}
	return filepath.Join(home, ".config", "qsched")
}

// ConfigFile returns the full path of the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
