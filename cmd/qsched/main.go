package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joshharrison/qsched/internal/config"
	"github.com/joshharrison/qsched/internal/engine"
	"github.com/joshharrison/qsched/internal/httpd"
	"github.com/joshharrison/qsched/internal/model"
	"github.com/joshharrison/qsched/internal/qubo"
	"github.com/joshharrison/qsched/internal/report"
	"github.com/joshharrison/qsched/internal/ui"
)

var version = "dev"

var (
	flagConfig      string
	flagJSON        bool
	flagMaxParallel int
	flagMaxVars     int
	flagTimeout     string
	flagSeed        int64
	flagQuota       int64
	flagSolvers     []string
	flagAddr        string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "qsched",
		Short: "Schedule task graphs by QUBO optimization",
		Long: `Qsched encodes a scheduling instance (tasks, agents, time slots) as a
QUBO problem, runs it through a cascade of quantum-style and classical
solvers, and decodes the lowest-energy solution back into a validated
schedule.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().IntVar(&flagMaxParallel, "max-parallel", 4, "Max concurrent sub-problem solves")
	rootCmd.PersistentFlags().IntVar(&flagMaxVars, "max-vars", 0, "Variable ceiling per sub-problem (0 = no decomposition)")
	rootCmd.PersistentFlags().StringVar(&flagTimeout, "timeout", "", "Global run timeout (e.g. 30s)")
	rootCmd.PersistentFlags().Int64Var(&flagSeed, "seed", 0, "Seed for the stochastic backends (0 = from time)")
	rootCmd.PersistentFlags().Int64Var(&flagQuota, "quota", 0, "Paid-solver charge budget per run (0 = unlimited)")
	rootCmd.PersistentFlags().StringSliceVar(&flagSolvers, "solvers", nil, "Solver preference order")

	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(encodeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.Red("Error:"), err)
		os.Exit(1)
	}
}

// initConfig wires viper: defaults, optional config file, QSCHED_* env.
func initConfig() error {
	config.SetDefaults()

	if flagConfig != "" {
		viper.SetConfigFile(flagConfig)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}
	viper.SetEnvPrefix("QSCHED")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if flagConfig != "" {
			return fmt.Errorf("read config: %w", err)
		}
		// Missing default config is fine; anything else is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// buildOptions resolves config plus command-line overrides into run options.
func buildOptions(cmd *cobra.Command) (engine.Options, error) {
	if err := initConfig(); err != nil {
		return engine.Options{}, err
	}
	cfg, err := config.Load()
	if err != nil {
		return engine.Options{}, err
	}

	if cmd.Flags().Changed("max-parallel") {
		cfg.Decompose.MaxParallel = flagMaxParallel
	}
	if cmd.Flags().Changed("max-vars") {
		cfg.Decompose.MaxVariables = flagMaxVars
	}
	if cmd.Flags().Changed("seed") {
		cfg.Solver.Seed = flagSeed
	}
	if cmd.Flags().Changed("quota") {
		cfg.Solver.QuotaBudget = flagQuota
	}
	if cmd.Flags().Changed("solvers") {
		cfg.Solver.Order = flagSolvers
		if errs := cfg.Validate(); len(errs) > 0 {
			return engine.Options{}, config.ValidationErrors(errs)
		}
	}

	opts := engine.OptionsFromConfig(cfg)
	if flagTimeout != "" {
		d, err := time.ParseDuration(flagTimeout)
		if err != nil {
			return engine.Options{}, fmt.Errorf("invalid --timeout: %w", err)
		}
		opts.GlobalTimeout = d
	}
	return opts, nil
}

// loadInstance reads the instance from the given path, or stdin for "-".
func loadInstance(path string) (*model.Instance, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read instance: %w", err)
	}

	var in model.Instance
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse instance: %w", err)
	}
	return &in, nil
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule [instance.json]",
		Short: "Solve an instance and print the schedule",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions(cmd)
			if err != nil {
				return err
			}
			in, err := loadInstance(argOrEmpty(args))
			if err != nil {
				return err
			}

			st, stateErr := engine.NewRunState()
			if stateErr != nil {
				fmt.Fprintf(os.Stderr, "  %s cannot persist run state: %v\n", ui.Yellow("Warning:"), stateErr)
			}

			e := engine.New(opts)
			result, runErr := e.Run(context.Background(), in)
			if st != nil {
				if err := st.Finish(result, runErr); err != nil {
					fmt.Fprintf(os.Stderr, "  %s save run state: %v\n", ui.Yellow("Warning:"), err)
				}
			}
			if result == nil {
				return runErr
			}

			r := report.New(in, result)
			if flagJSON {
				data, err := r.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			} else {
				r.PrintSummary(os.Stdout)
				fmt.Println()
				r.PrintSchedule(os.Stdout)
			}
			return runErr
		},
	}
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [instance.json]",
		Short: "Check an instance for structural problems without solving",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := loadInstance(argOrEmpty(args))
			if err != nil {
				return err
			}
			if err := in.Validate(); err != nil {
				return err
			}
			fmt.Printf("%s %d tasks, %d agents, horizon %d\n",
				ui.Green("✓ instance ok:"), len(in.Tasks), len(in.Agents), in.EffectiveHorizon())
			return nil
		},
	}
}

func encodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode [instance.json]",
		Short: "Encode an instance and print the QUBO wire format",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			in, err := loadInstance(argOrEmpty(args))
			if err != nil {
				return err
			}

			p, err := qubo.Encode(in, engine.OptionsFromConfig(cfg).Weights)
			if err != nil {
				return err
			}
			data, err := qubo.MarshalWire(p)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "  %s %d variables, %d terms\n",
				ui.Dim("encoded:"), p.NumVariables(), len(p.Terms))
			fmt.Println(string(data))
			return nil
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduling REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			addr := cfg.Server.Addr
			if cmd.Flags().Changed("addr") {
				addr = flagAddr
			}

			ui.PrintLogo()
			fmt.Fprintf(os.Stderr, "%s listening on %s\n", ui.BoldCyan("qsched"), ui.Bold(addr))
			return http.ListenAndServe(addr, httpd.NewServer(opts))
		},
	}
	cmd.Flags().StringVar(&flagAddr, "addr", ":8321", "Listen address")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the most recent run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !engine.StateExists() {
				return fmt.Errorf("no runs recorded here yet")
			}
			st, err := engine.LoadRunState()
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(st)
			}
			fmt.Printf("%s run %s: %s\n", ui.BoldCyan("qsched"), ui.Dim(st.RunID), st.Status)
			fmt.Printf("  started   %s\n", st.StartedAt.Format("2006-01-02 15:04:05"))
			if st.FinishedAt != nil {
				fmt.Printf("  finished  %s\n", st.FinishedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("  verdict   %s, makespan %d\n", ui.Verdict(st.Valid), st.Makespan)
			if st.SubProblems > 1 {
				fmt.Printf("  solved as %d sub-problems\n", st.SubProblems)
			}
			if len(st.Solvers) > 0 {
				fmt.Printf("  backends  %s\n", strings.Join(st.Solvers, ", "))
			}
			if st.QuotaUsed > 0 {
				fmt.Printf("  quota     %d\n", st.QuotaUsed)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the qsched version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("qsched %s\n", version)
		},
	}
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func argOrEmpty(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
