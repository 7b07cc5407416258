// congresstwin is the CLI for the congress planning engine: seed a demo
// plan, inspect the critical path and attention lanes, run Monte Carlo and
// Markov analyses, evaluate the cost function, manage locks and external
// events, and clone template plans onto a new event date.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"congresstwin/internal/config"
	"congresstwin/internal/logging"
	"congresstwin/internal/planner"
	"congresstwin/internal/service"
	"congresstwin/internal/store"
)

var (
	verbose  bool
	cfgPath  string
	dbPath   string
	planFlag string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "congresstwin",
	Short: "Planning twin for congress and event programs",
	Long: `congresstwin maintains an executable twin of an event program: tasks,
dependencies and buckets live in a local SQLite database, and the engine
answers scheduling questions over them -- deterministic critical path,
Monte Carlo end-date distributions, Markov time-to-completion, attention
lanes and per-task intelligence briefings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		if verbose {
			cfg.Logging.Verbose = true
		}
		return logging.Init(cfg.Logging.Verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")

	rootCmd.AddCommand(seedCmd, plansCmd, critPathCmd, attentionCmd, simulateCmd,
		markovCmd, costCmd, intelligenceCmd, cloneCmd, archiveCmd, eventsCmd, locksCmd)
}

// exitCode maps the error taxonomy onto process exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, planner.ErrValidation):
		return 2
	case errors.Is(err, planner.ErrPlanNotFound),
		errors.Is(err, planner.ErrTaskNotFound),
		errors.Is(err, planner.ErrSubtaskNotFound),
		errors.Is(err, planner.ErrDependencyNotFound),
		errors.Is(err, planner.ErrEventNotFound),
		errors.Is(err, planner.ErrActionNotFound):
		return 3
	case errors.Is(err, planner.ErrDuplicateDependency),
		errors.Is(err, planner.ErrActionAlreadyDecided),
		errors.Is(err, planner.ErrNotHolder),
		planner.IsLockedByOther(err):
		return 4
	case planner.IsCycle(err):
		return 5
	case errors.Is(err, planner.ErrInsufficientCalibration):
		return 6
	case errors.Is(err, planner.ErrCancelled):
		return 7
	default:
		return 1
	}
}

// withService opens the store, builds the service, and runs fn under a
// signal-aware context.
func withService(fn func(ctx context.Context, svc *service.Service) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, service.New(st, cfg, nil))
}

// emit writes the result as indented JSON on stdout.
func emit(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// requirePlan resolves the --plan flag, defaulting to the demo plan.
func requirePlan() string {
	if planFlag != "" {
		return planFlag
	}
	return store.DemoPlanID
}
