package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"congresstwin/internal/cost"
	"congresstwin/internal/montecarlo"
	"congresstwin/internal/service"
)

var (
	simIterations int
	simSeed       int64
	simEventDate  string
	simStrict     bool
	simTrackTask  string

	intelTask     string
	intelSimulate bool

	markovTask string

	costWeights []float64
)

var critPathCmd = &cobra.Command{
	Use:   "critical-path",
	Short: "Deterministic critical path of a plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.Service) error {
			view, err := svc.GetCriticalPath(ctx, requirePlan())
			if err != nil {
				return err
			}
			return emit(view)
		})
	},
}

var attentionCmd = &cobra.Command{
	Use:   "attention",
	Short: "Blockers, overdue work and upcoming deadlines",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.Service) error {
			dash, err := svc.GetAttention(ctx, requirePlan())
			if err != nil {
				return err
			}
			return emit(dash)
		})
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Monte Carlo end-date simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := montecarlo.Params{
			Iterations:    simIterations,
			Seed:          simSeed,
			DisallowPrior: simStrict,
			TrackTaskID:   simTrackTask,
		}
		if simEventDate != "" {
			event, err := time.Parse(time.RFC3339, simEventDate)
			if err != nil {
				return err
			}
			p.EventDate = &event
		}
		return withService(func(ctx context.Context, svc *service.Service) error {
			res, err := svc.RunMonteCarlo(ctx, requirePlan(), p)
			if err != nil {
				return err
			}
			return emit(res)
		})
	},
}

var markovCmd = &cobra.Command{
	Use:   "markov",
	Short: "Transition matrix and expected time to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.Service) error {
			view, err := svc.GetMarkov(ctx, requirePlan(), markovTask)
			if err != nil {
				return err
			}
			return emit(view)
		})
	},
}

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Multi-objective plan cost breakdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		var w cost.Weights
		if len(costWeights) == 5 {
			w = cost.Weights{
				Schedule: costWeights[0], Resource: costWeights[1],
				Risk: costWeights[2], Quality: costWeights[3], Disruption: costWeights[4],
			}
		}
		return withService(func(ctx context.Context, svc *service.Service) error {
			breakdown, err := svc.ComputeCost(ctx, requirePlan(), w)
			if err != nil {
				return err
			}
			return emit(breakdown)
		})
	},
}

var intelligenceCmd = &cobra.Command{
	Use:   "intelligence",
	Short: "Risk briefing for one task",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.Service) error {
			report, err := svc.GetTaskIntelligence(ctx, requirePlan(), intelTask, intelSimulate)
			if err != nil {
				return err
			}
			return emit(report)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{critPathCmd, attentionCmd, simulateCmd,
		markovCmd, costCmd, intelligenceCmd} {
		c.Flags().StringVar(&planFlag, "plan", "", "plan id (default: demo plan)")
	}

	simulateCmd.Flags().IntVarP(&simIterations, "iterations", "n", 0, "iteration count (default from config)")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "RNG seed for a reproducible run")
	simulateCmd.Flags().StringVar(&simEventDate, "event", "", "event date (RFC3339) for the on-time probability")
	simulateCmd.Flags().BoolVar(&simStrict, "strict", false, "fail instead of using the calibration prior")
	simulateCmd.Flags().StringVar(&simTrackTask, "track", "", "task id to collect a finish distribution for")

	markovCmd.Flags().StringVar(&markovTask, "task", "", "task id to focus on")

	costCmd.Flags().Float64SliceVar(&costWeights, "weights", nil,
		"schedule,resource,risk,quality,disruption weights")

	intelligenceCmd.Flags().StringVar(&intelTask, "task", "", "task id")
	intelligenceCmd.Flags().BoolVar(&intelSimulate, "simulate", false, "include Monte Carlo and state-model sections")
	_ = intelligenceCmd.MarkFlagRequired("task")
}
