package main

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"congresstwin/internal/planner"
	"congresstwin/internal/service"
)

var (
	listTemplates bool

	cloneSource   string
	cloneTarget   string
	cloneEvent    string
	clonePreserve bool

	ingestType     string
	ingestTitle    string
	ingestSeverity string
	ingestTasks    []string
	ingestPayload  string

	actionUser string

	lockTask string
	lockUser string
	lockTTL  time.Duration
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the demo plan and historical calibration data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.Service) error {
			return svc.SeedDemoPlan(ctx)
		})
	},
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List plans (or templates)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.Service) error {
			var (
				plans []planner.Plan
				err   error
			)
			if listTemplates {
				plans, err = svc.ListTemplates(ctx)
			} else {
				plans, err = svc.ListPlans(ctx)
			}
			if err != nil {
				return err
			}
			return emit(plans)
		})
	},
}

var cloneCmd = &cobra.Command{
	Use:   "clone",
	Short: "Clone a plan onto a new event date",
	RunE: func(cmd *cobra.Command, args []string) error {
		event, err := time.Parse(time.RFC3339, cloneEvent)
		if err != nil {
			return planner.Validationf("bad event date %q: %v", cloneEvent, err)
		}
		return withService(func(ctx context.Context, svc *service.Service) error {
			plan, err := svc.CloneTemplate(ctx, cloneSource, cloneTarget, event,
				service.CloneOptions{PreserveIDs: clonePreserve})
			if err != nil {
				return err
			}
			return emit(plan)
		})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Turn a finished plan's outcomes into calibration samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.Service) error {
			samples, err := svc.ArchivePlan(ctx, requirePlan())
			if err != nil {
				return err
			}
			return emit(map[string]any{"archived": len(samples), "samples": samples})
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "External events and their proposed actions",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a plan's events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.Service) error {
			evs, err := svc.ListEvents(ctx, requirePlan())
			if err != nil {
				return err
			}
			return emit(evs)
		})
	},
}

var eventsIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest an event and generate proposed actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ev := &planner.ExternalEvent{
			PlanID:          requirePlan(),
			EventType:       ingestType,
			Title:           ingestTitle,
			Severity:        planner.Severity(ingestSeverity),
			AffectedTaskIDs: ingestTasks,
		}
		if ingestPayload != "" {
			if err := json.Unmarshal([]byte(ingestPayload), &ev.Payload); err != nil {
				return planner.Validationf("bad payload JSON: %v", err)
			}
		}
		return withService(func(ctx context.Context, svc *service.Service) error {
			stored, proposals, err := svc.IngestEvent(ctx, ev)
			if err != nil {
				return err
			}
			return emit(map[string]any{"event": stored, "proposedActions": proposals})
		})
	},
}

var eventsDeleteCmd = &cobra.Command{
	Use:   "delete <event-id>",
	Short: "Delete an event and its proposed actions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return planner.Validationf("bad event id %q", args[0])
		}
		return withService(func(ctx context.Context, svc *service.Service) error {
			return svc.DeleteEvent(ctx, requirePlan(), id)
		})
	},
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List pending proposed actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.Service) error {
			actions, err := svc.ListProposedActions(ctx, requirePlan(), planner.ActionPending)
			if err != nil {
				return err
			}
			return emit(actions)
		})
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <action-id>",
	Short: "Approve a proposed action and apply its mutation",
	Args:  cobra.ExactArgs(1),
	RunE:  decideAction(true),
}

var rejectCmd = &cobra.Command{
	Use:   "reject <action-id>",
	Short: "Reject a proposed action",
	Args:  cobra.ExactArgs(1),
	RunE:  decideAction(false),
}

func decideAction(approve bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return planner.Validationf("bad action id %q", args[0])
		}
		return withService(func(ctx context.Context, svc *service.Service) error {
			var action *planner.ProposedAction
			if approve {
				action, err = svc.ApproveAction(ctx, requirePlan(), id, actionUser)
			} else {
				action, err = svc.RejectAction(ctx, requirePlan(), id, actionUser)
			}
			if err != nil {
				return err
			}
			return emit(action)
		})
	}
}

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Advisory task edit locks",
}

var lockAcquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Take or renew a task lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.Service) error {
			lock, err := svc.AcquireLock(ctx, requirePlan(), lockTask, lockUser, lockTTL)
			if err != nil {
				return err
			}
			return emit(lock)
		})
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release a task lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.Service) error {
			return svc.ReleaseLock(ctx, requirePlan(), lockTask, lockUser)
		})
	},
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the live lock on a task, if any",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.Service) error {
			lock, err := svc.GetLock(ctx, requirePlan(), lockTask)
			if err != nil {
				return err
			}
			if lock == nil {
				return emit(map[string]any{"locked": false})
			}
			return emit(lock)
		})
	},
}

func init() {
	plansCmd.Flags().BoolVar(&listTemplates, "templates", false, "list template plans instead")

	cloneCmd.Flags().StringVar(&cloneSource, "source", "", "source plan id")
	cloneCmd.Flags().StringVar(&cloneTarget, "target", "", "new plan id")
	cloneCmd.Flags().StringVar(&cloneEvent, "event", "", "event date (RFC3339) to anchor the clone on")
	cloneCmd.Flags().BoolVar(&clonePreserve, "preserve-ids", false, "keep the source's task and subtask ids")
	_ = cloneCmd.MarkFlagRequired("source")
	_ = cloneCmd.MarkFlagRequired("target")
	_ = cloneCmd.MarkFlagRequired("event")

	archiveCmd.Flags().StringVar(&planFlag, "plan", "", "plan id (default: demo plan)")

	eventsCmd.AddCommand(eventsListCmd, eventsIngestCmd, eventsDeleteCmd, actionsCmd, approveCmd, rejectCmd)
	for _, c := range []*cobra.Command{eventsListCmd, eventsIngestCmd, eventsDeleteCmd,
		actionsCmd, approveCmd, rejectCmd} {
		c.Flags().StringVar(&planFlag, "plan", "", "plan id (default: demo plan)")
	}
	eventsIngestCmd.Flags().StringVar(&ingestType, "type", "", "event type, e.g. flight_cancellation")
	eventsIngestCmd.Flags().StringVar(&ingestTitle, "title", "", "event title")
	eventsIngestCmd.Flags().StringVar(&ingestSeverity, "severity", "medium", "low|medium|high|critical")
	eventsIngestCmd.Flags().StringSliceVar(&ingestTasks, "tasks", nil, "affected task ids")
	eventsIngestCmd.Flags().StringVar(&ingestPayload, "payload", "", "event payload as JSON")
	_ = eventsIngestCmd.MarkFlagRequired("type")
	approveCmd.Flags().StringVar(&actionUser, "user", "", "deciding user id")
	rejectCmd.Flags().StringVar(&actionUser, "user", "", "deciding user id")

	locksCmd.AddCommand(lockAcquireCmd, lockReleaseCmd, lockStatusCmd)
	for _, c := range []*cobra.Command{lockAcquireCmd, lockReleaseCmd, lockStatusCmd} {
		c.Flags().StringVar(&planFlag, "plan", "", "plan id (default: demo plan)")
		c.Flags().StringVar(&lockTask, "task", "", "task id")
		_ = c.MarkFlagRequired("task")
	}
	lockAcquireCmd.Flags().StringVar(&lockUser, "user", "", "user id")
	lockReleaseCmd.Flags().StringVar(&lockUser, "user", "", "user id")
	lockAcquireCmd.Flags().DurationVar(&lockTTL, "ttl", 0, "lock TTL (default from config)")
	_ = lockAcquireCmd.MarkFlagRequired("user")
	_ = lockReleaseCmd.MarkFlagRequired("user")
}
