package store

import (
	"context"
	"fmt"
	"time"

	"congresstwin/internal/planner"
)

// DemoPlanID is the plan created by Seed.
const DemoPlanID = "congress-2026"

// HistoricalPlanIDs are the sample sets Seed installs for calibration.
var HistoricalPlanIDs = []string{"congress-2022", "congress-2023", "congress-2024"}

type seedTask struct {
	id, bucket, title string
	status            planner.Status
	percent           int
	startDay, dueDay  int // day offsets from the seed base
	assignees         []string
	priority          int
}

type seedDep struct {
	task, pred string
	depType    planner.DependencyType
}

var seedBuckets = []string{
	"Venue & Logistics", "Speaker Management", "Registration",
	"Travel & Accommodation", "Marketing",
}

var seedTasks = []seedTask{
	{"task-venue-shortlist", "Venue & Logistics", "Shortlist candidate venues", planner.StatusCompleted, 100, 0, 7, []string{"maria"}, 8},
	{"task-venue-contract", "Venue & Logistics", "Negotiate and sign venue contract", planner.StatusInProgress, 60, 7, 21, []string{"maria"}, 9},
	{"task-catering", "Venue & Logistics", "Book catering and AV services", planner.StatusNotStarted, 0, 21, 35, []string{"jonas"}, 6},
	{"task-cfp", "Speaker Management", "Open call for papers", planner.StatusCompleted, 100, 0, 14, []string{"li"}, 8},
	{"task-review", "Speaker Management", "Review submissions and select speakers", planner.StatusInProgress, 40, 14, 42, []string{"li", "amara"}, 8},
	{"task-program", "Speaker Management", "Assemble final program", planner.StatusNotStarted, 0, 42, 56, []string{"amara"}, 9},
	{"task-reg-open", "Registration", "Open registration portal", planner.StatusInProgress, 30, 14, 28, []string{"jonas"}, 7},
	{"task-badges", "Registration", "Print badges and welcome packs", planner.StatusNotStarted, 0, 70, 80, []string{"jonas"}, 4},
	{"task-flights", "Travel & Accommodation", "Book speaker flights", planner.StatusNotStarted, 0, 56, 70, []string{"maria"}, 7},
	{"task-hotels", "Travel & Accommodation", "Reserve hotel blocks", planner.StatusInProgress, 20, 28, 49, []string{"maria"}, 6},
	{"task-website", "Marketing", "Launch congress website", planner.StatusCompleted, 100, 0, 10, []string{"li"}, 7},
	{"task-campaign", "Marketing", "Run promotion campaign", planner.StatusInProgress, 50, 10, 75, []string{"li"}, 5},
}

var seedDeps = []seedDep{
	{"task-venue-contract", "task-venue-shortlist", planner.FinishToStart},
	{"task-catering", "task-venue-contract", planner.FinishToStart},
	{"task-review", "task-cfp", planner.FinishToStart},
	{"task-program", "task-review", planner.FinishToStart},
	{"task-reg-open", "task-website", planner.FinishToStart},
	{"task-badges", "task-reg-open", planner.FinishToStart},
	{"task-flights", "task-program", planner.FinishToStart},
	{"task-hotels", "task-venue-contract", planner.StartToStart},
	{"task-campaign", "task-website", planner.FinishToStart},
}

// Seed installs the demo plan and three historical sample sets. Idempotent:
// an existing demo plan short-circuits.
func (s *Store) Seed(ctx context.Context, now time.Time) error {
	if _, err := s.GetPlan(ctx, DemoPlanID); err == nil {
		return nil
	}
	base := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -30)
	event := base.AddDate(0, 0, 90)

	return s.WithTx(ctx, func(tx *Tx) error {
		plan := &planner.Plan{ID: DemoPlanID, Name: "Congress 2026", EventDate: &event, CreatedAt: now.UTC()}
		if err := tx.CreatePlan(ctx, plan); err != nil {
			return err
		}

		bucketIDs := map[string]string{}
		hint := ""
		for _, name := range seedBuckets {
			hint = planner.OrderHintBetween(hint, "")
			b := &planner.Bucket{
				ID:     fmt.Sprintf("bucket-%d", len(bucketIDs)+1),
				PlanID: DemoPlanID, Name: name, OrderHint: hint,
			}
			if err := tx.PutBucket(ctx, b); err != nil {
				return err
			}
			bucketIDs[name] = b.ID
		}

		hint = ""
		for _, st := range seedTasks {
			hint = planner.OrderHintBetween(hint, "")
			start := base.AddDate(0, 0, st.startDay)
			due := base.AddDate(0, 0, st.dueDay)
			task := &planner.Task{
				PlanID: DemoPlanID, ID: st.id, Title: st.title,
				BucketID: bucketIDs[st.bucket], Status: st.status,
				PercentComplete: st.percent, Priority: st.priority,
				StartDateTime: &start, DueDateTime: &due,
				Assignees: st.assignees, OrderHint: hint,
				CreatedDateTime: now.UTC(), LastModifiedAt: now.UTC(),
			}
			if st.status == planner.StatusCompleted {
				done := due.AddDate(0, 0, -1)
				task.CompletedDateTime = &done
			}
			if err := tx.PutTask(ctx, task); err != nil {
				return err
			}
		}

		for _, d := range seedDeps {
			dep := &planner.Dependency{
				PlanID: DemoPlanID, TaskID: d.task, PredecessorID: d.pred, Type: d.depType,
			}
			if err := tx.AddDependency(ctx, dep); err != nil {
				return err
			}
		}

		return tx.PutSamples(ctx, historicalSeedSamples())
	})
}

// historicalSeedSamples synthesizes three past congresses worth of outcomes.
// Planned/actual spreads are deliberately uneven per bucket so the PERT fit
// and bias come out non-trivial.
func historicalSeedSamples() []planner.HistoricalSample {
	type outcome struct {
		bucket   string
		planned  float64
		actuals  [3]float64 // one per historical year
		assignee string
		blocks   int
	}
	outcomes := []outcome{
		{"Venue & Logistics", 7, [3]float64{8, 10, 9}, "maria", 1},
		{"Venue & Logistics", 14, [3]float64{16, 13, 18}, "maria", 0},
		{"Venue & Logistics", 10, [3]float64{9, 12, 11}, "jonas", 0},
		{"Speaker Management", 14, [3]float64{13, 15, 17}, "li", 0},
		{"Speaker Management", 28, [3]float64{30, 26, 33}, "amara", 2},
		{"Speaker Management", 10, [3]float64{12, 11, 10}, "li", 0},
		{"Registration", 14, [3]float64{14, 13, 15}, "jonas", 0},
		{"Registration", 7, [3]float64{6, 8, 7}, "jonas", 0},
		{"Travel & Accommodation", 14, [3]float64{18, 16, 21}, "maria", 1},
		{"Travel & Accommodation", 21, [3]float64{20, 24, 22}, "maria", 0},
		{"Marketing", 10, [3]float64{9, 10, 12}, "li", 0},
		{"Marketing", 30, [3]float64{28, 34, 31}, "li", 1},
	}

	var samples []planner.HistoricalSample
	for year, planID := range HistoricalPlanIDs {
		for i, o := range outcomes {
			samples = append(samples, planner.HistoricalSample{
				PlanID:        planID,
				TaskID:        fmt.Sprintf("hist-%d", i+1),
				Bucket:        o.bucket,
				PlannedDays:   o.planned,
				ActualDays:    o.actuals[year],
				Assignees:     []string{o.assignee},
				TerminalState: planner.StatusCompleted,
				BlockCount:    o.blocks,
			})
		}
	}
	return samples
}
