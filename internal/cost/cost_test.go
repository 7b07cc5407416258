package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"congresstwin/internal/graph"
	"congresstwin/internal/planner"
)

var now = time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

func at(days float64) *time.Time {
	t := now.Add(time.Duration(days * 24 * float64(time.Hour)))
	return &t
}

func sched(t *testing.T, snap *planner.Snapshot) *graph.Schedule {
	t.Helper()
	g, err := graph.Build(snap)
	require.NoError(t, err)
	return graph.CriticalPath(g, graph.EstimateDurations(snap, nil), 0)
}

func TestComputeScheduleTardiness(t *testing.T) {
	// Completed two days late, planned span 4 days.
	snap := &planner.Snapshot{
		Plan: planner.Plan{ID: "p1"},
		Tasks: []planner.Task{{
			PlanID: "p1", ID: "T1", Title: "late", Status: planner.StatusCompleted,
			PercentComplete: 100, Priority: 5,
			StartDateTime: at(-6), DueDateTime: at(-2), CompletedDateTime: at(0),
		}},
	}
	b := Compute(snap, sched(t, snap), DefaultWeights(), Tuning{}, now)

	// alpha*2^2 plus gamma*2 (single task is the whole critical path).
	assert.InDelta(t, 4+3*2, b.Schedule, 1e-9)
	assert.Zero(t, b.Resource)
	assert.Zero(t, b.Risk, "completed tasks carry no delay risk")
	assert.InDelta(t, b.Schedule*1.0, b.Total, 1e-9)
}

func TestComputeEarlinessCredit(t *testing.T) {
	snap := &planner.Snapshot{
		Plan: planner.Plan{ID: "p1"},
		Tasks: []planner.Task{{
			PlanID: "p1", ID: "T1", Title: "early", Status: planner.StatusCompleted,
			PercentComplete: 100, Priority: 5,
			StartDateTime: at(-6), DueDateTime: at(0), CompletedDateTime: at(-2),
		}},
	}
	b := Compute(snap, sched(t, snap), DefaultWeights(), Tuning{}, now)
	assert.InDelta(t, -0.5*2, b.Schedule, 1e-9)
}

func TestComputeResourceCost(t *testing.T) {
	snap := &planner.Snapshot{Plan: planner.Plan{ID: "p1"}}
	// Seven live tasks for alice: over-allocation (7-5)^2 plus six context
	// switches at 0.2.
	for i := 0; i < 7; i++ {
		snap.Tasks = append(snap.Tasks, planner.Task{
			PlanID: "p1", ID: string(rune('a' + i)), Title: "t",
			Status: planner.StatusInProgress, PercentComplete: 10,
			Assignees: []string{"alice"},
		})
	}
	// A completed task does not count toward load.
	snap.Tasks = append(snap.Tasks, planner.Task{
		PlanID: "p1", ID: "z", Title: "done", Status: planner.StatusCompleted,
		PercentComplete: 100, CompletedDateTime: at(-1), Assignees: []string{"alice"},
	})
	b := Compute(snap, nil, DefaultWeights(), Tuning{}, now)
	assert.InDelta(t, 1.0*4+0.2*6, b.Resource, 1e-9)
}

func TestComputeRiskCost(t *testing.T) {
	// Unstarted task with downstream dependents: base probability 0.3,
	// impact (11-8)/10 + 2*0.1.
	snap := &planner.Snapshot{
		Plan: planner.Plan{ID: "p1"},
		Tasks: []planner.Task{
			{PlanID: "p1", ID: "T1", Title: "t", Status: planner.StatusNotStarted,
				Priority: 8, StartDateTime: at(1), DueDateTime: at(5)},
			{PlanID: "p1", ID: "T2", Title: "t", Status: planner.StatusNotStarted},
			{PlanID: "p1", ID: "T3", Title: "t", Status: planner.StatusNotStarted},
		},
		Dependencies: []planner.Dependency{
			{PlanID: "p1", TaskID: "T2", PredecessorID: "T1", Type: planner.FinishToStart},
			{PlanID: "p1", TaskID: "T3", PredecessorID: "T1", Type: planner.FinishToStart},
		},
	}
	b := Compute(snap, nil, DefaultWeights(), Tuning{}, now)
	assert.InDelta(t, 2.0*0.3*(0.3+0.2), b.Risk, 1e-9)

	// Behind schedule: started 4 days ago on a 4-day span but only 25% done.
	snap.Tasks[0].Status = planner.StatusInProgress
	snap.Tasks[0].PercentComplete = 25
	snap.Tasks[0].StartDateTime = at(-4)
	snap.Tasks[0].DueDateTime = at(0)
	b = Compute(snap, nil, DefaultWeights(), Tuning{}, now)
	// elapsed 4, expected 1, prob (4-1)/4 = 0.75.
	assert.InDelta(t, 2.0*0.75*(0.3+0.2), b.Risk, 1e-9)
}

func TestComputeWeightsApplied(t *testing.T) {
	snap := &planner.Snapshot{
		Plan: planner.Plan{ID: "p1"},
		Tasks: []planner.Task{{
			PlanID: "p1", ID: "T1", Title: "late", Status: planner.StatusCompleted,
			PercentComplete: 100, Priority: 5,
			StartDateTime: at(-6), DueDateTime: at(-1), CompletedDateTime: at(0),
		}},
	}
	w := Weights{Schedule: 2}
	b := Compute(snap, nil, w, Tuning{}, now)
	assert.InDelta(t, 2*b.Schedule, b.Total, 1e-9)
	assert.Equal(t, w, b.Weights)
}

func TestComputeEmptyPlan(t *testing.T) {
	snap := &planner.Snapshot{Plan: planner.Plan{ID: "p1"}}
	b := Compute(snap, nil, DefaultWeights(), Tuning{}, now)
	assert.Zero(t, b.Total)
}
