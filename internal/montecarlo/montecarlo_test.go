package montecarlo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"congresstwin/internal/history"
	"congresstwin/internal/planner"
)

// The simulator shards iterations across goroutines; every run must reap all
// of them, including cancelled ones.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testBase = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func chainSnap(assignees ...string) *planner.Snapshot {
	snap := &planner.Snapshot{
		Plan:    planner.Plan{ID: "plan-1"},
		Buckets: []planner.Bucket{{ID: "b1", Name: "Venue"}, {ID: "b2", Name: "Marketing"}},
		Tasks: []planner.Task{
			{PlanID: "plan-1", ID: "T1", Title: "Book venue", BucketID: "b1", Status: planner.StatusNotStarted},
			{PlanID: "plan-1", ID: "T2", Title: "Sign contract", BucketID: "b1", Status: planner.StatusNotStarted},
			{PlanID: "plan-1", ID: "T3", Title: "Announce", BucketID: "b2", Status: planner.StatusNotStarted},
		},
		Dependencies: []planner.Dependency{
			{PlanID: "plan-1", TaskID: "T2", PredecessorID: "T1", Type: planner.FinishToStart},
			{PlanID: "plan-1", TaskID: "T3", PredecessorID: "T2", Type: planner.FinishToStart},
		},
	}
	for i := range snap.Tasks {
		snap.Tasks[i].Assignees = assignees
	}
	return snap
}

func fixedCal(days map[string]float64) *history.Calibration {
	cal := &history.Calibration{Buckets: map[string]history.PERT{}}
	for bucket, d := range days {
		cal.Buckets[bucket] = history.PERT{
			Optimistic: d, MostLikely: d, Pessimistic: d, Bias: 1, SampleCount: 5,
		}
	}
	return cal
}

func TestRunDegenerateCalibrationIsExact(t *testing.T) {
	snap := chainSnap()
	cal := fixedCal(map[string]float64{"Venue": 2, "Marketing": 4})
	// Chain durations 2 + 2 + 4.
	event := testBase.Add(10 * 24 * time.Hour)
	res, err := Run(context.Background(), snap, cal, Params{
		Iterations: 64, Seed: 7, Base: testBase, EventDate: &event,
	})
	require.NoError(t, err)

	assert.InDelta(t, 8, res.EndDays.P50, 1e-9)
	assert.InDelta(t, 8, res.EndDays.P95, 1e-9)
	assert.Equal(t, testBase.Add(8*24*time.Hour), res.EndDates.P50)
	for _, id := range []string{"T1", "T2", "T3"} {
		assert.InDelta(t, 1, res.CPFrequency[id], 1e-9, id)
	}
	assert.InDelta(t, 0, res.BucketVariance["Venue"], 1e-9)
	require.NotNil(t, res.ProbabilityOnTimePercent)
	assert.InDelta(t, 100, *res.ProbabilityOnTimePercent, 1e-9)

	tight := testBase.Add(7 * 24 * time.Hour)
	res, err = Run(context.Background(), snap, cal, Params{
		Iterations: 64, Seed: 7, Base: testBase, EventDate: &tight,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0, *res.ProbabilityOnTimePercent, 1e-9)
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	snap := chainSnap("alice")
	cal := &history.Calibration{Buckets: map[string]history.PERT{
		"Venue":     {Optimistic: 1, MostLikely: 3, Pessimistic: 8, Bias: 1.1, SampleCount: 9},
		"Marketing": {Optimistic: 2, MostLikely: 4, Pessimistic: 6, Bias: 0.9, SampleCount: 9},
	}}

	one, err := Run(context.Background(), snap, cal, Params{
		Iterations: 300, Seed: 42, Base: testBase, Workers: 1,
	})
	require.NoError(t, err)
	four, err := Run(context.Background(), snap, cal, Params{
		Iterations: 300, Seed: 42, Base: testBase, Workers: 4,
	})
	require.NoError(t, err)

	if diff := cmp.Diff(one, four); diff != "" {
		t.Fatalf("results differ across worker counts (-one +four):\n%s", diff)
	}
	assert.Greater(t, one.EndDays.P95, one.EndDays.P50)
	assert.NotEmpty(t, one.Bottlenecks)
}

func TestRunQueueDelayPenalizesContention(t *testing.T) {
	// Two independent tasks, same assignee, fixed 2-day durations: the
	// second to be scheduled absorbs one 0.25-day penalty.
	snap := &planner.Snapshot{
		Plan:    planner.Plan{ID: "plan-1"},
		Buckets: []planner.Bucket{{ID: "b1", Name: "Venue"}},
		Tasks: []planner.Task{
			{PlanID: "plan-1", ID: "T1", Title: "a", BucketID: "b1", Status: planner.StatusNotStarted, Assignees: []string{"alice"}},
			{PlanID: "plan-1", ID: "T2", Title: "b", BucketID: "b1", Status: planner.StatusNotStarted, Assignees: []string{"alice"}},
		},
	}
	cal := fixedCal(map[string]float64{"Venue": 2})
	res, err := Run(context.Background(), snap, cal, Params{Iterations: 16, Seed: 1, Base: testBase})
	require.NoError(t, err)
	assert.InDelta(t, 2.25, res.EndDays.P50, 1e-9)

	// Different assignees: no contention.
	snap.Tasks[1].Assignees = []string{"bob"}
	res, err = Run(context.Background(), snap, cal, Params{Iterations: 16, Seed: 1, Base: testBase})
	require.NoError(t, err)
	assert.InDelta(t, 2, res.EndDays.P50, 1e-9)
}

func TestRunCompletedTasksContributeNothing(t *testing.T) {
	snap := chainSnap()
	done := testBase.Add(-24 * time.Hour)
	snap.Tasks[0].Status = planner.StatusCompleted
	snap.Tasks[0].PercentComplete = 100
	snap.Tasks[0].CompletedDateTime = &done
	cal := fixedCal(map[string]float64{"Venue": 2, "Marketing": 4})

	res, err := Run(context.Background(), snap, cal, Params{Iterations: 16, Seed: 3, Base: testBase})
	require.NoError(t, err)
	assert.InDelta(t, 6, res.EndDays.P50, 1e-9, "only T2 (2d) and T3 (4d) remain")
}

func TestRunInsufficientCalibration(t *testing.T) {
	snap := chainSnap()
	_, err := Run(context.Background(), snap, nil, Params{
		Iterations: 8, Seed: 1, Base: testBase, DisallowPrior: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, planner.ErrInsufficientCalibration))
	assert.Contains(t, err.Error(), "Venue")

	// Prior allowed by default.
	_, err = Run(context.Background(), snap, nil, Params{Iterations: 8, Seed: 1, Base: testBase})
	require.NoError(t, err)
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, chainSnap(), fixedCal(map[string]float64{"Venue": 2, "Marketing": 4}),
		Params{Iterations: 10000, Seed: 1, Base: testBase})
	require.Error(t, err)
	assert.True(t, errors.Is(err, planner.ErrCancelled))
}

func TestRunCyclePropagates(t *testing.T) {
	snap := chainSnap()
	snap.Dependencies = append(snap.Dependencies, planner.Dependency{
		PlanID: "plan-1", TaskID: "T1", PredecessorID: "T3", Type: planner.FinishToStart,
	})
	_, err := Run(context.Background(), snap, nil, Params{Iterations: 8, Base: testBase})
	require.Error(t, err)
	assert.True(t, planner.IsCycle(err))
}

func TestRunTrackedTask(t *testing.T) {
	snap := chainSnap()
	cal := fixedCal(map[string]float64{"Venue": 2, "Marketing": 4})
	res, err := Run(context.Background(), snap, cal, Params{
		Iterations: 32, Seed: 5, Base: testBase, TrackTaskID: "T2",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Tracked)
	assert.InDelta(t, 4, res.Tracked.P50FinishDays, 1e-9)
	assert.InDelta(t, 1, res.Tracked.CPProbability, 1e-9)
}
