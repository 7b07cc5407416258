package intel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"congresstwin/internal/history"
	"congresstwin/internal/markov"
	"congresstwin/internal/planner"
)

var now = time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)

func at(days int) *time.Time {
	t := now.AddDate(0, 0, days)
	return &t
}

// depSnap wires T under four predecessors with distinct risk profiles. Date
// spans make U1 the only critical predecessor.
func depSnap() *planner.Snapshot {
	return &planner.Snapshot{
		Plan: planner.Plan{ID: "plan-1"},
		Tasks: []planner.Task{
			{PlanID: "plan-1", ID: "T", Title: "Assemble program", Status: planner.StatusInProgress,
				PercentComplete: 30, StartDateTime: at(0), DueDateTime: at(2)},
			{PlanID: "plan-1", ID: "U1", Title: "Confirm speakers", Status: planner.StatusInProgress,
				PercentComplete: 60, StartDateTime: at(-6), DueDateTime: at(-1)},
			{PlanID: "plan-1", ID: "U2", Title: "Print badges", Status: planner.StatusBlocked,
				PercentComplete: 10, StartDateTime: at(-1), DueDateTime: at(0)},
			{PlanID: "plan-1", ID: "U3", Title: "Collect abstracts", Status: planner.StatusCompleted,
				PercentComplete: 100, StartDateTime: at(-4), DueDateTime: at(-3), CompletedDateTime: at(-1)},
			{PlanID: "plan-1", ID: "U4", Title: "Pick dates", Status: planner.StatusCompleted,
				PercentComplete: 100, StartDateTime: at(-4), DueDateTime: at(-3), CompletedDateTime: at(-3)},
		},
		Dependencies: []planner.Dependency{
			{PlanID: "plan-1", TaskID: "T", PredecessorID: "U1", Type: planner.FinishToStart},
			{PlanID: "plan-1", TaskID: "T", PredecessorID: "U2", Type: planner.FinishToStart},
			{PlanID: "plan-1", TaskID: "T", PredecessorID: "U3", Type: planner.FinishToStart},
			{PlanID: "plan-1", TaskID: "T", PredecessorID: "U4", Type: planner.FinishToStart},
		},
	}
}

func TestAnalyzeTaskNotFound(t *testing.T) {
	_, err := Analyze(context.Background(), depSnap(), "nope", nil, Params{Now: now})
	assert.ErrorIs(t, err, planner.ErrTaskNotFound)
}

func TestDependencyRiskLevels(t *testing.T) {
	r, err := Analyze(context.Background(), depSnap(), "T", nil, Params{Now: now})
	require.NoError(t, err)
	require.Len(t, r.DependencyRisks, 4)

	byID := map[string]DependencyRisk{}
	for _, d := range r.DependencyRisks {
		byID[d.TaskID] = d
	}

	// Overdue and on the critical path.
	assert.Equal(t, RiskHigh, byID["U1"].Level)
	assert.True(t, byID["U1"].Delayed)
	assert.Equal(t, 1, byID["U1"].DelayDays)
	assert.True(t, byID["U1"].OnPath)

	// Blocked but not yet past due.
	assert.Equal(t, RiskMedium, byID["U2"].Level)
	assert.False(t, byID["U2"].Delayed)

	// Finished two days after its due date, off the critical path.
	assert.Equal(t, RiskMedium, byID["U3"].Level)
	assert.True(t, byID["U3"].Delayed)
	assert.Equal(t, 2, byID["U3"].DelayDays)

	// Finished on time.
	assert.Equal(t, RiskLow, byID["U4"].Level)
}

func TestTimelineSuggestions(t *testing.T) {
	snap := depSnap()
	r, err := Analyze(context.Background(), snap, "T", nil, Params{Now: now})
	require.NoError(t, err)

	types := map[string]bool{}
	for _, s := range r.TimelineSuggestions {
		types[s.Type] = true
	}
	// Due in two days at 30%: at risk. On the critical path with zero slack.
	assert.True(t, types["at_risk"], "due within 3 days at 30%%")
	assert.True(t, types["cp_tight"])
	assert.False(t, types["overdue"])

	// Push the due date into the past: overdue replaces at-risk.
	snap.Tasks[0].DueDateTime = at(-2)
	r, err = Analyze(context.Background(), snap, "T", nil, Params{Now: now})
	require.NoError(t, err)
	types = map[string]bool{}
	for _, s := range r.TimelineSuggestions {
		types[s.Type] = true
	}
	assert.True(t, types["overdue"])
	assert.False(t, types["at_risk"])
}

func TestRiskScoreWeighting(t *testing.T) {
	snap := depSnap()
	snap.Tasks[0].DueDateTime = at(-2) // task itself overdue
	r, err := Analyze(context.Background(), snap, "T", nil, Params{Now: now})
	require.NoError(t, err)

	// 1 high dep (30) + 2 timeline risks (50) + on-CP (15) + overdue (10),
	// clamped to 100.
	assert.Equal(t, 100, r.RiskScore)
	assert.Contains(t, r.RiskFactors, "1 high-risk dependencies")
	assert.Contains(t, r.RiskFactors, "on critical path")
	assert.Contains(t, r.RiskFactors, "overdue")
}

func TestRiskScoreQuietTask(t *testing.T) {
	snap := &planner.Snapshot{
		Plan: planner.Plan{ID: "plan-1"},
		Tasks: []planner.Task{
			{PlanID: "plan-1", ID: "T", Title: "Calm", Status: planner.StatusInProgress,
				PercentComplete: 80, StartDateTime: at(-1), DueDateTime: at(30)},
			{PlanID: "plan-1", ID: "X", Title: "Long pole", Status: planner.StatusInProgress,
				PercentComplete: 10, StartDateTime: at(0), DueDateTime: at(60)},
		},
	}
	r, err := Analyze(context.Background(), snap, "T", nil, Params{Now: now})
	require.NoError(t, err)
	assert.Zero(t, r.RiskScore)
	assert.Empty(t, r.RiskFactors)
	assert.Empty(t, r.TimelineSuggestions)
}

func assigneeSnap() *planner.Snapshot {
	snap := &planner.Snapshot{
		Plan: planner.Plan{ID: "plan-1"},
		Tasks: []planner.Task{
			{PlanID: "plan-1", ID: "T", Title: "Target", Status: planner.StatusNotStarted,
				DueDateTime: at(10), Assignees: []string{"carol"}},
			{PlanID: "plan-1", ID: "A1", Title: "t", Status: planner.StatusInProgress,
				PercentComplete: 10, DueDateTime: at(5), Assignees: []string{"alice"}},
		},
	}
	for i, due := range []int{-1, 4, 6} {
		snap.Tasks = append(snap.Tasks, planner.Task{
			PlanID: "plan-1", ID: "B" + string(rune('1'+i)), Title: "t",
			Status: planner.StatusInProgress, PercentComplete: 10,
			DueDateTime: at(due), Assignees: []string{"bob"},
		})
	}
	return snap
}

func TestRankAssignees(t *testing.T) {
	samples := []planner.HistoricalSample{
		{TaskID: "h1", Assignees: []string{"alice"}, TerminalState: planner.StatusCompleted},
		{TaskID: "h2", Assignees: []string{"alice"}, TerminalState: planner.StatusCompleted},
		{TaskID: "h3", Assignees: []string{"bob"}, TerminalState: planner.StatusCompleted},
		{TaskID: "h4", Assignees: []string{"bob"}, TerminalState: planner.StatusCancelled},
	}
	r, err := Analyze(context.Background(), assigneeSnap(), "T", nil, Params{Now: now, Samples: samples})
	require.NoError(t, err)
	require.Len(t, r.OptimalAssignees, 3)

	// alice: 0.5*1.0 - 0.3*(1/3) = 0.4; carol neutral idle: 0.25;
	// bob: 0.25 - 0.3 - 0.2 = -0.25.
	assert.Equal(t, "alice", r.OptimalAssignees[0].Assignee)
	assert.InDelta(t, 0.4, r.OptimalAssignees[0].Score, 1e-9)
	assert.Equal(t, "carol", r.OptimalAssignees[1].Assignee)
	assert.True(t, r.OptimalAssignees[1].Current)
	assert.Equal(t, "bob", r.OptimalAssignees[2].Assignee)
	assert.InDelta(t, -0.25, r.OptimalAssignees[2].Score, 1e-9)

	// The best candidate is not currently assigned: reassignment suggested.
	var reassign bool
	for _, s := range r.ResourceSuggestions {
		if s.Type == "reassignment" {
			reassign = true
			assert.Contains(t, s.Action, "alice")
		}
	}
	assert.True(t, reassign)
}

func TestResourceOverload(t *testing.T) {
	snap := &planner.Snapshot{
		Plan: planner.Plan{ID: "plan-1"},
		Tasks: []planner.Task{{
			PlanID: "plan-1", ID: "T", Title: "Target", Status: planner.StatusNotStarted,
			DueDateTime: at(10), Assignees: []string{"dave"},
		}},
	}
	for i := 0; i < 5; i++ {
		snap.Tasks = append(snap.Tasks, planner.Task{
			PlanID: "plan-1", ID: "D" + string(rune('1'+i)), Title: "t",
			Status: planner.StatusInProgress, PercentComplete: 10,
			DueDateTime: at(3), Assignees: []string{"dave"},
		})
	}
	r, err := Analyze(context.Background(), snap, "T", nil, Params{Now: now})
	require.NoError(t, err)

	var overload bool
	for _, s := range r.ResourceSuggestions {
		if s.Type == "resource_overload" {
			overload = true
			assert.Contains(t, s.Title, "dave")
		}
	}
	assert.True(t, overload)
	assert.GreaterOrEqual(t, r.RiskScore, weightResource)
}

func TestAnalyzeWithSimulations(t *testing.T) {
	snap := &planner.Snapshot{
		Plan:    planner.Plan{ID: "plan-1"},
		Buckets: []planner.Bucket{{PlanID: "plan-1", ID: "b1", Name: "Venue"}},
		Tasks: []planner.Task{{
			PlanID: "plan-1", ID: "T", Title: "Target", BucketID: "b1",
			Status: planner.StatusNotStarted, DueDateTime: at(10),
		}},
	}
	cal := &history.Calibration{Buckets: map[string]history.PERT{
		"Venue": {Optimistic: 2, MostLikely: 2, Pessimistic: 2, Bias: 1, SampleCount: 5},
	}}

	r, err := Analyze(context.Background(), snap, "T", cal, Params{Now: now, Simulate: true, Seed: 11})
	require.NoError(t, err)

	require.NotNil(t, r.MonteCarlo)
	assert.InDelta(t, 2, r.MonteCarlo.P50FinishDays, 1e-9)
	assert.InDelta(t, 2, r.MonteCarlo.P95FinishDays, 1e-9)
	assert.InDelta(t, 1, r.MonteCarlo.CPProbability, 1e-9)

	require.NotNil(t, r.Markov)
	assert.Equal(t, markov.NotStarted, r.Markov.State)
	assert.InDelta(t, 60.0/7.0, r.Markov.ExpectedDays, 1e-9)
	assert.Nil(t, r.Diagnostics)
}
