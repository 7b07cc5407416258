package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"congresstwin/internal/planner"
)

func ts(t *testing.T, s string) *time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return &v
}

func snapshot(taskIDs []string, deps ...planner.Dependency) *planner.Snapshot {
	s := &planner.Snapshot{Plan: planner.Plan{ID: "plan-1"}}
	for _, id := range taskIDs {
		s.Tasks = append(s.Tasks, planner.Task{
			PlanID: "plan-1", ID: id, Title: id, Status: planner.StatusNotStarted,
		})
	}
	s.Dependencies = deps
	return s
}

func dep(pred, succ string, typ planner.DependencyType) planner.Dependency {
	return planner.Dependency{PlanID: "plan-1", TaskID: succ, PredecessorID: pred, Type: typ}
}

func TestBuildTopologicalOrder(t *testing.T) {
	// Diamond T1 -> {T2, T3} -> T4, plus isolated T5.
	snap := snapshot([]string{"T4", "T3", "T2", "T1", "T5"},
		dep("T1", "T2", planner.FinishToStart),
		dep("T1", "T3", planner.FinishToStart),
		dep("T2", "T4", planner.FinishToStart),
		dep("T3", "T4", planner.FinishToStart),
	)
	g, err := Build(snap)
	require.NoError(t, err)

	assert.Equal(t, []string{"T1", "T2", "T3", "T4", "T5"}, g.Order,
		"ready set pops ascending task id")
	assert.Equal(t, []string{"T2", "T3", "T4"}, g.Downstream("T1"))
	assert.Equal(t, []string{"T1", "T2", "T3"}, g.Upstream("T4"))
	assert.Empty(t, g.Downstream("T5"))
	assert.True(t, g.Contains("T5"))
	assert.Len(t, g.Successors("T1"), 2)
	assert.Len(t, g.Predecessors("T4"), 2)
}

func TestBuildCycleDetected(t *testing.T) {
	snap := snapshot([]string{"T1", "T2", "T3"},
		dep("T1", "T2", planner.FinishToStart),
		dep("T2", "T3", planner.FinishToStart),
		dep("T3", "T1", planner.FinishToStart),
	)
	_, err := Build(snap)
	require.Error(t, err)

	var cyc *planner.CycleError
	require.True(t, errors.As(err, &cyc))
	assert.Equal(t, "plan-1", cyc.PlanID)
	assert.Equal(t, []string{"T1", "T2", "T3"}, cyc.Nodes)
}

func TestBuildRepairExcludesCycleEdge(t *testing.T) {
	snap := snapshot([]string{"T1", "T2", "T3"},
		dep("T1", "T2", planner.FinishToStart),
		dep("T2", "T3", planner.FinishToStart),
		dep("T3", "T1", planner.FinishToStart),
	)
	g, excluded := BuildRepair(snap)
	require.NotNil(t, g.Order)
	assert.Len(t, g.Order, 3)
	require.Len(t, excluded, 1)
	// Deterministic choice: smallest (predecessor, successor) pair on the
	// cycle is T1 -> T2.
	assert.Equal(t, "T1", excluded[0].PredecessorID)
	assert.Equal(t, "T2", excluded[0].TaskID)
}

func TestBuildDropsDanglingEdges(t *testing.T) {
	snap := snapshot([]string{"T1", "T2"},
		dep("T1", "T2", planner.FinishToStart),
		dep("T1", "ghost", planner.FinishToStart),
		dep("ghost", "T2", planner.FinishToStart),
	)
	g, err := Build(snap)
	require.NoError(t, err)
	assert.Len(t, g.Successors("T1"), 1)
	assert.Len(t, g.Predecessors("T2"), 1)
}

func TestWouldCycle(t *testing.T) {
	snap := snapshot([]string{"T1", "T2", "T3"},
		dep("T1", "T2", planner.FinishToStart),
		dep("T2", "T3", planner.FinishToStart),
	)
	g, err := Build(snap)
	require.NoError(t, err)

	assert.True(t, g.WouldCycle("T3", "T1"), "closing the chain is a cycle")
	assert.True(t, g.WouldCycle("T1", "T1"), "self loop")
	assert.False(t, g.WouldCycle("T1", "T3"), "redundant forward edge is allowed")
}

func TestCriticalPathChain(t *testing.T) {
	snap := snapshot([]string{"T1", "T2", "T3"},
		dep("T1", "T2", planner.FinishToStart),
		dep("T2", "T3", planner.FinishToStart),
	)
	g, err := Build(snap)
	require.NoError(t, err)

	s := CriticalPath(g, Durations{"T1": 2, "T2": 3, "T3": 4}, 0)
	assert.InDelta(t, 9, s.EndDays, 1e-9)
	assert.Equal(t, []string{"T1", "T2", "T3"}, s.Canonical)
	assert.InDelta(t, 2, s.Timing["T2"].EarliestStart, 1e-9)
	assert.InDelta(t, 5, s.Timing["T2"].EarliestFinish, 1e-9)
	assert.InDelta(t, 0, s.Timing["T2"].Slack, 1e-9)
	for _, id := range []string{"T1", "T2", "T3"} {
		assert.True(t, s.OnPath[id], id)
	}
}

func TestCriticalPathParallelTie(t *testing.T) {
	// Diamond with equal branch weights: every task is on-path, the canonical
	// path takes the lexicographically smaller branch.
	snap := snapshot([]string{"T1", "T2", "T3", "T4"},
		dep("T1", "T2", planner.FinishToStart),
		dep("T1", "T3", planner.FinishToStart),
		dep("T2", "T4", planner.FinishToStart),
		dep("T3", "T4", planner.FinishToStart),
	)
	g, err := Build(snap)
	require.NoError(t, err)

	s := CriticalPath(g, Durations{"T1": 2, "T2": 2, "T3": 2, "T4": 2}, 0)
	assert.InDelta(t, 6, s.EndDays, 1e-9)
	assert.Equal(t, []string{"T1", "T2", "T4"}, s.Canonical)
	for _, id := range []string{"T1", "T2", "T3", "T4"} {
		assert.True(t, s.OnPath[id], id)
	}
}

func TestCriticalPathSlackOffPath(t *testing.T) {
	snap := snapshot([]string{"T1", "T2", "T3", "T4"},
		dep("T1", "T2", planner.FinishToStart),
		dep("T1", "T3", planner.FinishToStart),
		dep("T2", "T4", planner.FinishToStart),
		dep("T3", "T4", planner.FinishToStart),
	)
	g, err := Build(snap)
	require.NoError(t, err)

	s := CriticalPath(g, Durations{"T1": 1, "T2": 5, "T3": 2, "T4": 1}, 0)
	assert.False(t, s.OnPath["T3"])
	assert.InDelta(t, 3, s.Timing["T3"].Slack, 1e-9)
	assert.Equal(t, []string{"T1", "T2", "T4"}, s.Canonical)
}

func TestCriticalPathStartToStart(t *testing.T) {
	// SS edge: T2 may start as soon as T1 starts.
	snap := snapshot([]string{"T1", "T2"},
		dep("T1", "T2", planner.StartToStart),
	)
	g, err := Build(snap)
	require.NoError(t, err)

	s := CriticalPath(g, Durations{"T1": 3, "T2": 5}, 0)
	assert.InDelta(t, 0, s.Timing["T2"].EarliestStart, 1e-9)
	assert.InDelta(t, 5, s.EndDays, 1e-9)
	// Delaying T1's start pushes T2's start, so T1 has zero slack even
	// though its finish is irrelevant.
	assert.True(t, s.OnPath["T1"])
	assert.True(t, s.OnPath["T2"])
	assert.Equal(t, []string{"T1", "T2"}, s.Canonical)
}

func TestCriticalPathFinishToFinish(t *testing.T) {
	// FF edge: T2 cannot finish before T1 finishes.
	snap := snapshot([]string{"T1", "T2"},
		dep("T1", "T2", planner.FinishToFinish),
	)
	g, err := Build(snap)
	require.NoError(t, err)

	s := CriticalPath(g, Durations{"T1": 6, "T2": 2}, 0)
	assert.InDelta(t, 4, s.Timing["T2"].EarliestStart, 1e-9, "pushed so finishes align")
	assert.InDelta(t, 6, s.EndDays, 1e-9)
	assert.True(t, s.OnPath["T1"])
	assert.True(t, s.OnPath["T2"])
}

func TestCriticalPathEmptyPlan(t *testing.T) {
	g, err := Build(snapshot(nil))
	require.NoError(t, err)
	s := CriticalPath(g, nil, 0)
	assert.Zero(t, s.EndDays)
	assert.Empty(t, s.Canonical)
}

func TestEstimateDurations(t *testing.T) {
	start := ts(t, "2026-03-01T00:00:00Z")
	due := ts(t, "2026-03-05T00:00:00Z")
	snap := &planner.Snapshot{
		Plan: planner.Plan{ID: "plan-1"},
		Tasks: []planner.Task{
			{ID: "dated", StartDateTime: start, DueDateTime: due},
			{ID: "bare"},
			{ID: "calibrated", BucketID: "b1"},
		},
	}
	dur := EstimateDurations(snap, func(t *planner.Task) (float64, bool) {
		if t.BucketID == "b1" {
			return 2.5, true
		}
		return 0, false
	})
	assert.InDelta(t, 4, dur["dated"], 1e-9)
	assert.InDelta(t, 1, dur["bare"], 1e-9)
	assert.InDelta(t, 2.5, dur["calibrated"], 1e-9)
}
