package markov

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"congresstwin/internal/planner"
)

var now = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func TestDetectState(t *testing.T) {
	due := now.Add(-10 * 24 * time.Hour)
	recentDue := now.Add(24 * time.Hour)
	tests := []struct {
		name string
		task planner.Task
		want State
	}{
		{"unassigned new task", planner.Task{Status: planner.StatusNotStarted}, NotStarted},
		{"assigned new task", planner.Task{Status: planner.StatusNotStarted, Assignees: []string{"a"}}, Planning},
		{"in progress", planner.Task{Status: planner.StatusInProgress, PercentComplete: 30}, InProgress},
		{"explicit blocked", planner.Task{Status: planner.StatusBlocked, PercentComplete: 20}, Blocked},
		{"under review", planner.Task{Status: planner.StatusUnderReview, PercentComplete: 80}, UnderReview},
		{"completed", planner.Task{Status: planner.StatusCompleted, PercentComplete: 100}, Completed},
		{"cancelled", planner.Task{Status: planner.StatusCancelled}, Cancelled},
		{"cancel note in description", planner.Task{Status: planner.StatusInProgress, Description: "Cancelled by vendor"}, Cancelled},
		{"stuck at half past due", planner.Task{
			Status: planner.StatusInProgress, PercentComplete: 50, DueDateTime: &due,
		}, Blocked},
		{"half done but not overdue", planner.Task{
			Status: planner.StatusInProgress, PercentComplete: 50, DueDateTime: &recentDue,
		}, InProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectState(&tt.task, now))
		})
	}
}

func TestMatrixRowsAreStochastic(t *testing.T) {
	for _, m := range []*Matrix{
		DefaultMatrix(),
		Learn([][]State{
			{NotStarted, Planning, InProgress, UnderReview, Completed},
			{NotStarted, Planning, InProgress, Blocked, InProgress, Completed},
		}, DefaultEpsilon),
	} {
		for i, from := range States {
			sum := 0.0
			for j := range States {
				sum += m.P[i][j]
			}
			assert.InDelta(t, 1, sum, 1e-9, "row %s", from)
		}
	}
}

func TestLearnSmoothsUnseenTransitions(t *testing.T) {
	m := Learn([][]State{
		{InProgress, InProgress, Completed},
	}, DefaultEpsilon)

	// Observed transitions dominate, unseen ones get epsilon mass.
	assert.Greater(t, m.Prob(InProgress, InProgress), m.Prob(InProgress, Blocked))
	assert.Greater(t, m.Prob(InProgress, Blocked), 0.0, "smoothing keeps unseen cells positive")

	// Unobserved transient states fall back to the default row.
	def := DefaultMatrix()
	assert.Equal(t, def.Prob(NotStarted, Planning), m.Prob(NotStarted, Planning))

	// Absorbing rows stay identity even if a sequence claims otherwise.
	m = Learn([][]State{{Completed, InProgress}}, DefaultEpsilon)
	assert.Equal(t, 1.0, m.Prob(Completed, Completed))
	assert.Zero(t, m.Prob(Completed, InProgress))
}

func TestLifecycleSequenceFeedsLearn(t *testing.T) {
	done := now.Add(-24 * time.Hour)
	tasks := []planner.Task{
		{Status: planner.StatusCompleted, PercentComplete: 100, CompletedDateTime: &done},
		{Status: planner.StatusCompleted, PercentComplete: 100, CompletedDateTime: &done},
		{Status: planner.StatusBlocked, PercentComplete: 20},
		{Status: planner.StatusInProgress, PercentComplete: 40},
	}
	var sequences [][]State
	for i := range tasks {
		seq := LifecycleSequence(&tasks[i], now)
		require.NotNil(t, seq, "task %d", i)
		sequences = append(sequences, seq)
	}

	// Unstarted tasks carry no transition evidence.
	assert.Nil(t, LifecycleSequence(&planner.Task{Status: planner.StatusNotStarted}, now))

	m := Learn(sequences, DefaultEpsilon)
	// Two completions against one block: the learned chain finishes from
	// InProgress directly, which the default table never does.
	assert.Greater(t, m.Prob(InProgress, Completed), 0.5)
	assert.Zero(t, DefaultMatrix().Prob(InProgress, Completed))
	assert.Greater(t, m.Prob(Blocked, InProgress), 0.9)
}

func TestAbsorptionDefaultMatrix(t *testing.T) {
	a := DefaultMatrix().Absorption(1)
	require.Empty(t, a.Diagnostic)

	// Hand-solved expected steps for the default table.
	assert.InDelta(t, 60.0/7.0, a.ExpectedSteps[NotStarted], 1e-9)
	assert.InDelta(t, 165.0/28.0, a.ExpectedSteps[InProgress], 1e-9)
	assert.InDelta(t, 1+0.3*165.0/28.0, a.ExpectedSteps[UnderReview], 1e-9)
	assert.Zero(t, a.ExpectedSteps[Completed])

	half := DefaultMatrix().Absorption(0.5)
	assert.InDelta(t, 0.5*60.0/7.0, half.ExpectedDays[NotStarted], 1e-9)

	for _, s := range States[:numTransient] {
		assert.GreaterOrEqual(t, a.VarianceSteps[s], 0.0, s)
	}
}

func TestAbsorptionGeometricVariance(t *testing.T) {
	// InProgress flips a fair coin each day: expected 2 steps to absorb,
	// geometric variance (1-p)/p^2 = 2.
	m := &Matrix{P: zeros()}
	for _, s := range States[:numTransient] {
		m.P[s.Index()][Completed.Index()] = 1
	}
	i := InProgress.Index()
	m.P[i][Completed.Index()] = 0.5
	m.P[i][i] = 0.5
	m.P[Completed.Index()][Completed.Index()] = 1
	m.P[Cancelled.Index()][Cancelled.Index()] = 1

	a := m.Absorption(1)
	require.Empty(t, a.Diagnostic)
	assert.InDelta(t, 2, a.ExpectedSteps[InProgress], 1e-9)
	assert.InDelta(t, 2, a.VarianceSteps[InProgress], 1e-9)
	assert.InDelta(t, 1, a.ExpectedSteps[NotStarted], 1e-9)
}

func TestAbsorptionSingularChain(t *testing.T) {
	// Blocked loops forever: the chain can never absorb from there.
	m := DefaultMatrix()
	b := Blocked.Index()
	for j := range States {
		m.P[b][j] = 0
	}
	m.P[b][b] = 1

	a := m.Absorption(1)
	assert.NotEmpty(t, a.Diagnostic)
	assert.True(t, math.IsNaN(a.ExpectedDays[Blocked]))
	assert.Zero(t, a.ExpectedDays[Completed])
}

func TestExpectedDaysHelper(t *testing.T) {
	d := DefaultMatrix().ExpectedDays(NotStarted, 1)
	assert.InDelta(t, 60.0/7.0, d, 1e-9)
}
