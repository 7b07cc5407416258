// Package impact previews the schedule effect of a proposed task edit: the
// downstream closure, the deterministic shift of the plan end, and optionally
// a seeded low-iteration simulation of the probabilistic shift. Pure preview;
// nothing is persisted.
package impact

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"congresstwin/internal/graph"
	"congresstwin/internal/history"
	"congresstwin/internal/montecarlo"
	"congresstwin/internal/planner"
)

// Change is the proposed edit. Nil fields are untouched. SlippageDays, when
// set, wins over a due-date shift for sizing the slip.
type Change struct {
	DueDateTime     *time.Time `json:"dueDateTime,omitempty"`
	StartDateTime   *time.Time `json:"startDateTime,omitempty"`
	Assignees       []string   `json:"assignees,omitempty"`
	PercentComplete *int       `json:"percentComplete,omitempty"`
	SlippageDays    *float64   `json:"slippageDays,omitempty"`
}

// Options tunes the preview. Zero value: epsilon 0, no simulation.
type Options struct {
	Epsilon float64
	// Simulate adds the probabilistic delta from two seeded simulations.
	Simulate   bool
	Iterations int // default 1000 when Simulate
	Seed       int64
	EventDate  *time.Time
	Base       time.Time
}

// AffectedTask is a downstream task the edit may move.
type AffectedTask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Probabilistic is the simulated delta between the current and edited plan.
type Probabilistic struct {
	DeltaP50Days float64 `json:"deltaP50Days"`
	DeltaP95Days float64 `json:"deltaP95Days"`
	// DeltaOnTimePercent is present only when an event date was given.
	DeltaOnTimePercent *float64 `json:"deltaOnTimePercent,omitempty"`
}

// Analysis is the preview result.
type Analysis struct {
	PlanID string `json:"planId"`
	TaskID string `json:"taskId"`

	// Affected lists the edited task and every downstream task whose
	// earliest finish moved by more than epsilon, ascending by id.
	Affected []AffectedTask `json:"affected"`
	// Downstream is the full transitive successor closure, regardless of
	// whether the edit actually moved it.
	Downstream []string `json:"downstream"`

	DeltaEndDays       float64 `json:"deltaEndDays"`
	CriticalPathImpact bool    `json:"criticalPathImpact"`
	Statement          string  `json:"statement"`

	Probabilistic *Probabilistic `json:"probabilistic,omitempty"`
}

// Analyze previews the change against a snapshot. Identical inputs give
// identical results.
func Analyze(ctx context.Context, snap *planner.Snapshot, cal *history.Calibration, taskID string, change Change, opts Options) (*Analysis, error) {
	task := snap.TaskByID(taskID)
	if task == nil {
		return nil, fmt.Errorf("%w: task %s in plan %s", planner.ErrTaskNotFound, taskID, snap.Plan.ID)
	}
	g, err := graph.Build(snap)
	if err != nil {
		return nil, err
	}

	mostLikely := func(t *planner.Task) (float64, bool) {
		if cal == nil {
			return 0, false
		}
		p := cal.BucketPERT(snap.BucketName(t.BucketID))
		if p.FromPrior {
			return 0, false
		}
		return p.MostLikely, true
	}
	dur := graph.EstimateDurations(snap, mostLikely)
	base := graph.CriticalPath(g, dur, opts.Epsilon)

	slip := slipDays(task, change)
	edited := make(graph.Durations, len(dur))
	for id, d := range dur {
		edited[id] = d
	}
	edited[taskID] += slip
	preview := graph.CriticalPath(g, edited, opts.Epsilon)

	a := &Analysis{
		PlanID:       snap.Plan.ID,
		TaskID:       taskID,
		Downstream:   g.Downstream(taskID),
		DeltaEndDays: preview.EndDays - base.EndDays,
	}

	moved := map[string]bool{}
	for id, t := range preview.Timing {
		if math.Abs(t.EarliestFinish-base.Timing[id].EarliestFinish) > opts.Epsilon+1e-9 {
			moved[id] = true
		}
	}
	moved[taskID] = moved[taskID] || slip != 0 || changed(change)
	ids := make([]string, 0, len(moved))
	for id := range moved {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a.Affected = append(a.Affected, AffectedTask{ID: id, Title: g.Task(id).Title})
	}

	a.CriticalPathImpact = base.OnPath[taskID]
	for _, id := range a.Downstream {
		if base.OnPath[id] {
			a.CriticalPathImpact = true
			break
		}
	}

	downstreamCount := len(a.Downstream) + 1 // closure plus the task itself
	if slip > 0 {
		a.Statement = fmt.Sprintf("Delaying %s by %s days may affect %d downstream task(s).",
			task.Title, trimFloat(slip), downstreamCount)
	} else {
		a.Statement = fmt.Sprintf("Changing %s may affect %d downstream task(s).",
			task.Title, downstreamCount)
	}

	if opts.Simulate {
		prob, err := simulateDelta(ctx, snap, cal, taskID, slip, opts)
		if err != nil {
			return nil, err
		}
		a.Probabilistic = prob
	}
	return a, nil
}

func simulateDelta(ctx context.Context, snap *planner.Snapshot, cal *history.Calibration, taskID string, slip float64, opts Options) (*Probabilistic, error) {
	n := opts.Iterations
	if n <= 0 {
		n = 1000
	}
	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	params := montecarlo.Params{
		Iterations: n, Seed: seed, Base: opts.Base, EventDate: opts.EventDate,
	}
	before, err := montecarlo.Run(ctx, snap, cal, params)
	if err != nil {
		return nil, err
	}
	params.ExtraDurationDays = map[string]float64{taskID: slip}
	after, err := montecarlo.Run(ctx, snap, cal, params)
	if err != nil {
		return nil, err
	}

	p := &Probabilistic{
		DeltaP50Days: after.EndDays.P50 - before.EndDays.P50,
		DeltaP95Days: after.EndDays.P95 - before.EndDays.P95,
	}
	if before.ProbabilityOnTimePercent != nil && after.ProbabilityOnTimePercent != nil {
		d := *after.ProbabilityOnTimePercent - *before.ProbabilityOnTimePercent
		p.DeltaOnTimePercent = &d
	}
	return p, nil
}

// slipDays sizes the edit's schedule slip: explicit slippage wins, otherwise
// a pushed-out due date counts day for day. Pulls and non-date edits are no
// slip.
func slipDays(task *planner.Task, change Change) float64 {
	if change.SlippageDays != nil {
		return math.Max(0, *change.SlippageDays)
	}
	if change.DueDateTime != nil && task.DueDateTime != nil {
		return math.Max(0, change.DueDateTime.Sub(*task.DueDateTime).Hours()/24)
	}
	return 0
}

func changed(c Change) bool {
	return c.DueDateTime != nil || c.StartDateTime != nil || c.Assignees != nil ||
		c.PercentComplete != nil || c.SlippageDays != nil
}

// trimFloat renders a day count without trailing zeros ("3", "2.5").
func trimFloat(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
