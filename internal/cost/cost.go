// Package cost evaluates a plan against the multi-objective cost function
//
//	C_total = w1*schedule + w2*resource + w3*risk + w4*quality + w5*disruption
//
// Schedule cost penalizes tardiness quadratically (with a critical-path
// multiplier) and rewards earliness linearly; resource cost penalizes
// over-allocation, idle assignees and context switching; risk cost weighs
// delay probability by priority and downstream impact. Quality and
// disruption terms are placeholders kept for weight compatibility.
package cost

import (
	"math"
	"time"

	"congresstwin/internal/graph"
	"congresstwin/internal/planner"
)

// Weights for the five cost terms.
type Weights struct {
	Schedule   float64 `json:"schedule" yaml:"schedule"`
	Resource   float64 `json:"resource" yaml:"resource"`
	Risk       float64 `json:"risk" yaml:"risk"`
	Quality    float64 `json:"quality" yaml:"quality"`
	Disruption float64 `json:"disruption" yaml:"disruption"`
}

// DefaultWeights mirror the calibrated production defaults.
func DefaultWeights() Weights {
	return Weights{Schedule: 1.0, Resource: 0.8, Risk: 1.2, Quality: 0.5, Disruption: 0.3}
}

// Breakdown is the evaluated cost per term plus the weighted total.
type Breakdown struct {
	PlanID     string  `json:"planId"`
	Total      float64 `json:"total"`
	Schedule   float64 `json:"schedule"`
	Resource   float64 `json:"resource"`
	Risk       float64 `json:"risk"`
	Quality    float64 `json:"quality"`
	Disruption float64 `json:"disruption"`
	Weights    Weights `json:"weights"`
}

// Tuning holds the inner coefficients of the cost terms. Zero value is
// replaced by defaults.
type Tuning struct {
	TardinessAlpha  float64 // quadratic tardiness
	EarlinessBeta   float64 // linear earliness credit
	CriticalGamma   float64 // extra linear tardiness on the critical path
	OverAllocDelta  float64
	IdleEpsilon     float64
	SwitchZeta      float64
	RiskEta         float64
	MaxConcurrent   float64
	MinConcurrent   float64
	NotStartedDelay float64 // base delay probability for unstarted work
}

func defaults() Tuning {
	return Tuning{
		TardinessAlpha: 1.0, EarlinessBeta: 0.5, CriticalGamma: 3.0,
		OverAllocDelta: 1.0, IdleEpsilon: 0.5, SwitchZeta: 0.2,
		RiskEta: 2.0, MaxConcurrent: 5, MinConcurrent: 1, NotStartedDelay: 0.3,
	}
}

// Compute evaluates the snapshot. sched supplies on-path membership for the
// critical multiplier; now anchors remaining-work estimates.
func Compute(snap *planner.Snapshot, sched *graph.Schedule, w Weights, tune Tuning, now time.Time) *Breakdown {
	if tune == (Tuning{}) {
		tune = defaults()
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	b := &Breakdown{PlanID: snap.Plan.ID, Weights: w}
	b.Schedule = scheduleCost(snap, sched, tune, now)
	b.Resource = resourceCost(snap, tune)
	b.Risk = riskCost(snap, tune, now)
	// Quality needs speaker/topic matching data and disruption needs replan
	// history; both evaluate to zero until those feeds exist.
	b.Quality = 0
	b.Disruption = 0

	b.Total = w.Schedule*b.Schedule + w.Resource*b.Resource + w.Risk*b.Risk +
		w.Quality*b.Quality + w.Disruption*b.Disruption
	return b
}

// estimatedEnd projects when a task will actually finish: its completion
// instant when done, otherwise now plus the remaining share of its planned
// span.
func estimatedEnd(t *planner.Task, now time.Time) (time.Time, bool) {
	if t.DueDateTime == nil || t.StartDateTime == nil {
		return time.Time{}, false
	}
	if t.CompletedDateTime != nil {
		return *t.CompletedDateTime, true
	}
	if t.PercentComplete >= 100 {
		return *t.DueDateTime, true
	}
	planned := t.DueDateTime.Sub(*t.StartDateTime).Hours() / 24
	remaining := planned * (1 - float64(t.PercentComplete)/100)
	return now.Add(time.Duration(remaining * 24 * float64(time.Hour))), true
}

func scheduleCost(snap *planner.Snapshot, sched *graph.Schedule, tune Tuning, now time.Time) float64 {
	total := 0.0
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		end, ok := estimatedEnd(t, now)
		if !ok {
			continue
		}
		diff := end.Sub(*t.DueDateTime).Hours() / 24
		tardiness := math.Max(0, diff)
		earliness := math.Max(0, -diff)

		total += tune.TardinessAlpha * tardiness * tardiness
		total -= tune.EarlinessBeta * earliness
		if tardiness > 0 && sched != nil && sched.OnPath[t.ID] {
			total += tune.CriticalGamma * tardiness
		}
	}
	return total
}

func resourceCost(snap *planner.Snapshot, tune Tuning) float64 {
	load := map[string]float64{}
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		if t.Status.Terminal() {
			continue
		}
		for _, a := range t.Assignees {
			load[a]++
		}
	}
	total := 0.0
	for _, u := range load {
		if over := u - tune.MaxConcurrent; over > 0 {
			total += tune.OverAllocDelta * over * over
		}
		if idle := tune.MinConcurrent - u; idle > 0 {
			total += tune.IdleEpsilon * idle
		}
		if u > 1 {
			total += tune.SwitchZeta * (u - 1)
		}
	}
	return total
}

func riskCost(snap *planner.Snapshot, tune Tuning, now time.Time) float64 {
	downstream := map[string]int{}
	for _, d := range snap.Dependencies {
		downstream[d.PredecessorID]++
	}

	total := 0.0
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		if t.DueDateTime == nil || t.StartDateTime == nil || t.CompletedDateTime != nil {
			continue
		}
		planned := t.DueDateTime.Sub(*t.StartDateTime).Hours() / 24
		if planned <= 0 {
			continue
		}

		progress := float64(t.PercentComplete) / 100
		var delayProb float64
		if progress == 0 {
			delayProb = tune.NotStartedDelay
		} else {
			elapsed := 0.0
			if t.StartDateTime.Before(now) {
				elapsed = now.Sub(*t.StartDateTime).Hours() / 24
			}
			if expected := planned * progress; elapsed > expected {
				delayProb = math.Min(1, (elapsed-expected)/planned)
			}
		}
		if delayProb == 0 {
			continue
		}

		impact := (11 - float64(t.Priority)) / 10
		impact += float64(downstream[t.ID]) * 0.1
		total += tune.RiskEta * delayProb * impact
	}
	return total
}
