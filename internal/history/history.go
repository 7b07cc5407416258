// Package history calibrates scheduling parameters from completed tasks of
// past plans: per-bucket PERT triples with a bias factor, bucket block rates,
// assignee throughput and phase-level planned-vs-actual. Everything here is a
// pure function of its input samples.
package history

import (
	"math"
	"sort"

	"congresstwin/internal/planner"
)

// PERT is the (optimistic, most likely, pessimistic) duration triple in days
// plus the multiplicative bias factor mean(actual)/mean(planned).
type PERT struct {
	Optimistic  float64 `json:"optimistic"`
	MostLikely  float64 `json:"mostLikely"`
	Pessimistic float64 `json:"pessimistic"`
	Bias        float64 `json:"bias"`
	SampleCount int     `json:"sampleCount"`
	FromPrior   bool    `json:"fromPrior,omitempty"`
}

// Mean returns the Beta-PERT expected value (O + 4M + P) / 6.
func (p PERT) Mean() float64 {
	return (p.Optimistic + 4*p.MostLikely + p.Pessimistic) / 6
}

// GlobalPrior is the fallback triple used when a bucket has too few samples:
// a triangular one-to-seven-day spread with no bias.
var GlobalPrior = PERT{Optimistic: 1, MostLikely: 3, Pessimistic: 7, Bias: 1, FromPrior: true}

// AssigneeStats summarizes one assignee's completed work.
type AssigneeStats struct {
	Completed    int     `json:"completed"`
	MeanDays     float64 `json:"meanDays"`
	TasksPerWeek float64 `json:"tasksPerWeek"`
	OverdueCount int     `json:"overdueCount"`
}

// PhaseStats compares planned and actual effort for one bucket.
type PhaseStats struct {
	Count       int     `json:"count"`
	PlannedDays float64 `json:"plannedDays"`
	ActualDays  float64 `json:"actualDays"`
	// Ratio is actual over planned; 1.0 when planned is zero.
	Ratio float64 `json:"ratio"`
}

// Calibration is the full analyzer output, keyed by bucket name or assignee
// id as appropriate.
type Calibration struct {
	Buckets    map[string]PERT          `json:"buckets"`
	BlockRates map[string]float64       `json:"blockRates"`
	Assignees  map[string]AssigneeStats `json:"assignees"`
	Phases     map[string]PhaseStats    `json:"phases"`
	// Samples is the total sample count the calibration was fit on.
	Samples int `json:"samples"`
}

// Options tunes the fit. Zero value means defaults.
type Options struct {
	// MinSamples is the bucket sample count below which the prior is used.
	// Default 3.
	MinSamples int
	// Prior overrides GlobalPrior when non-zero.
	Prior *PERT
}

func (o Options) minSamples() int {
	if o.MinSamples > 0 {
		return o.MinSamples
	}
	return 3
}

func (o Options) prior() PERT {
	if o.Prior != nil {
		return *o.Prior
	}
	return GlobalPrior
}

// Calibrate fits PERT triples, block rates, throughput and phase stats from
// historical samples. Buckets with fewer than MinSamples samples get the
// prior. Deterministic for a given input regardless of sample order.
func Calibrate(samples []planner.HistoricalSample, opts Options) *Calibration {
	cal := &Calibration{
		Buckets:    make(map[string]PERT),
		BlockRates: make(map[string]float64),
		Assignees:  make(map[string]AssigneeStats),
		Phases:     make(map[string]PhaseStats),
		Samples:    len(samples),
	}

	byBucket := make(map[string][]planner.HistoricalSample)
	for _, s := range samples {
		byBucket[s.Bucket] = append(byBucket[s.Bucket], s)
	}

	for bucket, group := range byBucket {
		cal.Buckets[bucket] = fitPERT(group, opts)
		cal.BlockRates[bucket] = blockRate(group)
		cal.Phases[bucket] = phaseStats(group)
	}
	cal.Assignees = assigneeStats(samples)
	return cal
}

// BucketPERT returns the fitted triple for a bucket, falling back to the
// prior for unknown buckets.
func (c *Calibration) BucketPERT(bucket string) PERT {
	if p, ok := c.Buckets[bucket]; ok {
		return p
	}
	return GlobalPrior
}

func fitPERT(group []planner.HistoricalSample, opts Options) PERT {
	if len(group) < opts.minSamples() {
		p := opts.prior()
		p.SampleCount = len(group)
		return p
	}
	actuals := make([]float64, 0, len(group))
	var actualSum, plannedSum float64
	for _, s := range group {
		actuals = append(actuals, s.ActualDays)
		actualSum += s.ActualDays
		plannedSum += s.PlannedDays
	}
	sort.Float64s(actuals)

	p := PERT{
		Optimistic:  percentile(actuals, 10),
		MostLikely:  percentile(actuals, 50),
		Pessimistic: percentile(actuals, 90),
		Bias:        1,
		SampleCount: len(group),
	}
	if plannedSum > 0 {
		p.Bias = actualSum / plannedSum
	}
	// Percentiles of a sorted slice are already ordered; clamp anyway so a
	// degenerate all-equal sample set stays a valid triple.
	p.MostLikely = math.Max(p.MostLikely, p.Optimistic)
	p.Pessimistic = math.Max(p.Pessimistic, p.MostLikely)
	return p
}

func blockRate(group []planner.HistoricalSample) float64 {
	if len(group) == 0 {
		return 0
	}
	blocked := 0
	for _, s := range group {
		if s.BlockCount > 0 {
			blocked++
		}
	}
	return float64(blocked) / float64(len(group))
}

func phaseStats(group []planner.HistoricalSample) PhaseStats {
	st := PhaseStats{Count: len(group), Ratio: 1}
	for _, s := range group {
		st.PlannedDays += s.PlannedDays
		st.ActualDays += s.ActualDays
	}
	if st.PlannedDays > 0 {
		st.Ratio = st.ActualDays / st.PlannedDays
	}
	return st
}

// assigneeStats derives throughput per assignee. Tasks-per-week assumes the
// assignee works their tasks serially: 7 / mean duration.
func assigneeStats(samples []planner.HistoricalSample) map[string]AssigneeStats {
	type acc struct {
		completed int
		days      float64
		overdue   int
	}
	byAssignee := make(map[string]*acc)
	for _, s := range samples {
		for _, a := range s.Assignees {
			st, ok := byAssignee[a]
			if !ok {
				st = &acc{}
				byAssignee[a] = st
			}
			if s.TerminalState == planner.StatusCompleted {
				st.completed++
				st.days += s.ActualDays
			}
			if s.PlannedDays > 0 && s.ActualDays > s.PlannedDays {
				st.overdue++
			}
		}
	}
	out := make(map[string]AssigneeStats, len(byAssignee))
	for a, st := range byAssignee {
		stats := AssigneeStats{Completed: st.completed, OverdueCount: st.overdue}
		if st.completed > 0 {
			stats.MeanDays = st.days / float64(st.completed)
			if stats.MeanDays > 0 {
				stats.TasksPerWeek = 7 / stats.MeanDays
			}
		}
		out[a] = stats
	}
	return out
}

// percentile computes the p-th percentile of a sorted slice with linear
// interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// CompletionRate returns the fraction of an assignee's sampled tasks that
// reached Completed, or 0 when unknown. Used by assignee scoring.
func CompletionRate(samples []planner.HistoricalSample, assignee string) float64 {
	total, completed := 0, 0
	for _, s := range samples {
		for _, a := range s.Assignees {
			if a != assignee {
				continue
			}
			total++
			if s.TerminalState == planner.StatusCompleted {
				completed++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total)
}
