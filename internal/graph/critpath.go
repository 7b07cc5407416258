package graph

import (
	"math"

	"congresstwin/internal/planner"
)

// DefaultDuration is used for tasks with no estimate and no usable dates.
const DefaultDuration = 1.0

// slackTolerance absorbs float noise when comparing slack against epsilon
// and when testing whether an edge constraint binds.
const slackTolerance = 1e-9

// Timing holds the classical forward/backward pass results for one task,
// in fractional days relative to the plan origin.
type Timing struct {
	EarliestStart  float64
	EarliestFinish float64
	LatestStart    float64
	LatestFinish   float64
	Slack          float64
}

// Schedule is the critical-path result for one plan snapshot.
type Schedule struct {
	// Timing per task id.
	Timing map[string]Timing
	// OnPath marks every task whose slack is within epsilon, i.e. every
	// task participating in some maximum-weight path.
	OnPath map[string]bool
	// Canonical is one maximum-weight path ordered source to sink, ties
	// broken lexicographically by id at each step.
	Canonical []string
	// EndDays is the plan end: the maximum earliest finish.
	EndDays float64
}

// Durations maps task id to estimated duration in days.
type Durations map[string]float64

// EstimateDurations derives the per-task duration estimates: the most-likely
// value from calibration when available, else max(1, due-start) in days when
// both dates are set, else DefaultDuration. mostLikely may be nil.
func EstimateDurations(snap *planner.Snapshot, mostLikely func(t *planner.Task) (float64, bool)) Durations {
	dur := make(Durations, len(snap.Tasks))
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		if mostLikely != nil {
			if m, ok := mostLikely(t); ok && m > 0 {
				dur[t.ID] = m
				continue
			}
		}
		if t.StartDateTime != nil && t.DueDateTime != nil {
			days := t.DueDateTime.Sub(*t.StartDateTime).Hours() / 24
			dur[t.ID] = math.Max(1, days)
			continue
		}
		dur[t.ID] = DefaultDuration
	}
	return dur
}

// CriticalPath runs the forward and backward passes over the DAG and marks
// every task with slack <= epsilon as on-path.
//
// Edge arithmetic by dependency type, with u the predecessor and v the
// successor:
//
//	FS: start(v) >= finish(u)
//	SS: start(v) >= start(u)
//	FF: finish(v) >= finish(u)
//	SF: finish(v) >= start(u)
//
// All starts are additionally clamped at the plan origin (day 0).
func CriticalPath(g *Graph, dur Durations, epsilon float64) *Schedule {
	s := &Schedule{
		Timing: make(map[string]Timing, g.Len()),
		OnPath: make(map[string]bool, g.Len()),
	}
	if g.Len() == 0 || g.Order == nil {
		return s
	}

	durOf := func(id string) float64 {
		if d, ok := dur[id]; ok && d > 0 {
			return d
		}
		return DefaultDuration
	}

	es := make(map[string]float64, g.Len())
	ef := make(map[string]float64, g.Len())
	for _, v := range g.Order {
		d := durOf(v)
		start := 0.0
		for _, e := range g.pred[v] {
			if c := ForwardConstraint(e, es[e.From], ef[e.From], d); c > start {
				start = c
			}
		}
		es[v] = start
		ef[v] = start + d
		if ef[v] > s.EndDays {
			s.EndDays = ef[v]
		}
	}

	ls := make(map[string]float64, g.Len())
	lf := make(map[string]float64, g.Len())
	for i := len(g.Order) - 1; i >= 0; i-- {
		u := g.Order[i]
		d := durOf(u)
		finish := s.EndDays
		for _, e := range g.succ[u] {
			if c := backwardConstraint(e, ls[e.To], lf[e.To], d); c < finish {
				finish = c
			}
		}
		lf[u] = finish
		ls[u] = finish - d
	}

	for _, v := range g.Order {
		slack := ls[v] - es[v]
		s.Timing[v] = Timing{
			EarliestStart:  es[v],
			EarliestFinish: ef[v],
			LatestStart:    ls[v],
			LatestFinish:   lf[v],
			Slack:          slack,
		}
		if slack <= epsilon+slackTolerance {
			s.OnPath[v] = true
		}
	}

	s.Canonical = canonicalPath(g, s, es, ef, durOf)
	return s
}

// ForwardConstraint returns the earliest start an edge imposes on its
// successor, given the predecessor's start/finish and the successor's
// duration. Shared by the critical-path pass and the simulator so both use
// the same edge-type mapping.
func ForwardConstraint(e Edge, esU, efU, durV float64) float64 {
	switch e.Type {
	case planner.StartToStart:
		return esU
	case planner.FinishToFinish:
		return efU - durV
	case planner.StartToFinish:
		return esU - durV
	default: // FS
		return efU
	}
}

func backwardConstraint(e Edge, lsV, lfV, durU float64) float64 {
	switch e.Type {
	case planner.StartToStart:
		return lsV + durU
	case planner.FinishToFinish:
		return lfV
	case planner.StartToFinish:
		return lfV + durU
	default: // FS
		return lsV
	}
}

// canonicalPath backtracks one maximum path from the latest-finishing on-path
// task, preferring the smallest id at every choice point.
func canonicalPath(g *Graph, s *Schedule, es, ef map[string]float64, durOf func(string) float64) []string {
	sink := ""
	for _, v := range g.Order {
		if !s.OnPath[v] {
			continue
		}
		if math.Abs(ef[v]-s.EndDays) > slackTolerance {
			continue
		}
		if sink == "" || v < sink {
			sink = v
		}
	}
	if sink == "" {
		return nil
	}

	path := []string{sink}
	cur := sink
	for {
		next := ""
		for _, e := range g.pred[cur] {
			u := e.From
			if !s.OnPath[u] {
				continue
			}
			// The edge must bind: the predecessor's timing must be what
			// forces the current task's earliest start.
			c := ForwardConstraint(e, es[u], ef[u], durOf(cur))
			if math.Abs(c-es[cur]) > slackTolerance {
				continue
			}
			if next == "" || u < next {
				next = u
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		cur = next
	}

	// Reverse into source-to-sink order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
