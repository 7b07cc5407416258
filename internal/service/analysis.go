package service

import (
	"context"
	"fmt"
	"time"

	"congresstwin/internal/attention"
	"congresstwin/internal/cost"
	"congresstwin/internal/graph"
	"congresstwin/internal/history"
	"congresstwin/internal/impact"
	"congresstwin/internal/intel"
	"congresstwin/internal/markov"
	"congresstwin/internal/montecarlo"
	"congresstwin/internal/planner"
)

// schedule builds the graph in repair mode and runs the deterministic
// critical path over calibrated durations. Excluded edges are reported, not
// fatal: a read must not be refused because of bad stored data.
func (s *Service) schedule(snap *planner.Snapshot, cal *history.Calibration) (*graph.Graph, *graph.Schedule, []planner.Dependency) {
	g, excluded := graph.BuildRepair(snap)
	dur := graph.EstimateDurations(snap, mostLikelyFrom(snap, cal))
	return g, graph.CriticalPath(g, dur, 0), excluded
}

func mostLikelyFrom(snap *planner.Snapshot, cal *history.Calibration) func(t *planner.Task) (float64, bool) {
	return func(t *planner.Task) (float64, bool) {
		if cal == nil {
			return 0, false
		}
		p := cal.BucketPERT(snap.BucketName(t.BucketID))
		if p.FromPrior {
			return 0, false
		}
		return p.MostLikely, true
	}
}

// CPTask is one scheduled task in the critical-path view.
type CPTask struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Status         planner.Status `json:"status"`
	EarliestStart  float64        `json:"earliestStartDays"`
	EarliestFinish float64        `json:"earliestFinishDays"`
	Slack          float64        `json:"slackDays"`
	OnPath         bool           `json:"onCriticalPath"`
}

// CriticalPathView is the GetCriticalPath result.
type CriticalPathView struct {
	PlanID  string   `json:"planId"`
	TaskIDs []string `json:"taskIds"`
	Tasks   []CPTask `json:"tasks"`
	EndDays float64  `json:"endDays"`
	// ExcludedEdges lists dependency edges dropped to break a stored cycle.
	ExcludedEdges []planner.Dependency `json:"excludedEdges,omitempty"`
}

// GetCriticalPath computes the deterministic critical path. Results are
// memoized per plan fingerprint.
func (s *Service) GetCriticalPath(ctx context.Context, planID string) (*CriticalPathView, error) {
	snap, err := s.snapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	key := memoKey{planID: planID, fingerprint: planner.SnapshotFingerprint(snap), params: "critpath"}
	if v, ok := s.cache.get(key); ok {
		return v.(*CriticalPathView), nil
	}

	cal, _, err := s.calibration(ctx)
	if err != nil {
		return nil, err
	}
	g, sched, excluded := s.schedule(snap, cal)

	view := &CriticalPathView{
		PlanID:        planID,
		TaskIDs:       sched.Canonical,
		EndDays:       sched.EndDays,
		ExcludedEdges: excluded,
	}
	for _, id := range sched.Canonical {
		t := g.Task(id)
		tm := sched.Timing[id]
		view.Tasks = append(view.Tasks, CPTask{
			ID: id, Title: t.Title, Status: t.Status,
			EarliestStart: tm.EarliestStart, EarliestFinish: tm.EarliestFinish,
			Slack: tm.Slack, OnPath: true,
		})
	}
	s.cache.put(key, view)
	return view, nil
}

// DependencyEdge is one direct neighbor in the dependency view.
type DependencyEdge struct {
	TaskID string                 `json:"taskId"`
	Title  string                 `json:"title"`
	Type   planner.DependencyType `json:"type"`
	Status planner.Status         `json:"status"`
}

// DependencyView is the GetDependencies result.
type DependencyView struct {
	PlanID          string           `json:"planId"`
	TaskID          string           `json:"taskId"`
	Upstream        []DependencyEdge `json:"upstream"`
	Downstream      []DependencyEdge `json:"downstream"`
	ImpactStatement string           `json:"impactStatement"`
}

// GetDependencies returns a task's direct neighbors plus a one-day slip
// impact statement.
func (s *Service) GetDependencies(ctx context.Context, planID, taskID string) (*DependencyView, error) {
	snap, err := s.snapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	if snap.TaskByID(taskID) == nil {
		return nil, fmt.Errorf("%w: %s in plan %s", planner.ErrTaskNotFound, taskID, planID)
	}
	g, _ := graph.BuildRepair(snap)

	view := &DependencyView{PlanID: planID, TaskID: taskID}
	for _, e := range g.Predecessors(taskID) {
		t := g.Task(e.From)
		view.Upstream = append(view.Upstream, DependencyEdge{
			TaskID: e.From, Title: t.Title, Type: e.Type, Status: t.Status,
		})
	}
	for _, e := range g.Successors(taskID) {
		t := g.Task(e.To)
		view.Downstream = append(view.Downstream, DependencyEdge{
			TaskID: e.To, Title: t.Title, Type: e.Type, Status: t.Status,
		})
	}

	cal, _, err := s.calibration(ctx)
	if err != nil {
		return nil, err
	}
	oneDay := 1.0
	analysis, err := impact.Analyze(ctx, snap, cal, taskID, impact.Change{SlippageDays: &oneDay}, impact.Options{})
	if err != nil {
		return nil, s.classify("dependency impact", err)
	}
	view.ImpactStatement = analysis.Statement
	return view, nil
}

// GetAttention builds the attention dashboard.
func (s *Service) GetAttention(ctx context.Context, planID string) (*attention.Dashboard, error) {
	snap, err := s.snapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	cal, _, err := s.calibration(ctx)
	if err != nil {
		return nil, err
	}
	g, sched, _ := s.schedule(snap, cal)
	return attention.Build(snap, g, sched, attention.Options{Now: s.now()}), nil
}

// GetMilestoneAnalysis splits tasks around the event date. A nil eventDate
// falls back to the plan's own event date.
func (s *Service) GetMilestoneAnalysis(ctx context.Context, planID string, eventDate *time.Time) (*attention.Milestone, error) {
	snap, err := s.snapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	if eventDate == nil {
		eventDate = snap.Plan.EventDate
	}
	cal, _, err := s.calibration(ctx)
	if err != nil {
		return nil, err
	}
	_, sched, _ := s.schedule(snap, cal)
	return attention.BuildMilestone(snap, sched, eventDate, s.now()), nil
}

// GetExecutionTasks returns the badge-annotated dependency lens.
func (s *Service) GetExecutionTasks(ctx context.Context, planID string) ([]attention.ExecutionTask, error) {
	snap, err := s.snapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	cal, _, err := s.calibration(ctx)
	if err != nil {
		return nil, err
	}
	g, sched, _ := s.schedule(snap, cal)
	return attention.BuildExecutionTasks(snap, g, sched, snap.Plan.EventDate, s.now()), nil
}

// RunMonteCarlo simulates the plan. Seeded runs are memoized per plan
// fingerprint and parameter set; unseeded runs never hit the cache.
func (s *Service) RunMonteCarlo(ctx context.Context, planID string, p montecarlo.Params) (*montecarlo.Result, error) {
	snap, err := s.snapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	if p.Iterations == 0 {
		p.Iterations = s.cfg.Simulation.Iterations
	}
	if p.QueueDelayK == 0 {
		p.QueueDelayK = s.cfg.Simulation.QueueDelayK
	}
	if p.Workers == 0 {
		p.Workers = s.cfg.Simulation.Workers
	}
	if p.EventDate == nil {
		p.EventDate = snap.Plan.EventDate
	}
	if p.Base.IsZero() {
		p.Base = s.now()
	}

	var key memoKey
	cacheable := p.Seed != 0
	if cacheable {
		event := ""
		if p.EventDate != nil {
			event = p.EventDate.UTC().Format(time.RFC3339)
		}
		key = memoKey{
			planID:      planID,
			fingerprint: planner.SnapshotFingerprint(snap),
			params: fmt.Sprintf("mc:%d:%d:%s:%v:%g:%s:%s",
				p.Iterations, p.Seed, event, p.DisallowPrior, p.QueueDelayK,
				p.TrackTaskID, p.Base.UTC().Format(time.RFC3339)),
		}
		if v, ok := s.cache.get(key); ok {
			return v.(*montecarlo.Result), nil
		}
	}

	cal, _, err := s.calibration(ctx)
	if err != nil {
		return nil, err
	}
	res, err := montecarlo.Run(ctx, snap, cal, p)
	if err != nil {
		return nil, s.classify("monte carlo", err)
	}
	if cacheable {
		s.cache.put(key, res)
	}
	return res, nil
}

// MarkovView is the GetMarkov result: the transition matrix, its absorption
// analysis and, when a task id was given, that task's detected state and
// expected days to completion.
type MarkovView struct {
	PlanID     string                        `json:"planId"`
	Matrix     map[string]map[string]float64 `json:"matrix"`
	Absorption *markov.Absorption            `json:"absorption"`
	Task       *intel.StateSummary           `json:"task,omitempty"`
}

// markovStepDays is the observation interval the transition table is
// expressed in.
const markovStepDays = 7.0

// transitionMatrix learns the chain from the configured historical plans'
// task lifecycles. Sample-only history (no snapshot) contributes nothing;
// with no transition evidence at all the default table stands in.
func (s *Service) transitionMatrix(ctx context.Context) *markov.Matrix {
	now := s.now()
	var sequences [][]markov.State
	for _, id := range s.cfg.History.PlanIDs {
		snap, err := s.store.LoadSnapshot(ctx, id)
		if err != nil {
			continue
		}
		for i := range snap.Tasks {
			if seq := markov.LifecycleSequence(&snap.Tasks[i], now); seq != nil {
				sequences = append(sequences, seq)
			}
		}
	}
	if len(sequences) == 0 {
		return markov.DefaultMatrix()
	}
	m := markov.Learn(sequences, 0)
	m.Context = "history"
	return m
}

// GetMarkov returns the state-model view of a plan, optionally focused on
// one task.
func (s *Service) GetMarkov(ctx context.Context, planID, taskID string) (*MarkovView, error) {
	snap, err := s.snapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	m := s.transitionMatrix(ctx)
	view := &MarkovView{
		PlanID:     planID,
		Matrix:     m.ToMap(),
		Absorption: m.Absorption(markovStepDays),
	}
	if taskID != "" {
		t := snap.TaskByID(taskID)
		if t == nil {
			return nil, fmt.Errorf("%w: %s in plan %s", planner.ErrTaskNotFound, taskID, planID)
		}
		state := markov.DetectState(t, s.now())
		view.Task = &intel.StateSummary{
			State:        state,
			ExpectedDays: m.ExpectedDays(state, markovStepDays),
		}
	}
	return view, nil
}

// ComputeCost evaluates the multi-objective cost function. A zero Weights
// value falls back to the configured weights.
func (s *Service) ComputeCost(ctx context.Context, planID string, w cost.Weights) (*cost.Breakdown, error) {
	snap, err := s.snapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	if w == (cost.Weights{}) {
		w = cost.Weights{
			Schedule:   s.cfg.Cost.Schedule,
			Resource:   s.cfg.Cost.Resource,
			Risk:       s.cfg.Cost.Risk,
			Quality:    s.cfg.Cost.Quality,
			Disruption: s.cfg.Cost.Disruption,
		}
	}
	cal, _, err := s.calibration(ctx)
	if err != nil {
		return nil, err
	}
	_, sched, _ := s.schedule(snap, cal)
	return cost.Compute(snap, sched, w, cost.Tuning{}, s.now()), nil
}

// AnalyzeImpact previews a task edit without persisting anything.
func (s *Service) AnalyzeImpact(ctx context.Context, planID, taskID string, change impact.Change, opts impact.Options) (*impact.Analysis, error) {
	snap, err := s.snapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	cal, _, err := s.calibration(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Base.IsZero() {
		opts.Base = s.now()
	}
	analysis, err := impact.Analyze(ctx, snap, cal, taskID, change, opts)
	if err != nil {
		return nil, s.classify("impact", err)
	}
	return analysis, nil
}

// GetTaskIntelligence builds the full per-task briefing.
func (s *Service) GetTaskIntelligence(ctx context.Context, planID, taskID string, includeSimulations bool) (*intel.Report, error) {
	snap, err := s.snapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	cal, samples, err := s.calibration(ctx)
	if err != nil {
		return nil, err
	}
	report, err := intel.Analyze(ctx, snap, taskID, cal, intel.Params{
		Now:       s.now(),
		Simulate:  includeSimulations,
		EventDate: snap.Plan.EventDate,
		Samples:   samples,
		Matrix:    s.transitionMatrix(ctx),
	})
	if err != nil {
		return nil, s.classify("task intelligence", err)
	}
	return report, nil
}

// ChangesView is the GetChangesSinceSync result.
type ChangesView struct {
	PlanID string         `json:"planId"`
	Since  time.Time      `json:"since"`
	Tasks  []planner.Task `json:"tasks"`
}

// GetChangesSinceSync lists tasks modified since the previous sync marker,
// or within the last 24 hours when the plan has never synced twice.
func (s *Service) GetChangesSinceSync(ctx context.Context, planID string) (*ChangesView, error) {
	snap, err := s.snapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	since := s.now().Add(-24 * time.Hour)
	if snap.Sync.PreviousSyncAt != nil {
		since = *snap.Sync.PreviousSyncAt
	}
	view := &ChangesView{PlanID: planID, Since: since}
	for _, t := range snap.Tasks {
		if !t.LastModifiedAt.Before(since) {
			view.Tasks = append(view.Tasks, t)
		}
	}
	return view, nil
}

// HistoricalInsights bundles the calibration with implicit dependency hints
// mined from the given past plans.
type HistoricalInsights struct {
	Calibration *history.Calibration     `json:"calibration"`
	Hints       []history.DependencyHint `json:"hints,omitempty"`
}

// GetHistoricalInsights calibrates over the given plans (configured default
// when empty) and mines co-occurring orderings into dependency hints.
func (s *Service) GetHistoricalInsights(ctx context.Context, planIDs []string) (*HistoricalInsights, error) {
	if len(planIDs) == 0 {
		planIDs = s.cfg.History.PlanIDs
	}
	samples, err := s.store.Samples(ctx, planIDs)
	if err != nil {
		return nil, s.classify("historical insights", err)
	}
	out := &HistoricalInsights{
		Calibration: history.Calibrate(samples, history.Options{MinSamples: s.cfg.History.MinSamples}),
	}
	var snaps []*planner.Snapshot
	for _, id := range planIDs {
		snap, err := s.store.LoadSnapshot(ctx, id)
		if err != nil {
			// Sample-only plans have no snapshot; skip them.
			continue
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) > 0 {
		out.Hints = history.DependencyHints(snaps, 0.6)
	}
	return out, nil
}
