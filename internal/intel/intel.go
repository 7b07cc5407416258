// Package intel fuses the analytical engines into one per-task briefing:
// dependency risks, timeline and resource suggestions, assignee
// recommendations and an overall risk score, with optional simulation and
// state-model summaries. Sub-computations degrade gracefully: a failed
// section lands in Diagnostics instead of failing the call.
package intel

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"congresstwin/internal/graph"
	"congresstwin/internal/history"
	"congresstwin/internal/markov"
	"congresstwin/internal/montecarlo"
	"congresstwin/internal/planner"
)

// Risk levels for dependency entries and suggestion severity.
const (
	RiskHigh   = "high"
	RiskMedium = "medium"
	RiskLow    = "low"
)

const (
	// DefaultIterations keeps the embedded simulation cheap.
	DefaultIterations = 1000

	// atRiskWindow flags near-due tasks that are still mostly open.
	atRiskWindow = 3 * 24 * time.Hour
	// cpTightSlackDays flags critical-path tasks with little float left.
	cpTightSlackDays = 2.0
	// overloadActiveTasks is the live-task count at which an assignee counts
	// as overloaded.
	overloadActiveTasks = 5
	// neutralCompletionRate scores assignees with no history.
	neutralCompletionRate = 0.5
)

// Risk-score weights. The factor counts for dependencies, timeline and
// resources are each capped at factorCap before weighting.
const (
	weightDependency = 30
	weightTimeline   = 25
	weightResource   = 20
	weightCritical   = 15
	weightOverdue    = 10
	factorCap        = 3
)

// Params configures one briefing.
type Params struct {
	// Now anchors overdue/at-risk checks; zero means time.Now.
	Now time.Time
	// Simulate enables the Monte Carlo and state-model sections.
	Simulate   bool
	Iterations int
	Seed       int64
	EventDate  *time.Time
	// Samples feed assignee completion rates; nil disables the history term.
	Samples []planner.HistoricalSample
	// Matrix is the transition matrix for the state-model section; nil falls
	// back to the default table.
	Matrix *markov.Matrix
}

// DependencyRisk describes one upstream edge of the task.
type DependencyRisk struct {
	TaskID     string                 `json:"taskId"`
	Title      string                 `json:"title"`
	Type       planner.DependencyType `json:"type"`
	Status     planner.Status         `json:"status"`
	Level      string                 `json:"level"`
	Delayed    bool                   `json:"delayed"`
	DelayDays  int                    `json:"delayDays"`
	OnPath     bool                   `json:"onCriticalPath"`
	Suggestion string                 `json:"suggestion"`
}

// Suggestion is one actionable finding.
type Suggestion struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

// AssigneeOption is one scored reassignment candidate.
type AssigneeOption struct {
	Assignee       string  `json:"assignee"`
	Score          float64 `json:"score"`
	CompletionRate float64 `json:"completionRate"`
	ActiveTasks    int     `json:"activeTasks"`
	OverdueTasks   int     `json:"overdueTasks"`
	Current        bool    `json:"current"`
	Reason         string  `json:"reason"`
}

// SimulationSummary condenses a tracked Monte Carlo run for the task.
type SimulationSummary struct {
	P50FinishDays float64 `json:"p50FinishDays"`
	P95FinishDays float64 `json:"p95FinishDays"`
	CPProbability float64 `json:"cpProbability"`
}

// StateSummary condenses the absorbing-chain view of the task.
type StateSummary struct {
	State        markov.State `json:"state"`
	ExpectedDays float64      `json:"expectedDays"`
}

// Report is the full briefing for one task.
type Report struct {
	PlanID      string   `json:"planId"`
	TaskID      string   `json:"taskId"`
	RiskScore   int      `json:"riskScore"`
	RiskFactors []string `json:"riskFactors"`

	DependencyRisks     []DependencyRisk `json:"dependencyRisks"`
	TimelineSuggestions []Suggestion     `json:"timelineSuggestions"`
	ResourceSuggestions []Suggestion     `json:"resourceSuggestions"`
	OptimalAssignees    []AssigneeOption `json:"optimalAssignees"`

	MonteCarlo *SimulationSummary `json:"monteCarlo,omitempty"`
	Markov     *StateSummary      `json:"markov,omitempty"`

	// Diagnostics records sections that could not be computed, keyed by
	// section name.
	Diagnostics map[string]string `json:"diagnostics,omitempty"`
}

// Analyze builds the briefing for one task. Only an unknown task id fails
// the call; everything else degrades into Diagnostics.
func Analyze(ctx context.Context, snap *planner.Snapshot, taskID string, cal *history.Calibration, p Params) (*Report, error) {
	task := snap.TaskByID(taskID)
	if task == nil {
		return nil, fmt.Errorf("%w: %s in plan %s", planner.ErrTaskNotFound, taskID, snap.Plan.ID)
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	r := &Report{PlanID: snap.Plan.ID, TaskID: taskID, Diagnostics: map[string]string{}}

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
	var sched *graph.Schedule
	g, err := graph.Build(snap)
	if err != nil {
		r.Diagnostics["criticalPath"] = err.Error()
	} else {
		sched = graph.CriticalPath(g, graph.EstimateDurations(snap, mostLikely), 0)
	}

	if p.Simulate {
		r.MonteCarlo = simulate(ctx, snap, taskID, cal, p)
		if r.MonteCarlo == nil {
			r.Diagnostics["monteCarlo"] = "simulation unavailable"
		}
		m := p.Matrix
		if m == nil {
			m = markov.DefaultMatrix()
		}
		state := markov.DetectState(task, now)
		r.Markov = &StateSummary{
			State:        state,
			ExpectedDays: m.ExpectedDays(state, 1),
		}
	}

	r.DependencyRisks = dependencyRisks(snap, g, sched, taskID, now)
	r.TimelineSuggestions = timelineSuggestions(task, sched, now)
	r.OptimalAssignees = rankAssignees(snap, task, p.Samples, now)
	r.ResourceSuggestions = resourceSuggestions(snap, task, r.OptimalAssignees, now)

	r.RiskScore, r.RiskFactors = score(r, task, sched, now)
	if len(r.Diagnostics) == 0 {
		r.Diagnostics = nil
	}
	return r, nil
}

func simulate(ctx context.Context, snap *planner.Snapshot, taskID string, cal *history.Calibration, p Params) *SimulationSummary {
	iters := p.Iterations
	if iters <= 0 {
		iters = DefaultIterations
	}
	res, err := montecarlo.Run(ctx, snap, cal, montecarlo.Params{
		Iterations:  iters,
		Seed:        p.Seed,
		EventDate:   p.EventDate,
		Base:        p.Now,
		TrackTaskID: taskID,
	})
	if err != nil || res.Tracked == nil {
		return nil
	}
	return &SimulationSummary{
		P50FinishDays: res.Tracked.P50FinishDays,
		P95FinishDays: res.Tracked.P95FinishDays,
		CPProbability: res.Tracked.CPProbability,
	}
}

// dependencyRisks grades every upstream edge: high when the predecessor is
// both delayed and on the critical path, medium when delayed or blocked, low
// otherwise.
func dependencyRisks(snap *planner.Snapshot, g *graph.Graph, sched *graph.Schedule, taskID string, now time.Time) []DependencyRisk {
	if g == nil {
		return nil
	}
	var out []DependencyRisk
	for _, e := range g.Predecessors(taskID) {
		u := g.Task(e.From)
		if u == nil {
			continue
		}
		delayed, delayDays := predecessorDelay(u, now)
		onPath := sched != nil && sched.OnPath[u.ID]

		level := RiskLow
		switch {
		case delayed && onPath:
			level = RiskHigh
		case delayed || u.Status == planner.StatusBlocked:
			level = RiskMedium
		}

		out = append(out, DependencyRisk{
			TaskID: u.ID, Title: u.Title, Type: e.Type, Status: u.Status,
			Level: level, Delayed: delayed, DelayDays: delayDays, OnPath: onPath,
			Suggestion: dependencySuggestion(u, level, delayDays),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// predecessorDelay reports whether an upstream task slipped past its due
// date, and by how many whole days.
func predecessorDelay(u *planner.Task, now time.Time) (bool, int) {
	if u.DueDateTime == nil {
		return false, 0
	}
	switch {
	case u.CompletedDateTime != nil:
		if d := u.CompletedDateTime.Sub(*u.DueDateTime); d > 0 {
			return true, int(d.Hours() / 24)
		}
	case u.Status != planner.StatusCompleted && now.After(*u.DueDateTime):
		return true, int(now.Sub(*u.DueDateTime).Hours() / 24)
	}
	return false, 0
}

func dependencySuggestion(u *planner.Task, level string, delayDays int) string {
	switch level {
	case RiskHigh:
		return fmt.Sprintf("Critical-path dependency %q is %d day(s) late. Expedite or find parallel work.", u.Title, delayDays)
	case RiskMedium:
		if delayDays > 0 {
			return fmt.Sprintf("Dependency %q is %d day(s) late. Monitor closely.", u.Title, delayDays)
		}
		return fmt.Sprintf("Dependency %q is blocked. Resolve the blocker first.", u.Title)
	default:
		if u.Status == planner.StatusCompleted {
			return "Dependency is complete."
		}
		return fmt.Sprintf("Waiting on %q. Keep it on track.", u.Title)
	}
}

func timelineSuggestions(t *planner.Task, sched *graph.Schedule, now time.Time) []Suggestion {
	var out []Suggestion
	if t.DueDateTime != nil && t.Status.Active() {
		due := *t.DueDateTime
		if due.Before(now) {
			days := int(now.Sub(due).Hours() / 24)
			out = append(out, Suggestion{
				Type: "overdue", Severity: RiskHigh,
				Title:       fmt.Sprintf("Overdue by %d day(s)", days),
				Description: fmt.Sprintf("Due %s and still %d%% complete.", due.Format("2006-01-02"), t.PercentComplete),
				Action:      "Re-plan the due date or escalate.",
			})
		} else if !due.After(now.Add(atRiskWindow)) && t.PercentComplete < 50 {
			out = append(out, Suggestion{
				Type: "at_risk", Severity: RiskMedium,
				Title:       "Due soon with limited progress",
				Description: fmt.Sprintf("Due %s but only %d%% complete.", due.Format("2006-01-02"), t.PercentComplete),
				Action:      "Accelerate work or shrink scope.",
			})
		}
	}
	if sched != nil && sched.OnPath[t.ID] && !t.Status.Terminal() {
		if tm, ok := sched.Timing[t.ID]; ok && tm.Slack < cpTightSlackDays {
			out = append(out, Suggestion{
				Type: "cp_tight", Severity: RiskHigh,
				Title:       "Critical path with little float",
				Description: fmt.Sprintf("On the critical path with %.1f day(s) of slack.", math.Max(0, tm.Slack)),
				Action:      "Any slip here moves the plan end. Protect this task.",
			})
		}
	}
	return out
}

// rankAssignees scores every assignee seen in the plan and returns the top
// three, followed by the task's current assignees for reference.
func rankAssignees(snap *planner.Snapshot, task *planner.Task, samples []planner.HistoricalSample, now time.Time) []AssigneeOption {
	current := map[string]bool{}
	for _, a := range task.Assignees {
		current[a] = true
	}

	type loadStat struct{ active, overdue int }
	loads := map[string]loadStat{}
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		if t.ID == task.ID || t.Status.Terminal() {
			continue
		}
		overdue := t.DueDateTime != nil && t.DueDateTime.Before(now)
		for _, a := range t.Assignees {
			s := loads[a]
			s.active++
			if overdue {
				s.overdue++
			}
			loads[a] = s
		}
	}
	for a := range current {
		if _, ok := loads[a]; !ok {
			loads[a] = loadStat{}
		}
	}

	maxLoad, maxOverdue := 1, 1
	for _, s := range loads {
		if s.active > maxLoad {
			maxLoad = s.active
		}
		if s.overdue > maxOverdue {
			maxOverdue = s.overdue
		}
	}

	var opts []AssigneeOption
	for a, s := range loads {
		rate := neutralCompletionRate
		if len(samples) > 0 {
			if r := history.CompletionRate(samples, a); r > 0 {
				rate = r
			}
		}
		score := 0.5*rate - 0.3*float64(s.active)/float64(maxLoad) - 0.2*float64(s.overdue)/float64(maxOverdue)
		opts = append(opts, AssigneeOption{
			Assignee: a, Score: score, CompletionRate: rate,
			ActiveTasks: s.active, OverdueTasks: s.overdue, Current: current[a],
			Reason: fmt.Sprintf("%s: %d active task(s), %d overdue, %.0f%% historical completion",
				a, s.active, s.overdue, rate*100),
		})
	}
	sort.Slice(opts, func(i, j int) bool {
		if opts[i].Score != opts[j].Score {
			return opts[i].Score > opts[j].Score
		}
		return opts[i].Assignee < opts[j].Assignee
	})

	out := make([]AssigneeOption, 0, 4)
	for _, o := range opts {
		if len(out) < 3 {
			out = append(out, o)
		} else if o.Current {
			out = append(out, o)
		}
	}
	return out
}

func resourceSuggestions(snap *planner.Snapshot, task *planner.Task, ranked []AssigneeOption, now time.Time) []Suggestion {
	var out []Suggestion
	byName := map[string]AssigneeOption{}
	for _, o := range ranked {
		byName[o.Assignee] = o
	}
	for _, a := range task.Assignees {
		o, ok := byName[a]
		if !ok {
			o = assigneeLoad(snap, task, a, now)
		}
		if o.ActiveTasks >= overloadActiveTasks {
			out = append(out, Suggestion{
				Type: "resource_overload", Severity: RiskHigh,
				Title:       a + " is overloaded",
				Description: fmt.Sprintf("%s carries %d active task(s), %d of them overdue.", a, o.ActiveTasks, o.OverdueTasks),
				Action:      "Rebalance this assignee's workload.",
			})
		}
	}
	if len(ranked) > 0 && !ranked[0].Current {
		out = append(out, Suggestion{
			Type: "reassignment", Severity: RiskLow,
			Title:       "Better-placed assignee available",
			Description: ranked[0].Reason,
			Action:      "Consider reassigning to " + ranked[0].Assignee + ".",
		})
	}
	return out
}

// assigneeLoad recomputes one assignee's live load when it fell outside the
// ranked top list.
func assigneeLoad(snap *planner.Snapshot, task *planner.Task, assignee string, now time.Time) AssigneeOption {
	o := AssigneeOption{Assignee: assignee, Current: true}
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		if t.ID == task.ID || t.Status.Terminal() {
			continue
		}
		for _, a := range t.Assignees {
			if a != assignee {
				continue
			}
			o.ActiveTasks++
			if t.DueDateTime != nil && t.DueDateTime.Before(now) {
				o.OverdueTasks++
			}
		}
	}
	return o
}

// score folds the sections into the 0..100 risk score.
func score(r *Report, task *planner.Task, sched *graph.Schedule, now time.Time) (int, []string) {
	var factors []string

	high := 0
	for _, d := range r.DependencyRisks {
		if d.Level == RiskHigh {
			high++
		}
	}
	timeline := len(r.TimelineSuggestions)
	overload := 0
	for _, s := range r.ResourceSuggestions {
		if s.Type == "resource_overload" {
			overload++
		}
	}

	if high > 0 {
		factors = append(factors, fmt.Sprintf("%d high-risk dependencies", high))
	}
	if timeline > 0 {
		factors = append(factors, fmt.Sprintf("%d timeline risks", timeline))
	}
	if overload > 0 {
		factors = append(factors, fmt.Sprintf("%d overloaded assignees", overload))
	}

	onPath := 0
	if sched != nil && sched.OnPath[task.ID] {
		onPath = 1
		factors = append(factors, "on critical path")
	}
	overdue := 0
	if task.DueDateTime != nil && task.DueDateTime.Before(now) && task.Status.Active() {
		overdue = 1
		factors = append(factors, "overdue")
	}

	raw := weightDependency*cap3(high) + weightTimeline*cap3(timeline) +
		weightResource*cap3(overload) + weightCritical*onPath + weightOverdue*overdue
	if raw > 100 {
		raw = 100
	}
	return raw, factors
}

func cap3(n int) int {
	if n > factorCap {
		return factorCap
	}
	return n
}
