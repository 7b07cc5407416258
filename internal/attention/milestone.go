package attention

import (
	"sort"
	"time"

	"congresstwin/internal/graph"
	"congresstwin/internal/planner"
)

// DefaultEventLead is the assumed event date when none is given.
const DefaultEventLead = 21 * 24 * time.Hour

// AtRiskItem is a task that cannot land before the event date.
type AtRiskItem struct {
	Item
	// DaysAfterEvent is how far past the event the task is due; nil when
	// the task has no due date at all.
	DaysAfterEvent *int `json:"daysAfterEvent,omitempty"`
}

// Milestone is the event-date lane: what must be done before the event and
// what is at risk of landing after it.
type Milestone struct {
	PlanID    string       `json:"planId"`
	EventDate time.Time    `json:"eventDate"`
	Before    []Item       `json:"before"`
	AtRisk    []AtRiskItem `json:"atRisk"`
}

// BuildMilestone splits tasks around the event date. Incomplete tasks due
// after the event, or with no due date, are at risk.
func BuildMilestone(snap *planner.Snapshot, sched *graph.Schedule, eventDate *time.Time, now time.Time) *Milestone {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	event := now.Add(DefaultEventLead)
	if eventDate != nil {
		event = *eventDate
	}

	m := &Milestone{PlanID: snap.Plan.ID, EventDate: event}
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		item := Item{
			ID: t.ID, Title: t.Title, Status: t.Status,
			DueDateTime: t.DueDateTime, Assignees: t.Assignees,
			OnCriticalPath: sched.OnPath[t.ID],
		}
		switch {
		case t.DueDateTime != nil && !t.DueDateTime.After(event):
			m.Before = append(m.Before, item)
		case t.Status == planner.StatusCompleted:
			// Done, never at risk.
		case t.DueDateTime != nil:
			over := int(t.DueDateTime.Sub(event).Hours() / 24)
			m.AtRisk = append(m.AtRisk, AtRiskItem{Item: item, DaysAfterEvent: &over})
		default:
			m.AtRisk = append(m.AtRisk, AtRiskItem{Item: item})
		}
	}
	sortItems(m.Before)
	sort.Slice(m.AtRisk, func(i, j int) bool { return lessByDue(m.AtRisk[i].Item, m.AtRisk[j].Item) })
	return m
}

// Badge values attached to execution tasks.
const (
	BadgeBlocked  = "blocked"
	BadgeBlocking = "blocking"
	BadgeAtRisk   = "at_risk"
	BadgeOverdue  = "overdue"
)

// ExecutionTask is a task enriched for the dependency lens.
type ExecutionTask struct {
	Item
	RiskBadges      []string `json:"riskBadges"`
	UpstreamCount   int      `json:"upstreamCount"`
	DownstreamCount int      `json:"downstreamCount"`
}

// BuildExecutionTasks annotates every task with risk badges and direct
// dependency counts, ordered by id.
func BuildExecutionTasks(snap *planner.Snapshot, g *graph.Graph, sched *graph.Schedule, eventDate *time.Time, now time.Time) []ExecutionTask {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	milestone := BuildMilestone(snap, sched, eventDate, now)
	atRisk := make(map[string]bool, len(milestone.AtRisk))
	for _, it := range milestone.AtRisk {
		atRisk[it.ID] = true
	}

	// blocking: unfinished and a direct predecessor of an on-path task.
	blocking := make(map[string]bool)
	for _, id := range g.Order {
		if !sched.OnPath[id] {
			continue
		}
		for _, e := range g.Predecessors(id) {
			if pred := g.Task(e.From); pred != nil && pred.Status != planner.StatusCompleted {
				blocking[e.From] = true
			}
		}
	}

	out := make([]ExecutionTask, 0, len(snap.Tasks))
	for _, id := range g.Order {
		t := g.Task(id)
		et := ExecutionTask{
			Item: Item{
				ID: t.ID, Title: t.Title, Status: t.Status,
				DueDateTime: t.DueDateTime, Assignees: t.Assignees,
				OnCriticalPath: sched.OnPath[t.ID],
			},
			RiskBadges:      []string{},
			UpstreamCount:   len(g.Predecessors(id)),
			DownstreamCount: len(g.Successors(id)),
		}
		if hasUnfinishedPred(t, g) {
			et.RiskBadges = append(et.RiskBadges, BadgeBlocked)
		}
		if blocking[id] {
			et.RiskBadges = append(et.RiskBadges, BadgeBlocking)
		}
		if atRisk[id] {
			et.RiskBadges = append(et.RiskBadges, BadgeAtRisk)
		}
		if t.Status.Active() && t.DueDateTime != nil && t.DueDateTime.Before(now) {
			et.RiskBadges = append(et.RiskBadges, BadgeOverdue)
		}
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// hasUnfinishedPred mirrors the original execution-lens blocked badge: any
// incomplete task with an unfinished direct predecessor.
func hasUnfinishedPred(t *planner.Task, g *graph.Graph) bool {
	if t.Status == planner.StatusCompleted || t.Status == planner.StatusCancelled {
		return false
	}
	for _, e := range g.Predecessors(t.ID) {
		if pred := g.Task(e.From); pred != nil && pred.Status != planner.StatusCompleted {
			return true
		}
	}
	return false
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool { return lessByDue(items[i], items[j]) })
}

func lessByDue(a, b Item) bool {
	switch {
	case a.DueDateTime == nil && b.DueDateTime != nil:
		return false
	case a.DueDateTime != nil && b.DueDateTime == nil:
		return true
	case a.DueDateTime != nil && b.DueDateTime != nil && !a.DueDateTime.Equal(*b.DueDateTime):
		return a.DueDateTime.Before(*b.DueDateTime)
	}
	return a.ID < b.ID
}
