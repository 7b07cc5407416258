// Package attention derives the "needs a look" views from a plan snapshot:
// blockers, overdue work, the coming week, critical-path urgency and recent
// churn, plus the milestone lane and execution badges. Pure functions; the
// service layer owns loading and caching.
package attention

import (
	"time"

	"congresstwin/internal/graph"
	"congresstwin/internal/planner"
)

// DefaultLimit bounds each view's task list.
const DefaultLimit = 20

// lookahead is the "due next" window.
const lookahead = 7 * 24 * time.Hour

// Item is a task summary inside a view.
type Item struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Status         planner.Status `json:"status"`
	DueDateTime    *time.Time     `json:"dueDateTime,omitempty"`
	Assignees      []string       `json:"assignees,omitempty"`
	OnCriticalPath bool           `json:"onCriticalPath"`
}

// View is one dashboard lane: the full match count and a bounded list.
type View struct {
	Count int    `json:"count"`
	Tasks []Item `json:"tasks"`
}

// Dashboard is the full attention result.
type Dashboard struct {
	PlanID              string `json:"planId"`
	Blockers            View   `json:"blockers"`
	Overdue             View   `json:"overdue"`
	DueNext7Days        View   `json:"dueNext7Days"`
	CriticalPathDueNext View   `json:"criticalPathDueNext"`
	RecentlyChanged     View   `json:"recentlyChanged"`
}

// Options tunes the build. Zero Now means time.Now; zero Limit means
// DefaultLimit.
type Options struct {
	Now   time.Time
	Limit int
}

// Build assembles the dashboard from a snapshot, its dependency graph and
// the critical-path schedule.
func Build(snap *planner.Snapshot, g *graph.Graph, sched *graph.Schedule, opts Options) *Dashboard {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	d := &Dashboard{PlanID: snap.Plan.ID}
	var blockers, overdue, due7, cpDue7, recent []Item

	changedSince := now.Add(-24 * time.Hour)
	if snap.Sync.PreviousSyncAt != nil {
		changedSince = *snap.Sync.PreviousSyncAt
	}

	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		item := Item{
			ID: t.ID, Title: t.Title, Status: t.Status,
			DueDateTime: t.DueDateTime, Assignees: t.Assignees,
			OnCriticalPath: sched.OnPath[t.ID],
		}

		if isBlocked(t, g) {
			blockers = append(blockers, item)
		}
		if t.Status.Active() && t.DueDateTime != nil {
			due := *t.DueDateTime
			if due.Before(now) {
				overdue = append(overdue, item)
			} else if !due.After(now.Add(lookahead)) {
				due7 = append(due7, item)
				if item.OnCriticalPath {
					cpDue7 = append(cpDue7, item)
				}
			}
		}
		if !t.LastModifiedAt.IsZero() && !t.LastModifiedAt.Before(changedSince) && t.LastModifiedAt.Before(now) {
			recent = append(recent, item)
		}
	}

	d.Blockers = view(blockers, limit)
	d.Overdue = view(overdue, limit)
	d.DueNext7Days = view(due7, limit)
	d.CriticalPathDueNext = view(cpDue7, limit)
	d.RecentlyChanged = view(recent, limit)
	return d
}

// isBlocked: explicitly blocked, or not yet started while some predecessor
// is unfinished.
func isBlocked(t *planner.Task, g *graph.Graph) bool {
	if t.Status == planner.StatusBlocked {
		return true
	}
	if t.Status != planner.StatusNotStarted {
		return false
	}
	for _, e := range g.Predecessors(t.ID) {
		if pred := g.Task(e.From); pred != nil && pred.Status != planner.StatusCompleted {
			return true
		}
	}
	return false
}

func view(items []Item, limit int) View {
	sortItems(items)
	v := View{Count: len(items), Tasks: items}
	if len(items) > limit {
		v.Tasks = items[:limit]
	}
	return v
}
