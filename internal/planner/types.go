// Package planner defines the domain model for congress/event program plans:
// plans, buckets, tasks, subtasks, dependencies, locks, external events and
// proposed actions. All timestamps are UTC instants; scheduling arithmetic is
// day-granular.
package planner

import "time"

// Plan is the top-level container. It owns buckets, tasks, dependencies,
// locks, events and proposed actions.
type Plan struct {
	ID           string     `json:"planId"`
	Name         string     `json:"name"`
	EventDate    *time.Time `json:"eventDate,omitempty"`
	SourcePlanID string     `json:"sourcePlanId,omitempty"`
	IsTemplate   bool       `json:"isTemplate,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Bucket groups tasks into a workstream/phase. Bucket name is the categorical
// dimension for calibration and the variance heatmap.
type Bucket struct {
	ID        string `json:"id"`
	PlanID    string `json:"planId"`
	Name      string `json:"name"`
	OrderHint string `json:"orderHint,omitempty"`
}

// Task is a unit of work inside a plan. IDs are stable within the plan.
type Task struct {
	PlanID            string     `json:"planId"`
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	BucketID          string     `json:"bucketId"`
	Status            Status     `json:"status"`
	PercentComplete   int        `json:"percentComplete"`
	StartDateTime     *time.Time `json:"startDateTime,omitempty"`
	DueDateTime       *time.Time `json:"dueDateTime,omitempty"`
	CompletedDateTime *time.Time `json:"completedDateTime,omitempty"`
	Priority          int        `json:"priority"`
	Assignees         []string   `json:"assignees,omitempty"`
	AppliedCategories []string   `json:"appliedCategories,omitempty"`
	Description       string     `json:"description,omitempty"`
	OrderHint         string     `json:"orderHint,omitempty"`
	CreatedDateTime   time.Time  `json:"createdDateTime"`
	LastModifiedAt    time.Time  `json:"lastModifiedAt"`
	CreatedBy         string     `json:"createdBy,omitempty"`
	CompletedBy       string     `json:"completedBy,omitempty"`
}

// Subtask is a checklist item owned by a task. Deleting the task cascades.
type Subtask struct {
	PlanID         string    `json:"planId"`
	TaskID         string    `json:"taskId"`
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Checked        bool      `json:"checked"`
	OrderHint      string    `json:"orderHint,omitempty"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`
}

// DependencyType follows classical scheduling edge semantics.
type DependencyType string

const (
	FinishToStart  DependencyType = "FS"
	StartToStart   DependencyType = "SS"
	FinishToFinish DependencyType = "FF"
	StartToFinish  DependencyType = "SF"
)

// Valid reports whether t is one of the four recognized edge types.
func (t DependencyType) Valid() bool {
	switch t {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	}
	return false
}

// Dependency is a directed edge: PredecessorID must progress before TaskID
// per the edge type. The per-plan edge set must remain a DAG.
type Dependency struct {
	PlanID        string         `json:"planId"`
	TaskID        string         `json:"taskId"`
	PredecessorID string         `json:"dependsOnTaskId"`
	Type          DependencyType `json:"dependencyType"`
}

// TaskLock is an advisory per-task edit lock with lazy TTL expiry.
type TaskLock struct {
	PlanID     string        `json:"planId"`
	TaskID     string        `json:"taskId"`
	UserID     string        `json:"userId"`
	AcquiredAt time.Time     `json:"acquiredAt"`
	TTL        time.Duration `json:"ttl"`
}

// Expired reports whether the lock's TTL has elapsed at now.
func (l TaskLock) Expired(now time.Time) bool {
	return now.After(l.AcquiredAt.Add(l.TTL))
}

// Severity classifies external events.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ExternalEvent is an ingested real-world disruption (flight cancellation,
// participant meeting cancelled, ...). IDs are monotonic per plan.
type ExternalEvent struct {
	ID              int64          `json:"id"`
	PlanID          string         `json:"planId"`
	EventType       string         `json:"eventType"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	Severity        Severity       `json:"severity"`
	AffectedTaskIDs []string       `json:"affectedTaskIds,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	AcknowledgedAt  *time.Time     `json:"acknowledgedAt,omitempty"`
}

// ActionStatus is the lifecycle state of a proposed action.
type ActionStatus string

const (
	ActionPending  ActionStatus = "pending"
	ActionApproved ActionStatus = "approved"
	ActionRejected ActionStatus = "rejected"
)

// ProposedAction is an agent-generated candidate mutation awaiting a human
// decision. Approval applies the implied mutation in the same transaction as
// the status change.
type ProposedAction struct {
	ID              int64          `json:"id"`
	PlanID          string         `json:"planId"`
	ExternalEventID int64          `json:"externalEventId,omitempty"`
	TaskID          string         `json:"taskId"`
	ActionType      string         `json:"actionType"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
	Status          ActionStatus   `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	DecidedAt       *time.Time     `json:"decidedAt,omitempty"`
	DecidedBy       string         `json:"decidedBy,omitempty"`
}

// HistoricalSample is one completed task from a past plan, the calibration
// unit consumed by the historical analyzer.
type HistoricalSample struct {
	PlanID        string   `json:"planId"`
	TaskID        string   `json:"taskId"`
	Bucket        string   `json:"bucket"`
	PlannedDays   float64  `json:"plannedDays"`
	ActualDays    float64  `json:"actualDays"`
	Assignees     []string `json:"assignees,omitempty"`
	TerminalState Status   `json:"terminalState"`
	BlockCount    int      `json:"blockCount"`
}

// SyncState tracks when a plan was last synchronized with its upstream
// source. PreviousSyncAt bounds the "recently changed" attention window.
type SyncState struct {
	PlanID         string     `json:"planId"`
	LastSyncAt     *time.Time `json:"lastSyncAt,omitempty"`
	PreviousSyncAt *time.Time `json:"previousSyncAt,omitempty"`
}

// Snapshot is a consistent read of one plan: the unit all analytical
// computations (graph, critical path, simulation, attention) operate on.
// Analytical code never goes back to the repository mid-computation.
type Snapshot struct {
	Plan         Plan
	Buckets      []Bucket
	Tasks        []Task
	Dependencies []Dependency
	Subtasks     map[string][]Subtask // keyed by task id
	Sync         SyncState
}

// TaskByID returns the task with the given id, or nil.
func (s *Snapshot) TaskByID(id string) *Task {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return &s.Tasks[i]
		}
	}
	return nil
}

// BucketName resolves a bucket id to its display name; falls back to the id
// so analytics keyed on bucket never collapse into an empty string.
func (s *Snapshot) BucketName(bucketID string) string {
	for _, b := range s.Buckets {
		if b.ID == bucketID {
			return b.Name
		}
	}
	if bucketID == "" {
		return "Unknown"
	}
	return bucketID
}

// Clone returns a deep copy of the snapshot. Impact previews mutate the copy
// and leave the original untouched.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Plan:         s.Plan,
		Buckets:      append([]Bucket(nil), s.Buckets...),
		Tasks:        make([]Task, len(s.Tasks)),
		Dependencies: append([]Dependency(nil), s.Dependencies...),
		Subtasks:     make(map[string][]Subtask, len(s.Subtasks)),
		Sync:         s.Sync,
	}
	for i, t := range s.Tasks {
		c := t
		c.Assignees = append([]string(nil), t.Assignees...)
		c.AppliedCategories = append([]string(nil), t.AppliedCategories...)
		if t.StartDateTime != nil {
			v := *t.StartDateTime
			c.StartDateTime = &v
		}
		if t.DueDateTime != nil {
			v := *t.DueDateTime
			c.DueDateTime = &v
		}
		if t.CompletedDateTime != nil {
			v := *t.CompletedDateTime
			c.CompletedDateTime = &v
		}
		out.Tasks[i] = c
	}
	for k, v := range s.Subtasks {
		out.Subtasks[k] = append([]Subtask(nil), v...)
	}
	return out
}
