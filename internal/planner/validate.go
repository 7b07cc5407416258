package planner

// ValidateTask enforces the task invariants on the repository write path:
// status/percent/completion coherence, date ordering, percent range,
// priority range, and assignee uniqueness. prev is the stored version for
// updates (nil on create) and guards percent monotonicity.
func ValidateTask(t *Task, prev *Task) error {
	if t.ID == "" {
		return Validationf("task id is required")
	}
	if t.Title == "" {
		return Validationf("task %s: title is required", t.ID)
	}
	if !t.Status.Valid() {
		return Validationf("task %s: unknown status %q", t.ID, t.Status)
	}
	if t.PercentComplete < 0 || t.PercentComplete > 100 {
		return Validationf("task %s: percentComplete %d out of range [0,100]", t.ID, t.PercentComplete)
	}
	if t.Priority < 0 || t.Priority > 10 {
		return Validationf("task %s: priority %d out of range [0,10]", t.ID, t.Priority)
	}
	switch t.Status {
	case StatusNotStarted:
		if t.PercentComplete != 0 {
			return Validationf("task %s: NotStarted requires percentComplete 0, got %d", t.ID, t.PercentComplete)
		}
	case StatusCompleted:
		if t.PercentComplete != 100 {
			return Validationf("task %s: Completed requires percentComplete 100, got %d", t.ID, t.PercentComplete)
		}
	}
	if (t.Status == StatusCompleted) != (t.CompletedDateTime != nil) {
		return Validationf("task %s: completedDateTime must be set iff status is Completed", t.ID)
	}
	if t.StartDateTime != nil && t.DueDateTime != nil && t.StartDateTime.After(*t.DueDateTime) {
		return Validationf("task %s: start %s after due %s", t.ID, t.StartDateTime, t.DueDateTime)
	}
	if prev != nil && t.PercentComplete < prev.PercentComplete && t.Status != StatusCancelled {
		return Validationf("task %s: percentComplete may not decrease (%d -> %d)",
			t.ID, prev.PercentComplete, t.PercentComplete)
	}
	seen := make(map[string]struct{}, len(t.Assignees))
	for _, a := range t.Assignees {
		if a == "" {
			return Validationf("task %s: empty assignee id", t.ID)
		}
		if _, dup := seen[a]; dup {
			return Validationf("task %s: duplicate assignee %q", t.ID, a)
		}
		seen[a] = struct{}{}
	}
	return nil
}

// ValidateDependency checks the edge shape; DAG-ness is checked separately
// against the plan's full edge set.
func ValidateDependency(d *Dependency) error {
	if d.TaskID == "" || d.PredecessorID == "" {
		return Validationf("dependency endpoints are required")
	}
	if d.TaskID == d.PredecessorID {
		return Validationf("dependency %s -> %s is a self loop", d.PredecessorID, d.TaskID)
	}
	if !d.Type.Valid() {
		return Validationf("dependency %s -> %s: unknown type %q", d.PredecessorID, d.TaskID, d.Type)
	}
	return nil
}

// ValidateSeverity reports whether s is a recognized event severity.
func ValidateSeverity(s Severity) error {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return nil
	}
	return Validationf("unknown severity %q", s)
}
