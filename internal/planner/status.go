package planner

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNotStarted  Status = "NotStarted"
	StatusInProgress  Status = "InProgress"
	StatusBlocked     Status = "Blocked"
	StatusUnderReview Status = "UnderReview"
	StatusCompleted   Status = "Completed"
	StatusCancelled   Status = "Cancelled"
)

// AllStatuses lists every task status in lifecycle order.
var AllStatuses = []Status{
	StatusNotStarted,
	StatusInProgress,
	StatusBlocked,
	StatusUnderReview,
	StatusCompleted,
	StatusCancelled,
}

// Valid reports whether s is a recognized status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusBlocked, StatusUnderReview,
		StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is an absorbing state: no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether the task still consumes schedule: neither completed
// nor cancelled.
func (s Status) Active() bool {
	return !s.Terminal()
}
