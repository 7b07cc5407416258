// Package markov models task progress as an absorbing Markov chain: detect a
// task's current state, learn a transition matrix from historical state
// sequences, and compute expected time to absorption via the fundamental
// matrix.
package markov

import (
	"strings"
	"time"

	"congresstwin/internal/planner"
)

// State is a Markov chain state. Planning is a chain-only state (an assigned
// but unstarted task); the rest mirror task statuses.
type State string

const (
	NotStarted  State = "NotStarted"
	Planning    State = "Planning"
	InProgress  State = "InProgress"
	Blocked     State = "Blocked"
	UnderReview State = "UnderReview"
	Completed   State = "Completed"
	Cancelled   State = "Cancelled"
)

// States is the canonical ordering: transient states first, absorbing last.
var States = []State{NotStarted, Planning, InProgress, Blocked, UnderReview, Completed, Cancelled}

// numTransient is the count of non-absorbing states at the front of States.
const numTransient = 5

// Absorbing reports whether s has no outgoing transitions.
func (s State) Absorbing() bool { return s == Completed || s == Cancelled }

// Index returns the position of s in States, or -1.
func (s State) Index() int {
	for i, st := range States {
		if st == s {
			return i
		}
	}
	return -1
}

// LifecycleSequence infers the state path a historical task took from where
// it ended up. Without an audit log the chain is reconstructed from the
// lifecycle: a completed task walked the full happy path, a blocked task
// records the block and its eventual recovery, an in-progress task records
// the planning handoff. Other states carry no transition evidence.
func LifecycleSequence(t *planner.Task, now time.Time) []State {
	switch DetectState(t, now) {
	case Completed:
		return []State{NotStarted, Planning, InProgress, Completed}
	case Blocked:
		return []State{InProgress, Blocked, InProgress}
	case InProgress:
		return []State{Planning, InProgress}
	default:
		return nil
	}
}

// stuckWindow is how long a half-done task may sit past due before it is
// considered blocked.
const stuckWindow = 7 * 24 * time.Hour

// DetectState maps a task onto the chain using its status, percent complete,
// assignment and due date. A task stuck at 50% more than a week past due is
// treated as blocked even when its status never said so.
func DetectState(t *planner.Task, now time.Time) State {
	switch {
	case t.Status == planner.StatusCancelled,
		strings.Contains(strings.ToLower(t.Description), "cancel"):
		if t.PercentComplete >= 100 {
			return Completed
		}
		return Cancelled
	case t.Status == planner.StatusCompleted, t.PercentComplete >= 100:
		return Completed
	case t.Status == planner.StatusBlocked:
		return Blocked
	case t.Status == planner.StatusUnderReview:
		return UnderReview
	case t.PercentComplete == 50 && t.DueDateTime != nil && t.CompletedDateTime == nil &&
		now.After(t.DueDateTime.Add(stuckWindow)):
		return Blocked
	case t.PercentComplete > 0, t.Status == planner.StatusInProgress:
		return InProgress
	case len(t.Assignees) > 0:
		return Planning
	default:
		return NotStarted
	}
}
