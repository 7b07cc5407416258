// Package events turns external events into proposed re-adjustments awaiting
// human approval, via a table-driven rule registry keyed on event type. The
// rules are pure; persistence and the approve/reject transaction live in the
// service layer.
package events

import (
	"fmt"
	"math"
	"time"

	"congresstwin/internal/planner"
)

// Action types a rule may propose.
const (
	ActionShiftDueDate         = "shift_due_date"
	ActionReassignOrReschedule = "reassign_or_reschedule"
)

// Builtin event types with rules attached.
const (
	EventFlightCancellation          = "flight_cancellation"
	EventParticipantMeetingCancelled = "participant_meeting_cancelled"
)

// maxProposalsPerEvent caps how many actions one event may fan out to.
const maxProposalsPerEvent = 3

// defaultShiftDays is used when an event's payload carries no shift_days.
const defaultShiftDays = 2

// Rule derives zero or more proposed actions for an event against the
// current snapshot. Returned actions carry no id/status; the caller assigns
// those on insert.
type Rule func(event *planner.ExternalEvent, snap *planner.Snapshot) []planner.ProposedAction

// Registry maps event types to rules. Unknown types produce no actions (the
// event itself is still stored).
type Registry struct {
	rules map[string]Rule
}

// NewRegistry returns a registry with the builtin rule set.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[string]Rule)}
	r.Register(EventFlightCancellation, flightCancellationRule)
	r.Register(EventParticipantMeetingCancelled, meetingCancelledRule)
	return r
}

// Register installs or replaces the rule for an event type.
func (r *Registry) Register(eventType string, rule Rule) {
	r.rules[eventType] = rule
}

// Propose runs the rule for the event's type. Nil for unknown types.
func (r *Registry) Propose(event *planner.ExternalEvent, snap *planner.Snapshot) []planner.ProposedAction {
	rule, ok := r.rules[event.EventType]
	if !ok {
		return nil
	}
	return rule(event, snap)
}

// DefaultTitle supplies the event title when the caller left it empty.
func DefaultTitle(eventType string) string {
	switch eventType {
	case EventFlightCancellation:
		return "Flight cancellation impacting travel"
	case EventParticipantMeetingCancelled:
		return "Participant meeting cancelled - scheduling impact"
	default:
		return "External event: " + eventType
	}
}

// targets resolves the tasks a rule should touch: the event's affected ids
// when given, else the first in-progress tasks, else the first tasks of the
// plan. Completed and cancelled tasks are skipped.
func targets(event *planner.ExternalEvent, snap *planner.Snapshot) []*planner.Task {
	var out []*planner.Task
	add := func(t *planner.Task) {
		if t != nil && t.Status.Active() && len(out) < maxProposalsPerEvent {
			out = append(out, t)
		}
	}
	if len(event.AffectedTaskIDs) > 0 {
		for _, id := range event.AffectedTaskIDs {
			add(snap.TaskByID(id))
		}
		return out
	}
	for i := range snap.Tasks {
		if snap.Tasks[i].Status == planner.StatusInProgress && len(out) < 2 {
			add(&snap.Tasks[i])
		}
	}
	if len(out) == 0 {
		for i := range snap.Tasks {
			if len(out) >= 2 {
				break
			}
			add(&snap.Tasks[i])
		}
	}
	return out
}

// shiftDays reads the event's shift_days payload entry; JSON decoding may
// deliver it as a float. Always at least 1.
func shiftDays(event *planner.ExternalEvent) int {
	v, ok := event.Payload["shift_days"]
	if !ok {
		return defaultShiftDays
	}
	var days int
	switch n := v.(type) {
	case int:
		days = n
	case int64:
		days = int(n)
	case float64:
		days = int(math.Round(n))
	default:
		return defaultShiftDays
	}
	if days < 1 {
		return 1
	}
	return days
}

func flightCancellationRule(event *planner.ExternalEvent, snap *planner.Snapshot) []planner.ProposedAction {
	days := shiftDays(event)
	var out []planner.ProposedAction
	for _, t := range targets(event, snap) {
		out = append(out, planner.ProposedAction{
			PlanID:          event.PlanID,
			ExternalEventID: event.ID,
			TaskID:          t.ID,
			ActionType:      ActionShiftDueDate,
			Title:           "Shift due date: " + t.Title,
			Description: fmt.Sprintf(
				"Flight cancellation may delay travel. Suggest shifting the due date by +%d days. Approve to apply.", days),
			Payload: map[string]any{
				"task_id": t.ID, "shift_days": days, "reason": EventFlightCancellation,
			},
			Status: planner.ActionPending,
		})
	}
	return out
}

func meetingCancelledRule(event *planner.ExternalEvent, snap *planner.Snapshot) []planner.ProposedAction {
	days := shiftDays(event)
	var out []planner.ProposedAction
	for _, t := range targets(event, snap) {
		out = append(out, planner.ProposedAction{
			PlanID:          event.PlanID,
			ExternalEventID: event.ID,
			TaskID:          t.ID,
			ActionType:      ActionReassignOrReschedule,
			Title:           "Re-adjust schedule: " + t.Title,
			Description: fmt.Sprintf(
				"Participant meeting cancelled. Reassign or push by +%d days to allow rescheduling. Approve to apply.", days),
			Payload: map[string]any{
				"task_id": t.ID, "shift_days": days, "reason": EventParticipantMeetingCancelled,
			},
			Status: planner.ActionPending,
		})
	}
	return out
}

// Apply mutates task according to an approved action's payload. Unknown
// action types are a validation error; the caller wraps this in the approve
// transaction so a failure applies nothing.
func Apply(action *planner.ProposedAction, task *planner.Task) error {
	switch action.ActionType {
	case ActionShiftDueDate, ActionReassignOrReschedule:
		if assignees, ok := stringSlice(action.Payload["assignees"]); ok {
			task.Assignees = assignees
			return nil
		}
		days, _ := action.Payload["shift_days"].(int)
		if days == 0 {
			if f, ok := action.Payload["shift_days"].(float64); ok {
				days = int(math.Round(f))
			}
		}
		if days == 0 {
			return planner.Validationf("action %d: shift_days missing from payload", action.ID)
		}
		shift := time.Duration(days) * 24 * time.Hour
		if task.DueDateTime == nil && task.StartDateTime == nil {
			return planner.Validationf("action %d: task %s has no dates to shift", action.ID, task.ID)
		}
		if task.DueDateTime != nil {
			d := task.DueDateTime.Add(shift)
			task.DueDateTime = &d
		}
		if task.StartDateTime != nil {
			s := task.StartDateTime.Add(shift)
			task.StartDateTime = &s
		}
		return nil
	default:
		return planner.Validationf("unknown action type %q", action.ActionType)
	}
}

func stringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, len(s) > 0
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, len(out) > 0
	}
	return nil, false
}
