package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"congresstwin/internal/planner"
)

const eventColumns = `id, plan_id, event_type, title, description, severity,
	affected_task_ids, payload, created_at, acknowledged_at`

func scanEvent(row interface{ Scan(...any) error }) (*planner.ExternalEvent, error) {
	var (
		ev                planner.ExternalEvent
		severity          string
		affected, payload string
		createdAt         string
		ackedAt           sql.NullString
	)
	err := row.Scan(&ev.ID, &ev.PlanID, &ev.EventType, &ev.Title, &ev.Description,
		&severity, &affected, &payload, &createdAt, &ackedAt)
	if err != nil {
		return nil, err
	}
	ev.Severity = planner.Severity(severity)
	ev.AffectedTaskIDs = decodeStrings(affected)
	ev.Payload = decodeMap(payload)
	if ev.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	if ev.AcknowledgedAt, err = decodeTimePtr(ackedAt); err != nil {
		return nil, err
	}
	return &ev, nil
}

// InsertEvent persists an event and fills in its generated id.
func (q queries) InsertEvent(ctx context.Context, ev *planner.ExternalEvent) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO external_events (plan_id, event_type, title, description,
			severity, affected_task_ids, payload, created_at, acknowledged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.PlanID, ev.EventType, ev.Title, ev.Description, string(ev.Severity),
		encodeStrings(ev.AffectedTaskIDs), encodeMap(ev.Payload),
		encodeTime(ev.CreatedAt), encodeTimePtr(ev.AcknowledgedAt))
	if err != nil {
		return fmt.Errorf("insert event for plan %s: %w", ev.PlanID, err)
	}
	ev.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	return nil
}

// GetEvent loads one event.
func (q queries) GetEvent(ctx context.Context, planID string, eventID int64) (*planner.ExternalEvent, error) {
	ev, err := scanEvent(q.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM external_events WHERE plan_id = ? AND id = ?`, planID, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d in plan %s", planner.ErrEventNotFound, eventID, planID)
	}
	if err != nil {
		return nil, fmt.Errorf("load event %d: %w", eventID, err)
	}
	return ev, nil
}

// ListEvents returns a plan's events, newest first.
func (q queries) ListEvents(ctx context.Context, planID string) ([]planner.ExternalEvent, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM external_events WHERE plan_id = ? ORDER BY id DESC`, planID)
	if err != nil {
		return nil, fmt.Errorf("list events %s: %w", planID, err)
	}
	defer rows.Close()

	var out []planner.ExternalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// DeleteEvent removes an event and its proposed actions.
func (q queries) DeleteEvent(ctx context.Context, planID string, eventID int64) error {
	res, err := q.q.ExecContext(ctx,
		`DELETE FROM external_events WHERE plan_id = ? AND id = ?`, planID, eventID)
	if err != nil {
		return fmt.Errorf("delete event %d: %w", eventID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d in plan %s", planner.ErrEventNotFound, eventID, planID)
	}
	_, err = q.q.ExecContext(ctx,
		`DELETE FROM proposed_actions WHERE plan_id = ? AND external_event_id = ?`, planID, eventID)
	if err != nil {
		return fmt.Errorf("delete actions of event %d: %w", eventID, err)
	}
	return nil
}

const actionColumns = `id, plan_id, external_event_id, task_id, action_type, title,
	description, payload, status, created_at, decided_at, decided_by`

func scanAction(row interface{ Scan(...any) error }) (*planner.ProposedAction, error) {
	var (
		a         planner.ProposedAction
		status    string
		payload   string
		createdAt string
		decidedAt sql.NullString
	)
	err := row.Scan(&a.ID, &a.PlanID, &a.ExternalEventID, &a.TaskID, &a.ActionType,
		&a.Title, &a.Description, &payload, &status, &createdAt, &decidedAt, &a.DecidedBy)
	if err != nil {
		return nil, err
	}
	a.Status = planner.ActionStatus(status)
	a.Payload = decodeMap(payload)
	if a.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	if a.DecidedAt, err = decodeTimePtr(decidedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertAction persists a proposed action and fills in its generated id.
func (q queries) InsertAction(ctx context.Context, a *planner.ProposedAction) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO proposed_actions (plan_id, external_event_id, task_id,
			action_type, title, description, payload, status, created_at,
			decided_at, decided_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PlanID, a.ExternalEventID, a.TaskID, a.ActionType, a.Title, a.Description,
		encodeMap(a.Payload), string(a.Status), encodeTime(a.CreatedAt),
		encodeTimePtr(a.DecidedAt), a.DecidedBy)
	if err != nil {
		return fmt.Errorf("insert action for plan %s: %w", a.PlanID, err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("action id: %w", err)
	}
	return nil
}

// GetAction loads one proposed action.
func (q queries) GetAction(ctx context.Context, planID string, actionID int64) (*planner.ProposedAction, error) {
	a, err := scanAction(q.q.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM proposed_actions WHERE plan_id = ? AND id = ?`, planID, actionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d in plan %s", planner.ErrActionNotFound, actionID, planID)
	}
	if err != nil {
		return nil, fmt.Errorf("load action %d: %w", actionID, err)
	}
	return a, nil
}

// ListActions returns a plan's proposed actions, optionally filtered by
// status, newest first.
func (q queries) ListActions(ctx context.Context, planID string, status planner.ActionStatus) ([]planner.ProposedAction, error) {
	query := `SELECT ` + actionColumns + ` FROM proposed_actions WHERE plan_id = ?`
	args := []any{planID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions %s: %w", planID, err)
	}
	defer rows.Close()

	var out []planner.ProposedAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpdateActionStatus records the decision on an action.
func (q queries) UpdateActionStatus(ctx context.Context, a *planner.ProposedAction) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE proposed_actions SET status = ?, decided_at = ?, decided_by = ?
		WHERE plan_id = ? AND id = ?`,
		string(a.Status), encodeTimePtr(a.DecidedAt), a.DecidedBy, a.PlanID, a.ID)
	if err != nil {
		return fmt.Errorf("update action %d: %w", a.ID, err)
	}
	return nil
}

// DeleteAction removes one proposed action.
func (q queries) DeleteAction(ctx context.Context, planID string, actionID int64) error {
	res, err := q.q.ExecContext(ctx,
		`DELETE FROM proposed_actions WHERE plan_id = ? AND id = ?`, planID, actionID)
	if err != nil {
		return fmt.Errorf("delete action %d: %w", actionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d in plan %s", planner.ErrActionNotFound, actionID, planID)
	}
	return nil
}
