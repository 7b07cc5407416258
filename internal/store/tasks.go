package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"congresstwin/internal/planner"
)

const taskColumns = `id, plan_id, bucket_id, title, description, status, percent_complete,
	priority, start_at, due_at, completed_at, assignees, categories, order_hint,
	created_at, last_modified_at, created_by, completed_by`

func scanTask(row interface{ Scan(...any) error }) (*planner.Task, error) {
	var (
		t                      planner.Task
		status                 string
		startAt, dueAt, doneAt sql.NullString
		assignees, categories  string
		createdAt, modifiedAt  string
	)
	err := row.Scan(&t.ID, &t.PlanID, &t.BucketID, &t.Title, &t.Description, &status,
		&t.PercentComplete, &t.Priority, &startAt, &dueAt, &doneAt,
		&assignees, &categories, &t.OrderHint, &createdAt, &modifiedAt,
		&t.CreatedBy, &t.CompletedBy)
	if err != nil {
		return nil, err
	}
	t.Status = planner.Status(status)
	t.Assignees = decodeStrings(assignees)
	t.AppliedCategories = decodeStrings(categories)
	if t.StartDateTime, err = decodeTimePtr(startAt); err != nil {
		return nil, err
	}
	if t.DueDateTime, err = decodeTimePtr(dueAt); err != nil {
		return nil, err
	}
	if t.CompletedDateTime, err = decodeTimePtr(doneAt); err != nil {
		return nil, err
	}
	if t.CreatedDateTime, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	if t.LastModifiedAt, err = decodeTime(modifiedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Tasks lists all tasks of a plan, ordered by order hint then id.
func (q queries) Tasks(ctx context.Context, planID string) ([]planner.Task, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE plan_id = ? ORDER BY order_hint, id`, planID)
	if err != nil {
		return nil, fmt.Errorf("list tasks %s: %w", planID, err)
	}
	defer rows.Close()

	var out []planner.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetTask loads one task.
func (q queries) GetTask(ctx context.Context, planID, taskID string) (*planner.Task, error) {
	t, err := scanTask(q.q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE plan_id = ? AND id = ?`, planID, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s in plan %s", planner.ErrTaskNotFound, taskID, planID)
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s/%s: %w", planID, taskID, err)
	}
	return t, nil
}

// PutTask upserts one task row.
func (q queries) PutTask(ctx context.Context, t *planner.Task) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO tasks (id, plan_id, bucket_id, title, description, status,
			percent_complete, priority, start_at, due_at, completed_at,
			assignees, categories, order_hint, created_at, last_modified_at,
			created_by, completed_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, id) DO UPDATE SET
			bucket_id = excluded.bucket_id,
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			percent_complete = excluded.percent_complete,
			priority = excluded.priority,
			start_at = excluded.start_at,
			due_at = excluded.due_at,
			completed_at = excluded.completed_at,
			assignees = excluded.assignees,
			categories = excluded.categories,
			order_hint = excluded.order_hint,
			last_modified_at = excluded.last_modified_at,
			completed_by = excluded.completed_by`,
		t.ID, t.PlanID, t.BucketID, t.Title, t.Description, string(t.Status),
		t.PercentComplete, t.Priority,
		encodeTimePtr(t.StartDateTime), encodeTimePtr(t.DueDateTime), encodeTimePtr(t.CompletedDateTime),
		encodeStrings(t.Assignees), encodeStrings(t.AppliedCategories), t.OrderHint,
		encodeTime(t.CreatedDateTime), encodeTime(t.LastModifiedAt),
		t.CreatedBy, t.CompletedBy)
	if err != nil {
		return fmt.Errorf("save task %s/%s: %w", t.PlanID, t.ID, err)
	}
	return nil
}

// DeleteTask removes a task; subtasks and dependency rows cascade.
func (q queries) DeleteTask(ctx context.Context, planID, taskID string) error {
	res, err := q.q.ExecContext(ctx,
		`DELETE FROM tasks WHERE plan_id = ? AND id = ?`, planID, taskID)
	if err != nil {
		return fmt.Errorf("delete task %s/%s: %w", planID, taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s in plan %s", planner.ErrTaskNotFound, taskID, planID)
	}
	// Edges where the task is the predecessor are not covered by the FK.
	_, err = q.q.ExecContext(ctx,
		`DELETE FROM dependencies WHERE plan_id = ? AND predecessor_id = ?`, planID, taskID)
	if err != nil {
		return fmt.Errorf("delete inbound dependencies %s/%s: %w", planID, taskID, err)
	}
	return nil
}

// Subtasks lists all subtasks of a plan in order-hint order.
func (q queries) Subtasks(ctx context.Context, planID string) ([]planner.Subtask, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, plan_id, task_id, title, checked, order_hint, last_modified_at
		FROM subtasks WHERE plan_id = ? ORDER BY task_id, order_hint, id`, planID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks %s: %w", planID, err)
	}
	defer rows.Close()

	var out []planner.Subtask
	for rows.Next() {
		var (
			sub      planner.Subtask
			modified string
		)
		if err := rows.Scan(&sub.ID, &sub.PlanID, &sub.TaskID, &sub.Title, &sub.Checked, &sub.OrderHint, &modified); err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		if sub.LastModifiedAt, err = decodeTime(modified); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// PutSubtask upserts one subtask row.
func (q queries) PutSubtask(ctx context.Context, sub *planner.Subtask) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO subtasks (id, plan_id, task_id, title, checked, order_hint, last_modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, task_id, id) DO UPDATE SET
			title = excluded.title,
			checked = excluded.checked,
			order_hint = excluded.order_hint,
			last_modified_at = excluded.last_modified_at`,
		sub.ID, sub.PlanID, sub.TaskID, sub.Title, sub.Checked, sub.OrderHint, encodeTime(sub.LastModifiedAt))
	if err != nil {
		return fmt.Errorf("save subtask %s/%s/%s: %w", sub.PlanID, sub.TaskID, sub.ID, err)
	}
	return nil
}

// DeleteSubtask removes one subtask row.
func (q queries) DeleteSubtask(ctx context.Context, planID, taskID, subtaskID string) error {
	res, err := q.q.ExecContext(ctx,
		`DELETE FROM subtasks WHERE plan_id = ? AND task_id = ? AND id = ?`, planID, taskID, subtaskID)
	if err != nil {
		return fmt.Errorf("delete subtask %s/%s/%s: %w", planID, taskID, subtaskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s on task %s", planner.ErrSubtaskNotFound, subtaskID, taskID)
	}
	return nil
}

// Dependencies lists a plan's edges.
func (q queries) Dependencies(ctx context.Context, planID string) ([]planner.Dependency, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT plan_id, task_id, predecessor_id, dep_type
		FROM dependencies WHERE plan_id = ? ORDER BY predecessor_id, task_id`, planID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies %s: %w", planID, err)
	}
	defer rows.Close()

	var out []planner.Dependency
	for rows.Next() {
		var (
			d       planner.Dependency
			depType string
		)
		if err := rows.Scan(&d.PlanID, &d.TaskID, &d.PredecessorID, &depType); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		d.Type = planner.DependencyType(depType)
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddDependency inserts one edge; a duplicate fails with DuplicateDependency.
func (q queries) AddDependency(ctx context.Context, d *planner.Dependency) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO dependencies (plan_id, task_id, predecessor_id, dep_type)
		VALUES (?, ?, ?, ?)`,
		d.PlanID, d.TaskID, d.PredecessorID, string(d.Type))
	if err != nil {
		return fmt.Errorf("insert dependency %s->%s: %w", d.PredecessorID, d.TaskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s -> %s", planner.ErrDuplicateDependency, d.PredecessorID, d.TaskID)
	}
	return nil
}

// RemoveDependency deletes one edge.
func (q queries) RemoveDependency(ctx context.Context, planID, taskID, predecessorID string) error {
	res, err := q.q.ExecContext(ctx, `
		DELETE FROM dependencies WHERE plan_id = ? AND task_id = ? AND predecessor_id = ?`,
		planID, taskID, predecessorID)
	if err != nil {
		return fmt.Errorf("delete dependency %s->%s: %w", predecessorID, taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s -> %s", planner.ErrDependencyNotFound, predecessorID, taskID)
	}
	return nil
}
