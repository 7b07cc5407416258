package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"congresstwin/internal/planner"
)

const planColumns = `id, name, event_date, source_plan_id, is_template, created_at`

func scanPlan(row interface{ Scan(...any) error }) (*planner.Plan, error) {
	var (
		p         planner.Plan
		eventDate sql.NullString
		createdAt string
	)
	if err := row.Scan(&p.ID, &p.Name, &eventDate, &p.SourcePlanID, &p.IsTemplate, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if p.EventDate, err = decodeTimePtr(eventDate); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlan inserts plan metadata.
func (q queries) CreatePlan(ctx context.Context, p *planner.Plan) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO plans (id, name, event_date, source_plan_id, is_template, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, encodeTimePtr(p.EventDate), p.SourcePlanID, p.IsTemplate, encodeTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert plan %s: %w", p.ID, err)
	}
	return nil
}

// GetPlan loads one plan's metadata.
func (q queries) GetPlan(ctx context.Context, planID string) (*planner.Plan, error) {
	p, err := scanPlan(q.q.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = ?`, planID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", planner.ErrPlanNotFound, planID)
	}
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", planID, err)
	}
	return p, nil
}

// ListPlans returns all non-template plans ordered by id.
func (q queries) ListPlans(ctx context.Context) ([]planner.Plan, error) {
	return q.listPlans(ctx, `SELECT `+planColumns+` FROM plans WHERE is_template = 0 ORDER BY id`)
}

// ListTemplates returns template plans ordered by id.
func (q queries) ListTemplates(ctx context.Context) ([]planner.Plan, error) {
	return q.listPlans(ctx, `SELECT `+planColumns+` FROM plans WHERE is_template = 1 ORDER BY id`)
}

func (q queries) listPlans(ctx context.Context, query string) ([]planner.Plan, error) {
	rows, err := q.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []planner.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// PlanFingerprint reads the stored content fingerprint and dirty flag.
func (q queries) PlanFingerprint(ctx context.Context, planID string) (fingerprint string, dirty bool, err error) {
	err = q.q.QueryRowContext(ctx,
		`SELECT fingerprint, dirty_since_sync FROM plans WHERE id = ?`, planID).
		Scan(&fingerprint, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("%w: %s", planner.ErrPlanNotFound, planID)
	}
	if err != nil {
		return "", false, fmt.Errorf("load fingerprint %s: %w", planID, err)
	}
	return fingerprint, dirty, nil
}

// SetPlanFingerprint updates the fingerprint; the dirty flag flips on when
// the content hash moved.
func (q queries) SetPlanFingerprint(ctx context.Context, planID, fingerprint string, dirty bool) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE plans SET fingerprint = ?, dirty_since_sync = ? WHERE id = ?`,
		fingerprint, dirty, planID)
	if err != nil {
		return fmt.Errorf("update fingerprint %s: %w", planID, err)
	}
	return nil
}

// SyncState reads the plan's sync markers; both nil when never synced.
func (q queries) SyncState(ctx context.Context, planID string) (planner.SyncState, error) {
	st := planner.SyncState{PlanID: planID}
	var last, prev sql.NullString
	err := q.q.QueryRowContext(ctx,
		`SELECT last_sync_at, previous_sync_at FROM sync_state WHERE plan_id = ?`, planID).
		Scan(&last, &prev)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("load sync state %s: %w", planID, err)
	}
	if st.LastSyncAt, err = decodeTimePtr(last); err != nil {
		return st, err
	}
	if st.PreviousSyncAt, err = decodeTimePtr(prev); err != nil {
		return st, err
	}
	return st, nil
}

// PutSyncState upserts the plan's sync markers and clears the dirty flag.
func (q queries) PutSyncState(ctx context.Context, st planner.SyncState) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO sync_state (plan_id, last_sync_at, previous_sync_at)
		VALUES (?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			previous_sync_at = excluded.previous_sync_at`,
		st.PlanID, encodeTimePtr(st.LastSyncAt), encodeTimePtr(st.PreviousSyncAt))
	if err != nil {
		return fmt.Errorf("save sync state %s: %w", st.PlanID, err)
	}
	_, err = q.q.ExecContext(ctx,
		`UPDATE plans SET dirty_since_sync = 0 WHERE id = ?`, st.PlanID)
	if err != nil {
		return fmt.Errorf("clear dirty flag %s: %w", st.PlanID, err)
	}
	return nil
}

// LoadSnapshot assembles the full analytical snapshot of one plan.
func (q queries) LoadSnapshot(ctx context.Context, planID string) (*planner.Snapshot, error) {
	plan, err := q.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	snap := &planner.Snapshot{Plan: *plan, Subtasks: map[string][]planner.Subtask{}}

	if snap.Buckets, err = q.Buckets(ctx, planID); err != nil {
		return nil, err
	}
	if snap.Tasks, err = q.Tasks(ctx, planID); err != nil {
		return nil, err
	}
	if snap.Dependencies, err = q.Dependencies(ctx, planID); err != nil {
		return nil, err
	}
	subs, err := q.Subtasks(ctx, planID)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		snap.Subtasks[sub.TaskID] = append(snap.Subtasks[sub.TaskID], sub)
	}
	if snap.Sync, err = q.SyncState(ctx, planID); err != nil {
		return nil, err
	}
	return snap, nil
}

// Buckets lists a plan's buckets in order-hint order.
func (q queries) Buckets(ctx context.Context, planID string) ([]planner.Bucket, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, plan_id, name, order_hint FROM buckets
		WHERE plan_id = ? ORDER BY order_hint, id`, planID)
	if err != nil {
		return nil, fmt.Errorf("list buckets %s: %w", planID, err)
	}
	defer rows.Close()

	var out []planner.Bucket
	for rows.Next() {
		var b planner.Bucket
		if err := rows.Scan(&b.ID, &b.PlanID, &b.Name, &b.OrderHint); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// PutBucket upserts one bucket.
func (q queries) PutBucket(ctx context.Context, b *planner.Bucket) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO buckets (id, plan_id, name, order_hint) VALUES (?, ?, ?, ?)
		ON CONFLICT(plan_id, id) DO UPDATE SET name = excluded.name, order_hint = excluded.order_hint`,
		b.ID, b.PlanID, b.Name, b.OrderHint)
	if err != nil {
		return fmt.Errorf("save bucket %s/%s: %w", b.PlanID, b.ID, err)
	}
	return nil
}
