package store

import (
	"context"
	"fmt"
	"strings"

	"congresstwin/internal/planner"
)

// PutSamples upserts historical samples; calibration re-runs are idempotent.
func (q queries) PutSamples(ctx context.Context, samples []planner.HistoricalSample) error {
	for _, s := range samples {
		_, err := q.q.ExecContext(ctx, `
			INSERT INTO historical_samples (plan_id, task_id, bucket, planned_days,
				actual_days, assignees, terminal_state, block_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(plan_id, task_id) DO UPDATE SET
				bucket = excluded.bucket,
				planned_days = excluded.planned_days,
				actual_days = excluded.actual_days,
				assignees = excluded.assignees,
				terminal_state = excluded.terminal_state,
				block_count = excluded.block_count`,
			s.PlanID, s.TaskID, s.Bucket, s.PlannedDays, s.ActualDays,
			encodeStrings(s.Assignees), string(s.TerminalState), s.BlockCount)
		if err != nil {
			return fmt.Errorf("save sample %s/%s: %w", s.PlanID, s.TaskID, err)
		}
	}
	return nil
}

// Samples loads the historical samples of the given plans, ordered by plan
// then task id. Unknown plan ids simply contribute nothing.
func (q queries) Samples(ctx context.Context, planIDs []string) ([]planner.HistoricalSample, error) {
	if len(planIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(planIDs)), ",")
	args := make([]any, len(planIDs))
	for i, id := range planIDs {
		args[i] = id
	}

	rows, err := q.q.QueryContext(ctx, `
		SELECT plan_id, task_id, bucket, planned_days, actual_days, assignees,
			terminal_state, block_count
		FROM historical_samples WHERE plan_id IN (`+placeholders+`)
		ORDER BY plan_id, task_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var out []planner.HistoricalSample
	for rows.Next() {
		var (
			s         planner.HistoricalSample
			assignees string
			terminal  string
		)
		if err := rows.Scan(&s.PlanID, &s.TaskID, &s.Bucket, &s.PlannedDays,
			&s.ActualDays, &assignees, &terminal, &s.BlockCount); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.Assignees = decodeStrings(assignees)
		s.TerminalState = planner.Status(terminal)
		out = append(out, s)
	}
	return out, rows.Err()
}
