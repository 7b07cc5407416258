package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"congresstwin/internal/planner"
)

// The lock methods satisfy locks.Store. The lock manager serializes
// transitions, so these are plain row operations; background contexts keep
// the interface free of ctx plumbing the manager does not need.

// GetLock returns the lock row for (planID, taskID), or nil.
func (s *Store) GetLock(planID, taskID string) (*planner.TaskLock, error) {
	var (
		l          planner.TaskLock
		acquiredAt string
		ttlSeconds int64
	)
	err := s.db.QueryRowContext(context.Background(), `
		SELECT plan_id, task_id, user_id, acquired_at, ttl_seconds
		FROM task_locks WHERE plan_id = ? AND task_id = ?`, planID, taskID).
		Scan(&l.PlanID, &l.TaskID, &l.UserID, &acquiredAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load lock %s/%s: %w", planID, taskID, err)
	}
	if l.AcquiredAt, err = decodeTime(acquiredAt); err != nil {
		return nil, err
	}
	l.TTL = time.Duration(ttlSeconds) * time.Second
	return &l, nil
}

// PutLock upserts the lock row, keeping at most one lock per task.
func (s *Store) PutLock(lock *planner.TaskLock) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO task_locks (plan_id, task_id, user_id, acquired_at, ttl_seconds)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, task_id) DO UPDATE SET
			user_id = excluded.user_id,
			acquired_at = excluded.acquired_at,
			ttl_seconds = excluded.ttl_seconds`,
		lock.PlanID, lock.TaskID, lock.UserID, encodeTime(lock.AcquiredAt), int64(lock.TTL/time.Second))
	if err != nil {
		return fmt.Errorf("save lock %s/%s: %w", lock.PlanID, lock.TaskID, err)
	}
	return nil
}

// DeleteLock removes the lock row; deleting a missing row is not an error.
func (s *Store) DeleteLock(planID, taskID string) error {
	_, err := s.db.ExecContext(context.Background(),
		`DELETE FROM task_locks WHERE plan_id = ? AND task_id = ?`, planID, taskID)
	if err != nil {
		return fmt.Errorf("delete lock %s/%s: %w", planID, taskID, err)
	}
	return nil
}
