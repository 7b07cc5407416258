package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"congresstwin/internal/graph"
	"congresstwin/internal/planner"
	"congresstwin/internal/store"
)

// mutate is the single write path: load the snapshot, run the edit, then
// recompute and persist the plan fingerprint, all inside one transaction.
// The memo cache is dropped only after the commit lands.
func (s *Service) mutate(ctx context.Context, op, planID string, fn func(tx *store.Tx, snap *planner.Snapshot) error) error {
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		snap, err := tx.LoadSnapshot(ctx, planID)
		if err != nil {
			return err
		}
		if err := fn(tx, snap); err != nil {
			return err
		}
		after, err := tx.LoadSnapshot(ctx, planID)
		if err != nil {
			return err
		}
		return tx.SetPlanFingerprint(ctx, planID, planner.SnapshotFingerprint(after), true)
	})
	if err != nil {
		return s.classify(op, err)
	}
	s.cache.invalidate(planID)
	return nil
}

// normalizeCompletion keeps status, percent and completion timestamp in
// lockstep: Completed <=> percent 100 <=> completedDateTime set. Cancelled
// tasks keep their percent but never a completion timestamp.
func normalizeCompletion(t *planner.Task, now time.Time) {
	if t.Status == planner.StatusCancelled {
		t.CompletedDateTime = nil
		t.CompletedBy = ""
		return
	}
	if t.Status == planner.StatusCompleted || t.PercentComplete == 100 {
		t.Status = planner.StatusCompleted
		t.PercentComplete = 100
		if t.CompletedDateTime == nil {
			done := now
			t.CompletedDateTime = &done
		}
		return
	}
	t.CompletedDateTime = nil
	t.CompletedBy = ""
}

// CreateTask adds a task to a plan. An empty id is filled with a fresh uuid;
// the created task is returned.
func (s *Service) CreateTask(ctx context.Context, t *planner.Task, userID string) (*planner.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = planner.StatusNotStarted
	}
	now := s.now()
	t.CreatedDateTime = now
	t.LastModifiedAt = now
	t.CreatedBy = userID
	normalizeCompletion(t, now)
	if err := planner.ValidateTask(t, nil); err != nil {
		return nil, err
	}

	err := s.mutate(ctx, "create task", t.PlanID, func(tx *store.Tx, snap *planner.Snapshot) error {
		if snap.TaskByID(t.ID) != nil {
			return planner.Validationf("task %s already exists in plan %s", t.ID, t.PlanID)
		}
		return tx.PutTask(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// TaskPatch is a partial task update; nil fields are untouched.
type TaskPatch struct {
	Title             *string
	Description       *string
	BucketID          *string
	Status            *planner.Status
	PercentComplete   *int
	Priority          *int
	StartDateTime     *time.Time
	DueDateTime       *time.Time
	Assignees         *[]string
	AppliedCategories *[]string
	OrderHint         *string
}

func (p TaskPatch) apply(t *planner.Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.BucketID != nil {
		t.BucketID = *p.BucketID
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.PercentComplete != nil {
		t.PercentComplete = *p.PercentComplete
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.StartDateTime != nil {
		v := *p.StartDateTime
		t.StartDateTime = &v
	}
	if p.DueDateTime != nil {
		v := *p.DueDateTime
		t.DueDateTime = &v
	}
	if p.Assignees != nil {
		t.Assignees = append([]string(nil), (*p.Assignees)...)
	}
	if p.AppliedCategories != nil {
		t.AppliedCategories = append([]string(nil), (*p.AppliedCategories)...)
	}
	if p.OrderHint != nil {
		t.OrderHint = *p.OrderHint
	}
}

// UpdateTask applies a partial edit. The task must be unlocked or locked by
// userID. A status/percent edit is normalized to keep the completion
// invariant.
func (s *Service) UpdateTask(ctx context.Context, planID, taskID string, patch TaskPatch, userID string) (*planner.Task, error) {
	if err := s.locks.Check(planID, taskID, userID); err != nil {
		return nil, s.classify("update task", err)
	}

	var updated *planner.Task
	err := s.mutate(ctx, "update task", planID, func(tx *store.Tx, snap *planner.Snapshot) error {
		t := snap.TaskByID(taskID)
		if t == nil {
			return planner.ErrTaskNotFound
		}
		prev := *t
		// When only the percent moves to 100, the status follows; the patch
		// status wins when both are given.
		patch.apply(t)
		now := s.now()
		t.LastModifiedAt = now
		if patch.Status != nil && *patch.Status == planner.StatusCompleted {
			t.CompletedBy = userID
		}
		normalizeCompletion(t, now)
		if err := planner.ValidateTask(t, &prev); err != nil {
			return err
		}
		updated = t
		return tx.PutTask(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask removes a task, its subtasks, both sides of its dependency
// edges and any lock row.
func (s *Service) DeleteTask(ctx context.Context, planID, taskID, userID string) error {
	if err := s.locks.Check(planID, taskID, userID); err != nil {
		return s.classify("delete task", err)
	}
	err := s.mutate(ctx, "delete task", planID, func(tx *store.Tx, snap *planner.Snapshot) error {
		return tx.DeleteTask(ctx, planID, taskID)
	})
	if err != nil {
		return err
	}
	return s.classify("delete task", s.store.DeleteLock(planID, taskID))
}

// AddSubtask appends a checklist item to a task. Empty id gets a uuid.
func (s *Service) AddSubtask(ctx context.Context, sub *planner.Subtask, userID string) (*planner.Subtask, error) {
	if sub.Title == "" {
		return nil, planner.Validationf("subtask title must not be empty")
	}
	if err := s.locks.Check(sub.PlanID, sub.TaskID, userID); err != nil {
		return nil, s.classify("add subtask", err)
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.LastModifiedAt = s.now()

	err := s.mutate(ctx, "add subtask", sub.PlanID, func(tx *store.Tx, snap *planner.Snapshot) error {
		if snap.TaskByID(sub.TaskID) == nil {
			return planner.ErrTaskNotFound
		}
		if sub.OrderHint == "" {
			last := ""
			for _, existing := range snap.Subtasks[sub.TaskID] {
				if existing.OrderHint > last {
					last = existing.OrderHint
				}
			}
			sub.OrderHint = planner.OrderHintBetween(last, "")
		}
		return tx.PutSubtask(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// SubtaskPatch is a partial subtask update.
type SubtaskPatch struct {
	Title     *string
	Checked   *bool
	OrderHint *string
}

// UpdateSubtask applies a partial edit to a checklist item.
func (s *Service) UpdateSubtask(ctx context.Context, planID, taskID, subtaskID string, patch SubtaskPatch, userID string) (*planner.Subtask, error) {
	if err := s.locks.Check(planID, taskID, userID); err != nil {
		return nil, s.classify("update subtask", err)
	}
	var updated *planner.Subtask
	err := s.mutate(ctx, "update subtask", planID, func(tx *store.Tx, snap *planner.Snapshot) error {
		var sub *planner.Subtask
		for i := range snap.Subtasks[taskID] {
			if snap.Subtasks[taskID][i].ID == subtaskID {
				sub = &snap.Subtasks[taskID][i]
				break
			}
		}
		if sub == nil {
			return planner.ErrSubtaskNotFound
		}
		if patch.Title != nil {
			if *patch.Title == "" {
				return planner.Validationf("subtask title must not be empty")
			}
			sub.Title = *patch.Title
		}
		if patch.Checked != nil {
			sub.Checked = *patch.Checked
		}
		if patch.OrderHint != nil {
			sub.OrderHint = *patch.OrderHint
		}
		sub.LastModifiedAt = s.now()
		updated = sub
		return tx.PutSubtask(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSubtask removes one checklist item.
func (s *Service) DeleteSubtask(ctx context.Context, planID, taskID, subtaskID, userID string) error {
	if err := s.locks.Check(planID, taskID, userID); err != nil {
		return s.classify("delete subtask", err)
	}
	return s.mutate(ctx, "delete subtask", planID, func(tx *store.Tx, snap *planner.Snapshot) error {
		return tx.DeleteSubtask(ctx, planID, taskID, subtaskID)
	})
}

// AddDependency inserts an edge after a cycle pre-check: the mutation is
// refused, and the plan left untouched, if the new edge would close a
// directed cycle.
func (s *Service) AddDependency(ctx context.Context, d *planner.Dependency, userID string) error {
	if d.Type == "" {
		d.Type = planner.FinishToStart
	}
	if d.TaskID != "" && d.TaskID == d.PredecessorID {
		return &planner.CycleError{PlanID: d.PlanID, Nodes: []string{d.TaskID}}
	}
	if err := planner.ValidateDependency(d); err != nil {
		return err
	}
	if err := s.locks.Check(d.PlanID, d.TaskID, userID); err != nil {
		return s.classify("add dependency", err)
	}
	return s.mutate(ctx, "add dependency", d.PlanID, func(tx *store.Tx, snap *planner.Snapshot) error {
		if snap.TaskByID(d.TaskID) == nil || snap.TaskByID(d.PredecessorID) == nil {
			return planner.ErrTaskNotFound
		}
		// Repair-mode build: a pre-existing bad edge must not block this
		// check, only a cycle the new edge itself would close.
		g, _ := graph.BuildRepair(snap)
		if g.WouldCycle(d.PredecessorID, d.TaskID) {
			nodes := []string{d.PredecessorID, d.TaskID}
			sort.Strings(nodes)
			return &planner.CycleError{PlanID: d.PlanID, Nodes: nodes}
		}
		return tx.AddDependency(ctx, d)
	})
}

// RemoveDependency deletes one edge.
func (s *Service) RemoveDependency(ctx context.Context, planID, taskID, predecessorID, userID string) error {
	if err := s.locks.Check(planID, taskID, userID); err != nil {
		return s.classify("remove dependency", err)
	}
	return s.mutate(ctx, "remove dependency", planID, func(tx *store.Tx, snap *planner.Snapshot) error {
		return tx.RemoveDependency(ctx, planID, taskID, predecessorID)
	})
}
