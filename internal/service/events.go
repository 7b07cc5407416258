package service

import (
	"context"
	"fmt"
	"time"

	"congresstwin/internal/events"
	"congresstwin/internal/planner"
	"congresstwin/internal/store"
)

// IngestEvent persists an external event, runs the rule registry over the
// current snapshot and stores the resulting proposed actions, all in one
// transaction. The event (with its id filled) and its proposals are returned.
func (s *Service) IngestEvent(ctx context.Context, ev *planner.ExternalEvent) (*planner.ExternalEvent, []planner.ProposedAction, error) {
	if ev.EventType == "" {
		return nil, nil, planner.Validationf("event type must not be empty")
	}
	if ev.Severity == "" {
		ev.Severity = planner.SeverityMedium
	}
	if err := planner.ValidateSeverity(ev.Severity); err != nil {
		return nil, nil, err
	}
	if ev.Title == "" {
		ev.Title = events.DefaultTitle(ev.EventType)
	}
	ev.CreatedAt = s.now()

	var proposals []planner.ProposedAction
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		snap, err := tx.LoadSnapshot(ctx, ev.PlanID)
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, ev); err != nil {
			return err
		}
		for _, p := range s.rules.Propose(ev, snap) {
			p.ExternalEventID = ev.ID
			p.CreatedAt = ev.CreatedAt
			if err := tx.InsertAction(ctx, &p); err != nil {
				return err
			}
			proposals = append(proposals, p)
		}
		return nil
	})
	if err != nil {
		return nil, nil, s.classify("ingest event", err)
	}
	return ev, proposals, nil
}

// ListEvents returns a plan's events, newest first.
func (s *Service) ListEvents(ctx context.Context, planID string) ([]planner.ExternalEvent, error) {
	evs, err := s.store.ListEvents(ctx, planID)
	return evs, s.classify("list events", err)
}

// DeleteEvent removes an event and its proposed actions.
func (s *Service) DeleteEvent(ctx context.Context, planID string, eventID int64) error {
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.DeleteEvent(ctx, planID, eventID)
	})
	return s.classify("delete event", err)
}

// ListProposedActions returns a plan's proposed actions, optionally filtered
// by status.
func (s *Service) ListProposedActions(ctx context.Context, planID string, status planner.ActionStatus) ([]planner.ProposedAction, error) {
	actions, err := s.store.ListActions(ctx, planID, status)
	return actions, s.classify("list actions", err)
}

// ApproveAction applies an action's implied task mutation and flips its
// status to approved in the same transaction: either both land or neither
// does. Approving an approved action is a no-op; approving a rejected one
// fails.
func (s *Service) ApproveAction(ctx context.Context, planID string, actionID int64, userID string) (*planner.ProposedAction, error) {
	var decided *planner.ProposedAction
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		action, err := tx.GetAction(ctx, planID, actionID)
		if err != nil {
			return err
		}
		switch action.Status {
		case planner.ActionApproved:
			decided = action
			return nil
		case planner.ActionRejected:
			return fmt.Errorf("%w: action %d is rejected", planner.ErrActionAlreadyDecided, actionID)
		}

		task, err := tx.GetTask(ctx, planID, action.TaskID)
		if err != nil {
			return err
		}
		if err := events.Apply(action, task); err != nil {
			return err
		}
		now := s.now()
		task.LastModifiedAt = now
		if err := tx.PutTask(ctx, task); err != nil {
			return err
		}

		action.Status = planner.ActionApproved
		action.DecidedAt = &now
		action.DecidedBy = userID
		if err := tx.UpdateActionStatus(ctx, action); err != nil {
			return err
		}

		snap, err := tx.LoadSnapshot(ctx, planID)
		if err != nil {
			return err
		}
		if err := tx.SetPlanFingerprint(ctx, planID, planner.SnapshotFingerprint(snap), true); err != nil {
			return err
		}
		decided = action
		return nil
	})
	if err != nil {
		return nil, s.classify("approve action", err)
	}
	s.cache.invalidate(planID)
	return decided, nil
}

// RejectAction marks a pending action rejected. Rejecting a rejected action
// is a no-op; rejecting an approved one fails.
func (s *Service) RejectAction(ctx context.Context, planID string, actionID int64, userID string) (*planner.ProposedAction, error) {
	var decided *planner.ProposedAction
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		action, err := tx.GetAction(ctx, planID, actionID)
		if err != nil {
			return err
		}
		switch action.Status {
		case planner.ActionRejected:
			decided = action
			return nil
		case planner.ActionApproved:
			return fmt.Errorf("%w: action %d is approved", planner.ErrActionAlreadyDecided, actionID)
		}
		now := s.now()
		action.Status = planner.ActionRejected
		action.DecidedAt = &now
		action.DecidedBy = userID
		if err := tx.UpdateActionStatus(ctx, action); err != nil {
			return err
		}
		decided = action
		return nil
	})
	if err != nil {
		return nil, s.classify("reject action", err)
	}
	return decided, nil
}

// DeleteAction removes a proposed action regardless of its status.
func (s *Service) DeleteAction(ctx context.Context, planID string, actionID int64) error {
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.DeleteAction(ctx, planID, actionID)
	})
	return s.classify("delete action", err)
}

// AcquireLock takes or renews the advisory edit lock on a task. ttl <= 0
// falls back to the configured default.
func (s *Service) AcquireLock(ctx context.Context, planID, taskID, userID string, ttl time.Duration) (*planner.TaskLock, error) {
	if _, err := s.store.GetTask(ctx, planID, taskID); err != nil {
		return nil, s.classify("acquire lock", err)
	}
	if ttl <= 0 {
		ttl = s.cfg.LockTTL()
	}
	lock, err := s.locks.Acquire(planID, taskID, userID, ttl)
	return lock, s.classify("acquire lock", err)
}

// ReleaseLock drops the caller's lock.
func (s *Service) ReleaseLock(ctx context.Context, planID, taskID, userID string) error {
	return s.classify("release lock", s.locks.Release(planID, taskID, userID))
}

// GetLock returns the live lock on a task, or nil.
func (s *Service) GetLock(ctx context.Context, planID, taskID string) (*planner.TaskLock, error) {
	lock, err := s.locks.Get(planID, taskID)
	return lock, s.classify("get lock", err)
}
