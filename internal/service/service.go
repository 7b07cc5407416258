// Package service is the request-level facade over the engine: it loads plan
// snapshots from the repository, fans out to the analytical packages, and
// runs every mutation under a single store transaction with lock checks and
// fingerprint maintenance. The transport (HTTP, CLI) talks only to this
// package.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"congresstwin/internal/config"
	"congresstwin/internal/events"
	"congresstwin/internal/history"
	"congresstwin/internal/locks"
	"congresstwin/internal/logging"
	"congresstwin/internal/planner"
	"congresstwin/internal/store"
)

// Service wires the repository, the lock manager and the event rule registry
// behind the public operation set.
type Service struct {
	store *store.Store
	locks *locks.Manager
	rules *events.Registry
	cfg   *config.Config
	cache *memoCache
	now   func() time.Time
}

// New builds a service over an open store. now may be nil (wall clock);
// cfg may be nil (defaults).
func New(st *store.Store, cfg *config.Config, now func() time.Time) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store: st,
		locks: locks.NewManager(st, now),
		rules: events.NewRegistry(),
		cfg:   cfg,
		cache: newMemoCache(),
		now:   now,
	}
}

// Locks exposes the lock manager, mainly for tests that need to pre-seat
// contention.
func (s *Service) Locks() *locks.Manager { return s.locks }

// ListPlans returns all non-template plans.
func (s *Service) ListPlans(ctx context.Context) ([]planner.Plan, error) {
	plans, err := s.store.ListPlans(ctx)
	return plans, s.classify("list plans", err)
}

// GetPlan returns one plan header.
func (s *Service) GetPlan(ctx context.Context, planID string) (*planner.Plan, error) {
	p, err := s.store.GetPlan(ctx, planID)
	return p, s.classify("get plan", err)
}

// GetBuckets returns a plan's buckets in order-hint order.
func (s *Service) GetBuckets(ctx context.Context, planID string) ([]planner.Bucket, error) {
	if _, err := s.store.GetPlan(ctx, planID); err != nil {
		return nil, s.classify("get buckets", err)
	}
	bs, err := s.store.Buckets(ctx, planID)
	return bs, s.classify("get buckets", err)
}

// GetTasks returns a plan's tasks in order-hint order.
func (s *Service) GetTasks(ctx context.Context, planID string) ([]planner.Task, error) {
	if _, err := s.store.GetPlan(ctx, planID); err != nil {
		return nil, s.classify("get tasks", err)
	}
	ts, err := s.store.Tasks(ctx, planID)
	return ts, s.classify("get tasks", err)
}

// GetTask returns one task.
func (s *Service) GetTask(ctx context.Context, planID, taskID string) (*planner.Task, error) {
	t, err := s.store.GetTask(ctx, planID, taskID)
	return t, s.classify("get task", err)
}

// snapshot loads the consistent read unit every analytical call operates on.
func (s *Service) snapshot(ctx context.Context, planID string) (*planner.Snapshot, error) {
	snap, err := s.store.LoadSnapshot(ctx, planID)
	if err != nil {
		return nil, s.classify("load snapshot", err)
	}
	return snap, nil
}

// calibration fits the historical analyzer over the configured past plans.
// Returns the raw samples too; intelligence needs them for assignee rates.
func (s *Service) calibration(ctx context.Context) (*history.Calibration, []planner.HistoricalSample, error) {
	samples, err := s.store.Samples(ctx, s.cfg.History.PlanIDs)
	if err != nil {
		return nil, nil, s.classify("load samples", err)
	}
	cal := history.Calibrate(samples, history.Options{MinSamples: s.cfg.History.MinSamples})
	return cal, samples, nil
}

// classify funnels repository and engine errors into the surface taxonomy.
// Already-classified kinds pass through; anything else is logged with a
// correlation id and surfaced as an opaque internal error.
func (s *Service) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		planner.ErrValidation, planner.ErrPlanNotFound, planner.ErrTaskNotFound,
		planner.ErrSubtaskNotFound, planner.ErrDependencyNotFound,
		planner.ErrEventNotFound, planner.ErrActionNotFound,
		planner.ErrDuplicateDependency, planner.ErrActionAlreadyDecided,
		planner.ErrNotHolder, planner.ErrInsufficientCalibration,
		planner.ErrCancelled,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	if planner.IsCycle(err) || planner.IsLockedByOther(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", planner.ErrCancelled, op)
	}
	correlation := uuid.NewString()
	logging.Get(logging.CategoryService).Errorw("internal error",
		"op", op, "correlation", correlation, "error", err)
	return fmt.Errorf("%w (correlation %s)", planner.ErrInternal, correlation)
}
