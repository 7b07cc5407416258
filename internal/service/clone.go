package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"congresstwin/internal/planner"
	"congresstwin/internal/store"
)

// ListTemplates returns the plans flagged as templates.
func (s *Service) ListTemplates(ctx context.Context) ([]planner.Plan, error) {
	plans, err := s.store.ListTemplates(ctx)
	return plans, s.classify("list templates", err)
}

// CloneOptions tunes CloneTemplate.
type CloneOptions struct {
	// PreserveIDs keeps the source's task and subtask ids instead of minting
	// fresh uuids. Ids are scoped per plan, so the copies cannot collide.
	PreserveIDs bool
}

// CloneTemplate copies a source plan into a new plan anchored on eventDate:
// every date shifts by the single constant delta that lands the latest due
// date on the event, statuses and progress reset, and tasks/subtasks get
// fresh ids (or the source's, see CloneOptions) while buckets, titles,
// assignees, order hints and the dependency shape are preserved.
func (s *Service) CloneTemplate(ctx context.Context, sourceID, targetID string, eventDate time.Time, opts CloneOptions) (*planner.Plan, error) {
	if targetID == "" {
		return nil, planner.Validationf("target plan id must not be empty")
	}
	if targetID == sourceID {
		return nil, planner.Validationf("target plan id equals source")
	}

	var created *planner.Plan
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetPlan(ctx, targetID); err == nil {
			return planner.Validationf("plan %s already exists", targetID)
		} else if !errors.Is(err, planner.ErrPlanNotFound) {
			return err
		}
		snap, err := tx.LoadSnapshot(ctx, sourceID)
		if err != nil {
			return err
		}

		// Uniform shift: the latest due date of the source lands on the
		// event date. A dateless source clones with zero shift.
		var latest time.Time
		for _, t := range snap.Tasks {
			if t.DueDateTime != nil && t.DueDateTime.After(latest) {
				latest = *t.DueDateTime
			}
		}
		var delta time.Duration
		if !latest.IsZero() {
			delta = eventDate.Sub(latest)
		}
		shift := func(ts *time.Time) *time.Time {
			if ts == nil {
				return nil
			}
			v := ts.Add(delta)
			return &v
		}

		now := s.now()
		event := eventDate
		plan := &planner.Plan{
			ID: targetID, Name: snap.Plan.Name,
			EventDate: &event, SourcePlanID: sourceID, CreatedAt: now,
		}
		if err := tx.CreatePlan(ctx, plan); err != nil {
			return err
		}
		for i := range snap.Buckets {
			b := snap.Buckets[i]
			b.PlanID = targetID
			if err := tx.PutBucket(ctx, &b); err != nil {
				return err
			}
		}

		ids := make(map[string]string, len(snap.Tasks))
		for _, t := range snap.Tasks {
			if opts.PreserveIDs {
				ids[t.ID] = t.ID
			} else {
				ids[t.ID] = uuid.NewString()
			}
		}
		for _, t := range snap.Tasks {
			c := t
			c.PlanID = targetID
			c.ID = ids[t.ID]
			c.Status = planner.StatusNotStarted
			c.PercentComplete = 0
			c.CompletedDateTime = nil
			c.CompletedBy = ""
			c.StartDateTime = shift(t.StartDateTime)
			c.DueDateTime = shift(t.DueDateTime)
			c.CreatedDateTime = now
			c.LastModifiedAt = now
			if err := tx.PutTask(ctx, &c); err != nil {
				return err
			}
			for _, sub := range snap.Subtasks[t.ID] {
				cs := sub
				cs.PlanID = targetID
				cs.TaskID = c.ID
				if !opts.PreserveIDs {
					cs.ID = uuid.NewString()
				}
				cs.Checked = false
				cs.LastModifiedAt = now
				if err := tx.PutSubtask(ctx, &cs); err != nil {
					return err
				}
			}
		}
		for _, d := range snap.Dependencies {
			cd := planner.Dependency{
				PlanID: targetID, TaskID: ids[d.TaskID],
				PredecessorID: ids[d.PredecessorID], Type: d.Type,
			}
			if cd.TaskID == "" || cd.PredecessorID == "" {
				continue
			}
			if err := tx.AddDependency(ctx, &cd); err != nil {
				return err
			}
		}

		after, err := tx.LoadSnapshot(ctx, targetID)
		if err != nil {
			return err
		}
		if err := tx.SetPlanFingerprint(ctx, targetID, planner.SnapshotFingerprint(after), true); err != nil {
			return err
		}
		created = plan
		return nil
	})
	if err != nil {
		return nil, s.classify("clone template", err)
	}
	return created, nil
}

// SeedDemoPlan installs the demo congress plan and the bundled historical
// sample sets. Idempotent.
func (s *Service) SeedDemoPlan(ctx context.Context) error {
	return s.classify("seed", s.store.Seed(ctx, s.now()))
}
