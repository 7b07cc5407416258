package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"congresstwin/internal/planner"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
	now   time.Time
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	st, err := Open(filepath.Join(s.T().TempDir(), "planner.db"))
	s.Require().NoError(err)
	s.store = st
}

func (s *StoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) seedPlan(planID string) {
	err := s.store.WithTx(s.ctx, func(tx *Tx) error {
		if err := tx.CreatePlan(s.ctx, &planner.Plan{ID: planID, Name: "Plan " + planID, CreatedAt: s.now}); err != nil {
			return err
		}
		if err := tx.PutBucket(s.ctx, &planner.Bucket{ID: "b1", PlanID: planID, Name: "Venue"}); err != nil {
			return err
		}
		for _, id := range []string{"T1", "T2"} {
			due := s.now.AddDate(0, 0, 7)
			task := &planner.Task{
				PlanID: planID, ID: id, Title: "Task " + id, BucketID: "b1",
				Status: planner.StatusNotStarted, DueDateTime: &due,
				Assignees:       []string{"maria"},
				CreatedDateTime: s.now, LastModifiedAt: s.now,
			}
			if err := tx.PutTask(s.ctx, task); err != nil {
				return err
			}
		}
		return tx.AddDependency(s.ctx, &planner.Dependency{
			PlanID: planID, TaskID: "T2", PredecessorID: "T1", Type: planner.FinishToStart,
		})
	})
	s.Require().NoError(err)
}

func (s *StoreSuite) TestSnapshotRoundTrip() {
	s.seedPlan("p1")

	snap, err := s.store.LoadSnapshot(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal("p1", snap.Plan.ID)
	s.Len(snap.Buckets, 1)
	s.Len(snap.Tasks, 2)
	s.Require().Len(snap.Dependencies, 1)
	s.Equal("T1", snap.Dependencies[0].PredecessorID)
	s.Equal([]string{"maria"}, snap.Tasks[0].Assignees)
	s.NotNil(snap.Tasks[0].DueDateTime)
}

func (s *StoreSuite) TestPlanNotFound() {
	_, err := s.store.GetPlan(s.ctx, "missing")
	s.ErrorIs(err, planner.ErrPlanNotFound)

	_, err = s.store.GetTask(s.ctx, "missing", "T1")
	s.ErrorIs(err, planner.ErrTaskNotFound)
}

func (s *StoreSuite) TestTransactionRollsBackOnError() {
	s.seedPlan("p1")
	err := s.store.WithTx(s.ctx, func(tx *Tx) error {
		if err := tx.DeleteTask(s.ctx, "p1", "T1"); err != nil {
			return err
		}
		return planner.Validationf("forced failure")
	})
	s.ErrorIs(err, planner.ErrValidation)

	// T1 survived the rollback.
	_, err = s.store.GetTask(s.ctx, "p1", "T1")
	s.NoError(err)
}

func (s *StoreSuite) TestDeleteTaskCascades() {
	s.seedPlan("p1")
	err := s.store.WithTx(s.ctx, func(tx *Tx) error {
		return tx.PutSubtask(s.ctx, &planner.Subtask{
			PlanID: "p1", TaskID: "T1", ID: "s1", Title: "Check", LastModifiedAt: s.now,
		})
	})
	s.Require().NoError(err)

	err = s.store.WithTx(s.ctx, func(tx *Tx) error {
		return tx.DeleteTask(s.ctx, "p1", "T1")
	})
	s.Require().NoError(err)

	snap, err := s.store.LoadSnapshot(s.ctx, "p1")
	s.Require().NoError(err)
	s.Len(snap.Tasks, 1)
	s.Empty(snap.Dependencies, "edges referencing the deleted predecessor are gone")
	s.Empty(snap.Subtasks)
}

func (s *StoreSuite) TestDuplicateDependency() {
	s.seedPlan("p1")
	err := s.store.WithTx(s.ctx, func(tx *Tx) error {
		return tx.AddDependency(s.ctx, &planner.Dependency{
			PlanID: "p1", TaskID: "T2", PredecessorID: "T1", Type: planner.FinishToStart,
		})
	})
	s.ErrorIs(err, planner.ErrDuplicateDependency)
}

func (s *StoreSuite) TestLockRoundTrip() {
	lock := &planner.TaskLock{
		PlanID: "p1", TaskID: "T1", UserID: "alice",
		AcquiredAt: s.now, TTL: 15 * time.Minute,
	}
	s.Require().NoError(s.store.PutLock(lock))

	got, err := s.store.GetLock("p1", "T1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal("alice", got.UserID)
	s.Equal(15*time.Minute, got.TTL)
	s.True(got.AcquiredAt.Equal(s.now))

	s.Require().NoError(s.store.DeleteLock("p1", "T1"))
	got, err = s.store.GetLock("p1", "T1")
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *StoreSuite) TestEventsAndActions() {
	ev := &planner.ExternalEvent{
		PlanID: "p1", EventType: "flight_cancellation", Title: "Strike",
		Severity: planner.SeverityHigh, AffectedTaskIDs: []string{"T1"},
		Payload: map[string]any{"shift_days": 2.0}, CreatedAt: s.now,
	}
	err := s.store.WithTx(s.ctx, func(tx *Tx) error {
		if err := tx.InsertEvent(s.ctx, ev); err != nil {
			return err
		}
		return tx.InsertAction(s.ctx, &planner.ProposedAction{
			PlanID: "p1", ExternalEventID: ev.ID, TaskID: "T1",
			ActionType: "shift_due_date", Title: "Shift T1",
			Payload: map[string]any{"shift_days": 2.0},
			Status:  planner.ActionPending, CreatedAt: s.now,
		})
	})
	s.Require().NoError(err)
	s.Positive(ev.ID)

	loaded, err := s.store.GetEvent(s.ctx, "p1", ev.ID)
	s.Require().NoError(err)
	s.Equal([]string{"T1"}, loaded.AffectedTaskIDs)
	s.Equal(2.0, loaded.Payload["shift_days"])

	pending, err := s.store.ListActions(s.ctx, "p1", planner.ActionPending)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)

	// Decide and re-filter.
	a := pending[0]
	a.Status = planner.ActionApproved
	decided := s.now.Add(time.Hour)
	a.DecidedAt, a.DecidedBy = &decided, "carol"
	err = s.store.WithTx(s.ctx, func(tx *Tx) error {
		return tx.UpdateActionStatus(s.ctx, &a)
	})
	s.Require().NoError(err)

	pending, err = s.store.ListActions(s.ctx, "p1", planner.ActionPending)
	s.Require().NoError(err)
	s.Empty(pending)

	// Deleting the event cascades to its actions.
	err = s.store.WithTx(s.ctx, func(tx *Tx) error {
		return tx.DeleteEvent(s.ctx, "p1", ev.ID)
	})
	s.Require().NoError(err)
	all, err := s.store.ListActions(s.ctx, "p1", "")
	s.Require().NoError(err)
	s.Empty(all)

	_, err = s.store.GetEvent(s.ctx, "p1", ev.ID)
	s.ErrorIs(err, planner.ErrEventNotFound)
}

func (s *StoreSuite) TestSamples() {
	in := []planner.HistoricalSample{
		{PlanID: "congress-2024", TaskID: "h1", Bucket: "Venue", PlannedDays: 7,
			ActualDays: 9, Assignees: []string{"maria"}, TerminalState: planner.StatusCompleted},
		{PlanID: "congress-2023", TaskID: "h1", Bucket: "Venue", PlannedDays: 7,
			ActualDays: 8, TerminalState: planner.StatusCompleted, BlockCount: 1},
	}
	err := s.store.WithTx(s.ctx, func(tx *Tx) error {
		return tx.PutSamples(s.ctx, in)
	})
	s.Require().NoError(err)

	got, err := s.store.Samples(s.ctx, []string{"congress-2023", "congress-2024", "unknown"})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("congress-2023", got[0].PlanID)
	s.Equal(1, got[0].BlockCount)
	s.Equal([]string{"maria"}, got[1].Assignees)
}

func (s *StoreSuite) TestFingerprintAndSync() {
	s.seedPlan("p1")

	fp, dirty, err := s.store.PlanFingerprint(s.ctx, "p1")
	s.Require().NoError(err)
	s.Empty(fp)
	s.False(dirty)

	err = s.store.WithTx(s.ctx, func(tx *Tx) error {
		return tx.SetPlanFingerprint(s.ctx, "p1", "abc123", true)
	})
	s.Require().NoError(err)

	fp, dirty, err = s.store.PlanFingerprint(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal("abc123", fp)
	s.True(dirty)

	// Recording a sync clears the dirty flag and round-trips markers.
	last := s.now
	prev := s.now.Add(-24 * time.Hour)
	err = s.store.WithTx(s.ctx, func(tx *Tx) error {
		return tx.PutSyncState(s.ctx, planner.SyncState{PlanID: "p1", LastSyncAt: &last, PreviousSyncAt: &prev})
	})
	s.Require().NoError(err)

	_, dirty, err = s.store.PlanFingerprint(s.ctx, "p1")
	s.Require().NoError(err)
	s.False(dirty)

	st, err := s.store.SyncState(s.ctx, "p1")
	s.Require().NoError(err)
	s.Require().NotNil(st.PreviousSyncAt)
	s.True(st.PreviousSyncAt.Equal(prev))
}

func (s *StoreSuite) TestSeedIdempotent() {
	s.Require().NoError(s.store.Seed(s.ctx, s.now))
	s.Require().NoError(s.store.Seed(s.ctx, s.now))

	snap, err := s.store.LoadSnapshot(s.ctx, DemoPlanID)
	s.Require().NoError(err)
	s.Len(snap.Buckets, 5)
	s.Len(snap.Tasks, len(seedTasks))
	s.Len(snap.Dependencies, len(seedDeps))

	samples, err := s.store.Samples(s.ctx, HistoricalPlanIDs)
	s.Require().NoError(err)
	s.Len(samples, 36)
}
