package service

import (
	"context"

	"congresstwin/internal/history"
	"congresstwin/internal/planner"
	"congresstwin/internal/store"
)

// ArchivePlan converts a finished plan's terminal tasks into calibration
// samples and persists them, so future plans calibrate against its outcomes.
// Re-archiving upserts the same sample rows. The stored samples are returned.
func (s *Service) ArchivePlan(ctx context.Context, planID string) ([]planner.HistoricalSample, error) {
	var samples []planner.HistoricalSample
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		snap, err := tx.LoadSnapshot(ctx, planID)
		if err != nil {
			return err
		}
		samples = history.SamplesFromTasks(snap, nil)
		if len(samples) == 0 {
			return planner.Validationf("plan %s has no finished dated tasks to archive", planID)
		}
		return tx.PutSamples(ctx, samples)
	})
	if err != nil {
		return nil, s.classify("archive plan", err)
	}
	return samples, nil
}
