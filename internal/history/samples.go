package history

import (
	"math"
	"sort"
	"time"

	"congresstwin/internal/planner"
)

// SamplesFromTasks converts the terminal tasks of a historical plan snapshot
// into calibration samples. Planned duration is due minus start; actual is
// completion minus start. Tasks without a usable pair of instants are
// skipped. blockCounts may be nil when block history is unavailable.
func SamplesFromTasks(snap *planner.Snapshot, blockCounts map[string]int) []planner.HistoricalSample {
	var out []planner.HistoricalSample
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		if !t.Status.Terminal() || t.StartDateTime == nil {
			continue
		}
		s := planner.HistoricalSample{
			PlanID:        t.PlanID,
			TaskID:        t.ID,
			Bucket:        snap.BucketName(t.BucketID),
			Assignees:     append([]string(nil), t.Assignees...),
			TerminalState: t.Status,
			BlockCount:    blockCounts[t.ID],
		}
		if t.DueDateTime != nil {
			s.PlannedDays = days(t.StartDateTime, t.DueDateTime)
		}
		switch {
		case t.CompletedDateTime != nil:
			s.ActualDays = days(t.StartDateTime, t.CompletedDateTime)
		case t.DueDateTime != nil:
			// Cancelled tasks carry their planned span as the actual.
			s.ActualDays = s.PlannedDays
		default:
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

func days(from, to *time.Time) float64 {
	d := to.Sub(*from).Hours() / 24
	return math.Max(0, d)
}
