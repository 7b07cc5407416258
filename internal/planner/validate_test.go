package planner

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func validTask() *Task {
	return &Task{
		PlanID:          "plan-1",
		ID:              "task-001",
		Title:           "Book venue",
		BucketID:        "bucket-venue",
		Status:          StatusInProgress,
		PercentComplete: 40,
		StartDateTime:   ts("2026-02-01T00:00:00Z"),
		DueDateTime:     ts("2026-02-10T00:00:00Z"),
		Priority:        5,
		Assignees:       []string{"user-a", "user-b"},
	}
}

func TestValidateTask(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Task)
		prev    *Task
		wantErr bool
	}{
		{name: "valid in-progress task", mutate: func(*Task) {}},
		{name: "missing title", mutate: func(tk *Task) { tk.Title = "" }, wantErr: true},
		{name: "percent out of range", mutate: func(tk *Task) { tk.PercentComplete = 101 }, wantErr: true},
		{name: "priority out of range", mutate: func(tk *Task) { tk.Priority = 11 }, wantErr: true},
		{name: "not started with percent", mutate: func(tk *Task) {
			tk.Status = StatusNotStarted
			tk.PercentComplete = 10
		}, wantErr: true},
		{name: "completed without 100 percent", mutate: func(tk *Task) {
			tk.Status = StatusCompleted
			tk.PercentComplete = 90
			tk.CompletedDateTime = ts("2026-02-09T00:00:00Z")
		}, wantErr: true},
		{name: "completed without completion time", mutate: func(tk *Task) {
			tk.Status = StatusCompleted
			tk.PercentComplete = 100
		}, wantErr: true},
		{name: "completion time without completed status", mutate: func(tk *Task) {
			tk.CompletedDateTime = ts("2026-02-09T00:00:00Z")
		}, wantErr: true},
		{name: "completed task", mutate: func(tk *Task) {
			tk.Status = StatusCompleted
			tk.PercentComplete = 100
			tk.CompletedDateTime = ts("2026-02-09T00:00:00Z")
		}},
		{name: "start after due", mutate: func(tk *Task) {
			tk.StartDateTime = ts("2026-02-20T00:00:00Z")
		}, wantErr: true},
		{name: "duplicate assignee", mutate: func(tk *Task) {
			tk.Assignees = []string{"user-a", "user-a"}
		}, wantErr: true},
		{name: "percent regression", mutate: func(tk *Task) { tk.PercentComplete = 10 },
			prev: func() *Task { p := validTask(); p.PercentComplete = 60; return p }(), wantErr: true},
		{name: "percent regression allowed on cancel", mutate: func(tk *Task) {
			tk.Status = StatusCancelled
			tk.PercentComplete = 0
		}, prev: func() *Task { p := validTask(); p.PercentComplete = 60; return p }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask()
			tt.mutate(task)
			err := ValidateTask(task, tt.prev)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation), "expected validation error, got %v", err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateDependency(t *testing.T) {
	d := &Dependency{PlanID: "plan-1", TaskID: "t2", PredecessorID: "t1", Type: FinishToStart}
	require.NoError(t, ValidateDependency(d))

	d.Type = "XX"
	require.Error(t, ValidateDependency(d))

	d = &Dependency{PlanID: "plan-1", TaskID: "t1", PredecessorID: "t1", Type: FinishToStart}
	require.Error(t, ValidateDependency(d), "self loop must be rejected")
}

func TestTaskFingerprintStable(t *testing.T) {
	a := validTask()
	b := validTask()
	assert.Equal(t, TaskFingerprint(a), TaskFingerprint(b))

	b.DueDateTime = ts("2026-02-12T00:00:00Z")
	assert.NotEqual(t, TaskFingerprint(a), TaskFingerprint(b), "due date is material")

	c := validTask()
	c.LastModifiedAt = time.Now()
	assert.Equal(t, TaskFingerprint(a), TaskFingerprint(c), "lastModifiedAt is not material")
}

func TestSnapshotFingerprintOrderIndependent(t *testing.T) {
	t1, t2 := validTask(), validTask()
	t2.ID = "task-002"
	s1 := &Snapshot{Plan: Plan{ID: "plan-1"}, Tasks: []Task{*t1, *t2}}
	s2 := &Snapshot{Plan: Plan{ID: "plan-1"}, Tasks: []Task{*t2, *t1}}
	assert.Equal(t, SnapshotFingerprint(s1), SnapshotFingerprint(s2))
}

func TestOrderHintBetween(t *testing.T) {
	tests := []struct {
		before, after string
	}{
		{"", ""},
		{"", "P"},
		{"P", ""},
		{"A", "B"},
		{"AA", "AB"},
		{"A", `A""`},
		{"}}", ""},
	}
	for _, tt := range tests {
		got := OrderHintBetween(tt.before, tt.after)
		if tt.before != "" {
			assert.Greater(t, got, tt.before, "between(%q,%q)", tt.before, tt.after)
		}
		if tt.after != "" {
			assert.Less(t, got, tt.after, "between(%q,%q)", tt.before, tt.after)
		}
	}
}
