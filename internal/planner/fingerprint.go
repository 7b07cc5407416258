package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Fingerprints are stable sha256 hashes over the materially-tracked fields of
// a task or plan. They drive the dirty-since-sync flag and invalidate the
// analytics memo cache: any mutation that changes scheduling-relevant content
// changes the fingerprint.

func hashTime(w io.Writer, label string, t *time.Time) {
	if t == nil {
		fmt.Fprintf(w, "%s=\n", label)
		return
	}
	fmt.Fprintf(w, "%s=%s\n", label, t.UTC().Format(time.RFC3339Nano))
}

// TaskFingerprint hashes the fields whose change is material to scheduling
// and sync. LastModifiedAt and audit fields are deliberately excluded so a
// touch without content change does not dirty the plan.
func TaskFingerprint(t *Task) string {
	h := sha256.New()
	fmt.Fprintf(h, "id=%s\ntitle=%s\nbucket=%s\nstatus=%s\npercent=%d\npriority=%d\n",
		t.ID, t.Title, t.BucketID, t.Status, t.PercentComplete, t.Priority)
	hashTime(h, "start", t.StartDateTime)
	hashTime(h, "due", t.DueDateTime)
	hashTime(h, "completed", t.CompletedDateTime)
	fmt.Fprintf(h, "assignees=%s\n", strings.Join(t.Assignees, ","))
	cats := append([]string(nil), t.AppliedCategories...)
	sort.Strings(cats)
	fmt.Fprintf(h, "categories=%s\ndesc=%s\norder=%s\n", strings.Join(cats, ","), t.Description, t.OrderHint)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotFingerprint hashes the whole plan content: tasks (by task
// fingerprint), dependencies and subtasks, each in a canonical order. Two
// snapshots with equal fingerprints are interchangeable for analytics.
func SnapshotFingerprint(s *Snapshot) string {
	h := sha256.New()
	fmt.Fprintf(h, "plan=%s\n", s.Plan.ID)

	tasks := make([]string, 0, len(s.Tasks))
	for i := range s.Tasks {
		tasks = append(tasks, s.Tasks[i].ID+":"+TaskFingerprint(&s.Tasks[i]))
	}
	sort.Strings(tasks)
	for _, line := range tasks {
		fmt.Fprintf(h, "task=%s\n", line)
	}

	deps := make([]string, 0, len(s.Dependencies))
	for _, d := range s.Dependencies {
		deps = append(deps, fmt.Sprintf("%s->%s:%s", d.PredecessorID, d.TaskID, d.Type))
	}
	sort.Strings(deps)
	for _, line := range deps {
		fmt.Fprintf(h, "dep=%s\n", line)
	}

	var subs []string
	for taskID, items := range s.Subtasks {
		for _, it := range items {
			subs = append(subs, fmt.Sprintf("%s/%s:%s:%t:%s", taskID, it.ID, it.Title, it.Checked, it.OrderHint))
		}
	}
	sort.Strings(subs)
	for _, line := range subs {
		fmt.Fprintf(h, "sub=%s\n", line)
	}
	return hex.EncodeToString(h.Sum(nil))
}
