package history

import (
	"sort"
	"strings"

	"congresstwin/internal/planner"
)

// DependencyHint is an ordered pair of task title patterns that repeatedly
// occurred with temporal precedence in past plans, suggesting an implicit
// dependency the planner never recorded.
type DependencyHint struct {
	Before     string  `json:"before"`
	After      string  `json:"after"`
	Support    int     `json:"support"`    // plans where both patterns appear
	Confidence float64 `json:"confidence"` // fraction of those with precedence
}

// DependencyHints mines historical plan snapshots for title pairs where the
// first task completed before the second started in at least minConfidence of
// the plans containing both. Pairs must co-occur in at least two plans.
// Titles are normalized to lowercase keyword form for matching.
func DependencyHints(snaps []*planner.Snapshot, minConfidence float64) []DependencyHint {
	type pairStat struct {
		support int
		ordered int
	}
	stats := make(map[[2]string]*pairStat)

	for _, snap := range snaps {
		// One representative task per pattern and plan: the earliest start.
		byPattern := make(map[string]*planner.Task)
		for i := range snap.Tasks {
			t := &snap.Tasks[i]
			if t.StartDateTime == nil {
				continue
			}
			key := titlePattern(t.Title)
			if key == "" {
				continue
			}
			if cur, ok := byPattern[key]; !ok || t.StartDateTime.Before(*cur.StartDateTime) {
				byPattern[key] = t
			}
		}
		patterns := make([]string, 0, len(byPattern))
		for p := range byPattern {
			patterns = append(patterns, p)
		}
		sort.Strings(patterns)

		for _, pa := range patterns {
			for _, pb := range patterns {
				if pa == pb {
					continue
				}
				a, b := byPattern[pa], byPattern[pb]
				key := [2]string{pa, pb}
				st, ok := stats[key]
				if !ok {
					st = &pairStat{}
					stats[key] = st
				}
				st.support++
				if a.CompletedDateTime != nil && !a.CompletedDateTime.After(*b.StartDateTime) {
					st.ordered++
				}
			}
		}
	}

	var hints []DependencyHint
	for key, st := range stats {
		if st.support < 2 {
			continue
		}
		conf := float64(st.ordered) / float64(st.support)
		if conf < minConfidence {
			continue
		}
		hints = append(hints, DependencyHint{
			Before:     key[0],
			After:      key[1],
			Support:    st.support,
			Confidence: conf,
		})
	}
	sort.Slice(hints, func(i, j int) bool {
		if hints[i].Confidence != hints[j].Confidence {
			return hints[i].Confidence > hints[j].Confidence
		}
		if hints[i].Before != hints[j].Before {
			return hints[i].Before < hints[j].Before
		}
		return hints[i].After < hints[j].After
	})
	return hints
}

// titlePattern reduces a title to its significant lowercase keywords so that
// "Book Venue 2025" and "Book venue (Berlin)" match.
func titlePattern(title string) string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	var kept []string
	for _, f := range fields {
		if len(f) < 3 || isNumeric(f) || stopwords[f] {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
}
