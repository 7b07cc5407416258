package planner

// Planner-style lexicographic order hints. Items sort by plain string
// comparison of their hint; inserting between two neighbors generates a
// midpoint string so no existing hints need rewriting.
//
// The alphabet is the printable ASCII range used by Planner order hints.

const (
	hintMin byte = '!' // exclusive lower bound
	hintMax byte = '~' // exclusive upper bound
)

// OrderHintBetween returns a hint string that sorts strictly between before
// and after. Empty before means "insert first"; empty after means "insert
// last". The caller guarantees before < after when both are set.
func OrderHintBetween(before, after string) string {
	var out []byte
	i := 0
	for {
		lo, hi := hintMin, hintMax
		if i < len(before) {
			lo = before[i]
		}
		if i < len(after) {
			hi = after[i]
		}
		if lo == hi {
			out = append(out, lo)
			i++
			continue
		}
		if hi-lo > 1 {
			return string(append(out, lo+(hi-lo)/2))
		}
		// Adjacent bytes: keep the low side and find the midpoint between
		// before's tail and the open upper bound one level deeper.
		out = append(out, lo)
		i++
		for {
			lo = hintMin
			if i < len(before) {
				lo = before[i]
			}
			if hintMax-lo > 1 {
				return string(append(out, lo+(hintMax-lo)/2))
			}
			out = append(out, lo)
			i++
		}
	}
}
