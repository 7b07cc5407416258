package markov

import (
	"math"
)

// pivotFloor is the partial-pivot magnitude below which (I - Q) is treated
// as near-singular.
const pivotFloor = 1e-12

// Absorption is the fundamental-matrix analysis of a transition matrix:
// expected steps (and days) until the chain reaches Completed or Cancelled,
// per transient starting state, with the variance of the step count.
type Absorption struct {
	StepDays      float64           `json:"stepDays"`
	ExpectedSteps map[State]float64 `json:"expectedSteps"`
	ExpectedDays  map[State]float64 `json:"expectedDays"`
	VarianceSteps map[State]float64 `json:"varianceSteps"`
	// Diagnostic is non-empty when (I - Q) was near-singular; the maps then
	// hold NaN.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Absorption computes N = (I - Q)^-1 by Gauss-Jordan elimination with
// partial pivoting, then t = N·1 and Var = (2N - I)t - t∘t. stepDays scales
// steps to days (the learning interval, default 1). Absorbing states map to
// zero.
func (m *Matrix) Absorption(stepDays float64) *Absorption {
	if stepDays <= 0 {
		stepDays = 1
	}
	a := &Absorption{
		StepDays:      stepDays,
		ExpectedSteps: make(map[State]float64, len(States)),
		ExpectedDays:  make(map[State]float64, len(States)),
		VarianceSteps: make(map[State]float64, len(States)),
	}

	q := make([][]float64, numTransient)
	for i := 0; i < numTransient; i++ {
		q[i] = make([]float64, numTransient)
		for j := 0; j < numTransient; j++ {
			q[i][j] = m.P[i][j]
		}
	}

	n, diag := invertIMinusQ(q)
	if diag != "" {
		a.Diagnostic = diag
		for _, s := range States {
			if s.Absorbing() {
				a.ExpectedSteps[s], a.ExpectedDays[s], a.VarianceSteps[s] = 0, 0, 0
				continue
			}
			a.ExpectedSteps[s] = math.NaN()
			a.ExpectedDays[s] = math.NaN()
			a.VarianceSteps[s] = math.NaN()
		}
		return a
	}

	// t = N·1
	t := make([]float64, numTransient)
	for i := 0; i < numTransient; i++ {
		for j := 0; j < numTransient; j++ {
			t[i] += n[i][j]
		}
	}
	// var = (2N - I)t - t∘t
	for i := 0; i < numTransient; i++ {
		v := 0.0
		for j := 0; j < numTransient; j++ {
			c := 2 * n[i][j]
			if i == j {
				c--
			}
			v += c * t[j]
		}
		v -= t[i] * t[i]
		if v < 0 && v > -1e-9 {
			v = 0
		}

		s := States[i]
		a.ExpectedSteps[s] = t[i]
		a.ExpectedDays[s] = t[i] * stepDays
		a.VarianceSteps[s] = v
	}
	for _, s := range States {
		if s.Absorbing() {
			a.ExpectedSteps[s], a.ExpectedDays[s], a.VarianceSteps[s] = 0, 0, 0
		}
	}
	return a
}

// ExpectedDays is the expected time to absorption from state s.
func (m *Matrix) ExpectedDays(s State, stepDays float64) float64 {
	return m.Absorption(stepDays).ExpectedDays[s]
}

// invertIMinusQ inverts (I - Q) in place via Gauss-Jordan with partial
// pivoting, returning the inverse or a diagnostic when a pivot underflows.
func invertIMinusQ(q [][]float64) ([][]float64, string) {
	k := len(q)
	a := make([][]float64, k)
	inv := make([][]float64, k)
	for i := 0; i < k; i++ {
		a[i] = make([]float64, k)
		inv[i] = make([]float64, k)
		inv[i][i] = 1
		for j := 0; j < k; j++ {
			a[i][j] = -q[i][j]
			if i == j {
				a[i][j] += 1
			}
		}
	}

	minPivot, maxPivot := math.Inf(1), 0.0
	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		p := math.Abs(a[pivot][col])
		if p < pivotFloor {
			return nil, "transient chain is not absorbing: (I - Q) is near-singular"
		}
		if p < minPivot {
			minPivot = p
		}
		if p > maxPivot {
			maxPivot = p
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		scale := a[col][col]
		for j := 0; j < k; j++ {
			a[col][j] /= scale
			inv[col][j] /= scale
		}
		for r := 0; r < k; r++ {
			if r == col || a[r][col] == 0 {
				continue
			}
			f := a[r][col]
			for j := 0; j < k; j++ {
				a[r][j] -= f * a[col][j]
				inv[r][j] -= f * inv[col][j]
			}
		}
	}
	if maxPivot/minPivot > 1e12 {
		return nil, "transition matrix is ill-conditioned"
	}
	return inv, ""
}
