package markov

// DefaultEpsilon is the Laplace smoothing constant applied to unseen
// transitions from observed transient states.
const DefaultEpsilon = 0.01

// Matrix is a right-stochastic transition matrix over States. Rows for
// absorbing states are identity.
type Matrix struct {
	// P[i][j] is the probability of moving from States[i] to States[j] in
	// one step.
	P [][]float64
	// Context labels what the matrix was learned from, e.g. "bucket:Venue".
	Context string
}

// Prob returns the one-step transition probability from a to b.
func (m *Matrix) Prob(a, b State) float64 {
	i, j := a.Index(), b.Index()
	if i < 0 || j < 0 {
		return 0
	}
	return m.P[i][j]
}

// ToMap renders the matrix as nested state-name maps, omitting zero cells.
func (m *Matrix) ToMap() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(States))
	for i, from := range States {
		row := make(map[string]float64)
		for j, to := range States {
			if m.P[i][j] > 0 {
				row[string(to)] = m.P[i][j]
			}
		}
		out[string(from)] = row
	}
	return out
}

// DefaultMatrix returns the baseline transition table used when a context has
// no observations at all.
func DefaultMatrix() *Matrix {
	m := &Matrix{P: zeros(), Context: "default"}
	set := func(from, to State, p float64) { m.P[from.Index()][to.Index()] = p }

	set(NotStarted, Planning, 0.7)
	set(NotStarted, NotStarted, 0.3)
	set(Planning, InProgress, 0.8)
	set(Planning, Planning, 0.2)
	set(InProgress, UnderReview, 0.4)
	set(InProgress, Blocked, 0.15)
	set(InProgress, InProgress, 0.45)
	set(Blocked, InProgress, 0.6)
	set(Blocked, Blocked, 0.4)
	set(UnderReview, Completed, 0.7)
	set(UnderReview, InProgress, 0.3)
	set(Completed, Completed, 1)
	set(Cancelled, Cancelled, 1)
	return m
}

// Learn counts one-step transitions from uniform-interval state sequences and
// normalizes each row, Laplace-smoothing unseen cells with epsilon so the
// transient part of the chain stays ergodic. Transient states with no
// observations at all inherit the default row; absorbing rows are identity.
func Learn(sequences [][]State, epsilon float64) *Matrix {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	counts := zeros()
	for _, seq := range sequences {
		for k := 0; k+1 < len(seq); k++ {
			i, j := seq[k].Index(), seq[k+1].Index()
			if i < 0 || j < 0 || States[i].Absorbing() {
				continue
			}
			counts[i][j]++
		}
	}

	def := DefaultMatrix()
	m := &Matrix{P: zeros()}
	for i, from := range States {
		if from.Absorbing() {
			m.P[i][i] = 1
			continue
		}
		total := 0.0
		for j := range States {
			total += counts[i][j]
		}
		if total == 0 {
			copy(m.P[i], def.P[i])
			continue
		}
		smoothedTotal := total + epsilon*float64(len(States))
		for j := range States {
			m.P[i][j] = (counts[i][j] + epsilon) / smoothedTotal
		}
	}
	return m
}

func zeros() [][]float64 {
	p := make([][]float64, len(States))
	for i := range p {
		p[i] = make([]float64, len(States))
	}
	return p
}
