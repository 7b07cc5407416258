// Package montecarlo runs sampled schedule simulations over a plan snapshot:
// Beta-PERT task durations calibrated from history, a topological schedule
// walk with a queuing penalty for assignee contention, and aggregation into
// percentile end dates, per-task critical-path probability and per-bucket
// variance.
package montecarlo

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"congresstwin/internal/graph"
	"congresstwin/internal/history"
	"congresstwin/internal/planner"
)

const (
	// DefaultIterations is used when Params.Iterations is zero.
	DefaultIterations = 10000
	// DefaultQueueDelayK is the queuing penalty per concurrent competitor,
	// in days.
	DefaultQueueDelayK = 0.25
	// cancelEvery bounds how many iterations a worker runs between
	// cancellation checks.
	cancelEvery = 256

	seedStride int64 = -0x61c8864680b583eb // 64-bit golden ratio
)

// Params configures one simulation run. The zero value gives the defaults:
// 10,000 iterations, queue penalty 0.25 days/competitor, prior-backed
// calibration, auto seed, worker count from GOMAXPROCS.
type Params struct {
	Iterations int
	// Seed makes the run reproducible; 0 draws a seed from the clock and
	// reports it in the result.
	Seed int64
	// EventDate, when set, yields the probability-on-time output.
	EventDate *time.Time
	// Base is the schedule origin for converting day offsets to dates.
	// Zero means time.Now().
	Base time.Time
	// DisallowPrior makes the run fail with InsufficientCalibration when a
	// referenced bucket has no fitted PERT triple.
	DisallowPrior bool
	QueueDelayK   float64
	Workers       int
	// TrackTaskID collects the finish distribution of one task of interest.
	TrackTaskID string
	// ExtraDurationDays adds fixed slip to the sampled duration of specific
	// tasks. Used by impact previews.
	ExtraDurationDays map[string]float64
}

// Percentiles of the plan end, in days from Base.
type Percentiles struct {
	P10 float64 `json:"p10"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
}

// DatePercentiles mirrors Percentiles as calendar instants.
type DatePercentiles struct {
	P10 time.Time `json:"p10"`
	P50 time.Time `json:"p50"`
	P75 time.Time `json:"p75"`
	P90 time.Time `json:"p90"`
	P95 time.Time `json:"p95"`
}

// Bottleneck is a task ranked by its contribution to schedule risk.
type Bottleneck struct {
	TaskID           string  `json:"taskId"`
	Title            string  `json:"title"`
	CPProbability    float64 `json:"cpProbability"`
	MeanDurationDays float64 `json:"meanDurationDays"`
	Score            float64 `json:"score"`
}

// TaskForecast is the per-task summary produced when TrackTaskID is set.
type TaskForecast struct {
	TaskID        string  `json:"taskId"`
	P50FinishDays float64 `json:"p50FinishDays"`
	P95FinishDays float64 `json:"p95FinishDays"`
	CPProbability float64 `json:"cpProbability"`
}

// Result aggregates a full run.
type Result struct {
	Iterations int   `json:"iterations"`
	Seed       int64 `json:"seed"`

	EndDays  Percentiles     `json:"endDays"`
	EndDates DatePercentiles `json:"endDates"`
	// ProbabilityOnTimePercent is in [0,100]; nil without an event date.
	ProbabilityOnTimePercent *float64 `json:"probabilityOnTimePercent,omitempty"`

	CPFrequency    map[string]float64 `json:"cpFrequency"`
	BucketVariance map[string]float64 `json:"bucketVariance"`
	Bottlenecks    []Bottleneck       `json:"bottlenecks"`
	Tracked        *TaskForecast      `json:"tracked,omitempty"`
}

// taskSpec is the per-task sampling plan, precomputed once per run.
type taskSpec struct {
	id        string
	title     string
	bucketIdx int
	pert      history.PERT
	// remaining scales the sampled duration by outstanding work.
	remaining float64
	// extra is fixed slip added after sampling.
	extra     float64
	assignees map[string]bool
	preds     []predEdge
}

type predEdge struct {
	edge graph.Edge
	idx  int
}

// Run simulates the snapshot. Deterministic for a given seed independent of
// worker count: every iteration derives its own RNG stream from the seed and
// the iteration index.
func Run(ctx context.Context, snap *planner.Snapshot, cal *history.Calibration, p Params) (*Result, error) {
	g, err := graph.Build(snap)
	if err != nil {
		return nil, err
	}

	n := p.Iterations
	if n <= 0 {
		n = DefaultIterations
	}
	k := p.QueueDelayK
	if k == 0 {
		k = DefaultQueueDelayK
	}
	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	base := p.Base
	if base.IsZero() {
		base = time.Now().UTC()
	}
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	specs, bucketNames, err := buildSpecs(snap, g, cal, p.DisallowPrior, p.ExtraDurationDays)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return &Result{
			Iterations:     n,
			Seed:           seed,
			EndDates:       datesFrom(base, Percentiles{}),
			CPFrequency:    map[string]float64{},
			BucketVariance: map[string]float64{},
		}, nil
	}

	ends := make([]float64, n)
	var trackedFinishes []float64
	trackIdx := -1
	if p.TrackTaskID != "" {
		for i, s := range specs {
			if s.id == p.TrackTaskID {
				trackIdx = i
				trackedFinishes = make([]float64, n)
				break
			}
		}
	}

	type shardAcc struct {
		cpCounts    []int64
		durSums     []float64
		bucketSum   []float64
		bucketSumSq []float64
	}
	shards := make([]shardAcc, workers)

	grp, gctx := errgroup.WithContext(ctx)
	per := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		w := w
		lo, hi := w*per, (w+1)*per
		if hi > n {
			hi = n
		}
		if lo >= hi {
			continue
		}
		grp.Go(func() error {
			acc := shardAcc{
				cpCounts:    make([]int64, len(specs)),
				durSums:     make([]float64, len(specs)),
				bucketSum:   make([]float64, len(bucketNames)),
				bucketSumSq: make([]float64, len(bucketNames)),
			}
			it := iterator{specs: specs, queueK: k, nBuckets: len(bucketNames)}
			for i := lo; i < hi; i++ {
				if (i-lo)%cancelEvery == 0 && gctx.Err() != nil {
					return planner.ErrCancelled
				}
				rng := rand.New(rand.NewSource(seed + int64(i+1)*seedStride))
				it.run(rng)
				ends[i] = it.end
				for j := range specs {
					acc.durSums[j] += it.durations[j]
					if it.onCP[j] {
						acc.cpCounts[j]++
					}
				}
				for b := 0; b < len(bucketNames); b++ {
					s := it.bucketSums[b]
					acc.bucketSum[b] += s
					acc.bucketSumSq[b] += s * s
				}
				if trackIdx >= 0 {
					trackedFinishes[i] = it.finishes[trackIdx]
				}
			}
			shards[w] = acc
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	cpCounts := make([]int64, len(specs))
	durSums := make([]float64, len(specs))
	bucketSum := make([]float64, len(bucketNames))
	bucketSumSq := make([]float64, len(bucketNames))
	for _, acc := range shards {
		if acc.cpCounts == nil {
			continue
		}
		for i := range specs {
			cpCounts[i] += acc.cpCounts[i]
			durSums[i] += acc.durSums[i]
		}
		for b := range bucketNames {
			bucketSum[b] += acc.bucketSum[b]
			bucketSumSq[b] += acc.bucketSumSq[b]
		}
	}

	res := &Result{
		Iterations:     n,
		Seed:           seed,
		CPFrequency:    make(map[string]float64, len(specs)),
		BucketVariance: make(map[string]float64, len(bucketNames)),
	}

	sorted := append([]float64(nil), ends...)
	sort.Float64s(sorted)
	res.EndDays = Percentiles{
		P10: percentile(sorted, 10),
		P50: percentile(sorted, 50),
		P75: percentile(sorted, 75),
		P90: percentile(sorted, 90),
		P95: percentile(sorted, 95),
	}
	res.EndDates = datesFrom(base, res.EndDays)

	if p.EventDate != nil {
		target := p.EventDate.Sub(base).Hours() / 24
		onTime := 0
		for _, e := range ends {
			if e <= target+1e-9 {
				onTime++
			}
		}
		pct := 100 * float64(onTime) / float64(n)
		res.ProbabilityOnTimePercent = &pct
	}

	for i, s := range specs {
		res.CPFrequency[s.id] = float64(cpCounts[i]) / float64(n)
	}
	for b, name := range bucketNames {
		res.BucketVariance[name] = sampleVariance(bucketSum[b], bucketSumSq[b], n)
	}
	res.Bottlenecks = rankBottlenecks(specs, cpCounts, durSums, n)

	if trackIdx >= 0 {
		sort.Float64s(trackedFinishes)
		res.Tracked = &TaskForecast{
			TaskID:        p.TrackTaskID,
			P50FinishDays: percentile(trackedFinishes, 50),
			P95FinishDays: percentile(trackedFinishes, 95),
			CPProbability: res.CPFrequency[p.TrackTaskID],
		}
	}
	return res, nil
}

func buildSpecs(snap *planner.Snapshot, g *graph.Graph, cal *history.Calibration, disallowPrior bool, extra map[string]float64) ([]taskSpec, []string, error) {
	bucketIdx := make(map[string]int)
	var bucketNames []string
	var missing []string

	idx := make(map[string]int, g.Len())
	for i, id := range g.Order {
		idx[id] = i
	}

	specs := make([]taskSpec, 0, g.Len())
	for _, id := range g.Order {
		t := g.Task(id)
		bucket := snap.BucketName(t.BucketID)
		bi, ok := bucketIdx[bucket]
		if !ok {
			bi = len(bucketNames)
			bucketIdx[bucket] = bi
			bucketNames = append(bucketNames, bucket)
		}

		var pert history.PERT
		if cal != nil {
			pert = cal.BucketPERT(bucket)
		} else {
			pert = history.GlobalPrior
		}
		if pert.FromPrior && disallowPrior {
			missing = append(missing, bucket)
		}

		s := taskSpec{
			id:        id,
			title:     t.Title,
			bucketIdx: bi,
			pert:      pert,
			remaining: remainingFraction(t),
			extra:     extra[id],
			preds:     make([]predEdge, 0, len(g.Predecessors(id))),
		}
		if len(t.Assignees) > 0 {
			s.assignees = make(map[string]bool, len(t.Assignees))
			for _, a := range t.Assignees {
				s.assignees[a] = true
			}
		}
		for _, e := range g.Predecessors(id) {
			s.preds = append(s.preds, predEdge{edge: e, idx: idx[e.From]})
		}
		specs = append(specs, s)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		missing = dedupe(missing)
		return nil, nil, fmt.Errorf("%w: no PERT calibration for buckets %s",
			planner.ErrInsufficientCalibration, strings.Join(missing, ", "))
	}
	return specs, bucketNames, nil
}

func remainingFraction(t *planner.Task) float64 {
	if t.Status.Terminal() {
		return 0
	}
	return float64(100-t.PercentComplete) / 100
}

// iterator holds one worker's reusable per-iteration buffers.
type iterator struct {
	specs    []taskSpec
	queueK   float64
	nBuckets int

	durations  []float64
	starts     []float64
	finishes   []float64
	onCP       []bool
	bucketSums []float64
	end        float64
}

// run executes one simulation iteration with the given RNG stream.
func (it *iterator) run(rng *rand.Rand) {
	n := len(it.specs)
	if it.durations == nil {
		it.durations = make([]float64, n)
		it.starts = make([]float64, n)
		it.finishes = make([]float64, n)
		it.onCP = make([]bool, n)
		it.bucketSums = make([]float64, it.nBuckets)
	}
	for b := range it.bucketSums {
		it.bucketSums[b] = 0
	}
	it.end = 0
	endIdx := -1

	for i := range it.specs {
		s := &it.specs[i]
		dur := samplePERT(rng, s.pert.Optimistic, s.pert.MostLikely, s.pert.Pessimistic)
		dur = dur*s.pert.Bias*s.remaining + s.extra
		if dur < 0 {
			dur = 0
		}
		it.durations[i] = dur
		it.bucketSums[s.bucketIdx] += dur

		start := 0.0
		for _, pe := range s.preds {
			if c := graph.ForwardConstraint(pe.edge, it.starts[pe.idx], it.finishes[pe.idx], dur); c > start {
				start = c
			}
		}
		it.starts[i] = start
		it.finishes[i] = start + dur + it.queueDelay(i, start)

		if endIdx < 0 || it.finishes[i] > it.end {
			it.end = it.finishes[i]
			endIdx = i
		}
	}
	it.markSimulatedCP(endIdx)
}

// queueDelay implements the M/M/1-style contention penalty: the concurrent
// load is this task plus every already-scheduled task that shares an
// assignee and spans start; delay = k * max(0, load-1).
func (it *iterator) queueDelay(i int, start float64) float64 {
	s := &it.specs[i]
	if it.queueK == 0 || s.assignees == nil {
		return 0
	}
	load := 1
	for q := 0; q < i; q++ {
		other := &it.specs[q]
		if other.assignees == nil {
			continue
		}
		if it.starts[q] > start || start >= it.finishes[q] {
			continue
		}
		for a := range s.assignees {
			if other.assignees[a] {
				load++
				break
			}
		}
	}
	return it.queueK * math.Max(0, float64(load-1))
}

// markSimulatedCP backtracks the binding chain from the iteration's
// latest-finishing task and flags its members.
func (it *iterator) markSimulatedCP(endIdx int) {
	for i := range it.onCP {
		it.onCP[i] = false
	}
	cur := endIdx
	for cur >= 0 {
		it.onCP[cur] = true
		s := &it.specs[cur]
		next := -1
		for _, pe := range s.preds {
			c := graph.ForwardConstraint(pe.edge, it.starts[pe.idx], it.finishes[pe.idx], it.durations[cur])
			if math.Abs(c-it.starts[cur]) > 1e-9 {
				continue
			}
			if next < 0 || it.specs[pe.idx].id < it.specs[next].id {
				next = pe.idx
			}
		}
		cur = next
	}
}

func rankBottlenecks(specs []taskSpec, cpCounts []int64, durSums []float64, n int) []Bottleneck {
	var out []Bottleneck
	for i, s := range specs {
		freq := float64(cpCounts[i]) / float64(n)
		if freq == 0 {
			continue
		}
		mean := durSums[i] / float64(n)
		out = append(out, Bottleneck{
			TaskID:           s.id,
			Title:            s.title,
			CPProbability:    freq,
			MeanDurationDays: mean,
			Score:            freq * mean,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TaskID < out[j].TaskID
	})
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

func sampleVariance(sum, sumSq float64, n int) float64 {
	if n < 2 {
		return 0
	}
	v := (sumSq - sum*sum/float64(n)) / float64(n-1)
	return math.Max(0, v)
}

func datesFrom(base time.Time, p Percentiles) DatePercentiles {
	at := func(days float64) time.Time {
		return base.Add(time.Duration(days * 24 * float64(time.Hour)))
	}
	return DatePercentiles{
		P10: at(p.P10), P50: at(p.P50), P75: at(p.P75), P90: at(p.P90), P95: at(p.P95),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
