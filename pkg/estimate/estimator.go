package estimate

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/P40-traveler/pathce/pkg/models"
	"github.com/P40-traveler/pathce/pkg/stats"
	"github.com/P40-traveler/pathce/pkg/summary"
	"github.com/P40-traveler/pathce/pkg/validation"
)

// BoundCeiling is the finite sentinel substituted for an unbounded result.
// It is large enough to be distinguishable from any realistic finite bound.
const BoundCeiling = 1e35

// CardinalityBound is the estimation result: a clamped, always-finite,
// always >= 1 bound plus the wall-clock latency of the call.
type CardinalityBound struct {
	Bound   float64       `json:"bound"`
	Latency time.Duration `json:"latency"`
}

// errBudgetExceeded is the internal abort-and-approximate signal. It never
// escapes the package: callers always receive a finite bound.
var errBudgetExceeded = errors.New("estimation budget exceeded")

// phase mirrors the estimation state machine:
// Init -> Decompose -> BoundStars -> ComposePaths -> CycleAdjust -> Clamp -> Done.
type phase int

const (
	phaseInit phase = iota
	phaseDecompose
	phaseBoundStars
	phaseComposePaths
	phaseCycleAdjust
	phaseClamp
	phaseDone
)

// Clamp enforces the output contract: NaN and anything at or below 1 become
// 1.0; +Inf and anything above the ceiling become BoundCeiling.
func Clamp(x float64) float64 {
	if math.IsNaN(x) {
		return 1.0
	}
	if x <= 1 {
		return 1.0
	}
	if math.IsInf(x, 1) || x > BoundCeiling {
		return BoundCeiling
	}
	return x
}

// run carries one estimation call. All state is call-local; concurrent
// Estimate calls over the same summary share nothing mutable.
type run struct {
	pattern  *models.Pattern
	summary  *summary.Summary
	cfg      Config
	logger   zerolog.Logger
	deadline time.Time

	labelOf map[int]int32 // pattern vertex id -> label id
	typeOf  []int32       // pattern edge index -> type id

	dec        *decomposition
	starBounds []float64
	partial    float64 // best composition seen so far, for budget aborts
	explored   int
}

// Estimate computes a cardinality bound for the pattern against the
// summary. Validation failures surface as models.ValidationError; budget
// and timeout conditions never fail the call.
func Estimate(p *models.Pattern, s *summary.Summary, cfg Config, logger zerolog.Logger) (CardinalityBound, error) {
	start := time.Now()

	// Init.
	if err := validation.ValidatePattern(p, s); err != nil {
		return CardinalityBound{}, err
	}
	r := &run{pattern: p, summary: s, cfg: cfg, logger: logger}
	if cfg.TimeoutSeconds > 0 {
		r.deadline = start.Add(time.Duration(cfg.TimeoutSeconds * float64(time.Second)))
	}
	r.resolveSchema()

	raw, err := r.drive()
	if err != nil {
		if !errors.Is(err, errBudgetExceeded) {
			return CardinalityBound{}, err
		}
		if cfg.SamplingStrategy != SamplingNone {
			raw = sampleRaw(r, cfg.SampleSize, cfg.Seed)
			logger.Debug().Float64("sampled", raw).Msg("Budget exceeded, sampler fallback used")
		} else {
			raw = r.partial
			logger.Debug().Float64("partial", raw).Msg("Budget exceeded, clamping partial composition")
		}
	}

	raw *= s.StalenessFactor()
	bound := Clamp(raw)
	return CardinalityBound{Bound: bound, Latency: time.Since(start)}, nil
}

// drive walks the state machine up to the pre-clamp raw bound.
func (r *run) drive() (float64, error) {
	for ph := phaseDecompose; ; {
		switch ph {
		case phaseDecompose:
			r.dec = decompose(r.pattern, r.cfg.MaxStarDegree)
			ph = phaseBoundStars
		case phaseBoundStars:
			if err := r.boundStars(); err != nil {
				return 0, err
			}
			ph = phaseComposePaths
		case phaseComposePaths:
			if err := r.composePaths(); err != nil {
				return 0, err
			}
			ph = phaseCycleAdjust
		case phaseCycleAdjust:
			r.partial = r.cycleAdjust(r.partial)
			ph = phaseClamp
		case phaseClamp:
			return r.partial, nil
		}
	}
}

func (r *run) resolveSchema() {
	r.labelOf = make(map[int]int32, len(r.pattern.Vertices))
	for _, v := range r.pattern.Vertices {
		id, _ := r.summary.LabelID(v.Label)
		r.labelOf[v.ID] = id
	}
	r.typeOf = make([]int32, len(r.pattern.Edges))
	for i, e := range r.pattern.Edges {
		id, _ := r.summary.TypeID(e.Type)
		r.typeOf[i] = id
	}
}

// expired polls the cooperative deadline; checked at fragment boundaries
// only, so worst-case latency is one fragment past the deadline.
func (r *run) expired() bool {
	return !r.deadline.IsZero() && time.Now().After(r.deadline)
}

// boundStars computes each star fragment's bound: candidate count of the
// center, times per-edge expected fan-out capped at the observed maximum.
func (r *run) boundStars() error {
	r.starBounds = make([]float64, len(r.dec.stars))
	for i, st := range r.dec.stars {
		if r.expired() {
			r.partial = r.productOfStars(i)
			return errBudgetExceeded
		}
		r.starBounds[i] = r.boundStar(st)
	}
	r.partial = r.productOfStars(len(r.starBounds))
	return nil
}

// productOfStars is the coarse fallback composition when aborting early:
// the product of the star bounds computed so far.
func (r *run) productOfStars(n int) float64 {
	prod := 1.0
	for i := 0; i < n; i++ {
		prod *= r.starBounds[i]
	}
	return prod
}

func (r *run) boundStar(st star) float64 {
	centerLabel := r.labelOf[st.center]
	if len(st.edgeIdxs) == 0 {
		return float64(r.summary.CandidateCount(centerLabel))
	}
	total := 0.0
	for _, c := range r.summary.ColorsWithLabel(centerLabel) {
		base := float64(r.summary.Stats.Colors[c].LabelCounts[centerLabel])
		fan := 1.0
		for _, ei := range st.edgeIdxs {
			fan *= r.edgeFanout(c, ei, st.center)
		}
		total += base * fan
	}
	return total
}

// edgeFanout is the expected number of extensions of a center vertex of the
// given color along one pattern edge: average degree scaled by edge-type
// selectivity, capped by the maximum observed degree.
func (r *run) edgeFanout(centerColor int32, edgeIdx, center int) float64 {
	e := r.pattern.Edges[edgeIdx]
	typ := r.typeOf[edgeIdx]
	outgoing := e.Src == center
	var otherLabel int32
	if outgoing {
		otherLabel = r.labelOf[e.Dst]
	} else {
		otherLabel = r.labelOf[e.Src]
	}

	var allCount, allDistinct, matchCount, matchMax int64
	if outgoing {
		r.summary.Stats.Range(centerColor, typ, func(key stats.EntryKey, entry *stats.EdgeStatEntry) {
			allCount += entry.EdgeCount
			allDistinct += entry.DistinctSrc
			if r.summary.Stats.Colors[key.DstColor].LabelCounts[otherLabel] > 0 {
				matchCount += entry.EdgeCount
				if entry.MaxOutDegree > matchMax {
					matchMax = entry.MaxOutDegree
				}
			}
		})
	} else {
		// Incoming edge: scan entries ending at the center's color.
		for i, key := range r.summary.Stats.Keys {
			if key.DstColor != centerColor || key.EdgeType != typ {
				continue
			}
			entry := r.summary.Stats.Entries[i]
			allCount += entry.EdgeCount
			allDistinct += entry.DistinctDst
			if r.summary.Stats.Colors[key.SrcColor].LabelCounts[otherLabel] > 0 {
				matchCount += entry.EdgeCount
				if entry.MaxInDegree > matchMax {
					matchMax = entry.MaxInDegree
				}
			}
		}
	}

	if allCount == 0 || allDistinct == 0 || matchCount == 0 {
		return 0
	}
	avg := float64(allCount) / float64(allDistinct)
	selectivity := float64(matchCount) / float64(allCount)
	fan := avg * selectivity
	if m := float64(matchMax); fan > m {
		fan = m
	}
	return fan
}

// composePaths explores chain orders over the star fragments and keeps the
// minimum composed bound: every order is a valid bound, so the tightest one
// wins.
func (r *run) composePaths() error {
	k := len(r.dec.stars)
	if k == 0 {
		r.partial = 1
		return nil
	}
	if k == 1 {
		r.partial = r.starBounds[0]
		return nil
	}

	order := make([]int, k)
	for i := range order {
		order[i] = i
	}

	best := math.Inf(1)
	for {
		if r.explored >= r.cfg.MaxPartialPaths || r.expired() {
			if !math.IsInf(best, 1) {
				r.partial = best
			}
			return errBudgetExceeded
		}
		r.explored++

		bound, err := r.composeOrder(order)
		if err != nil {
			if !math.IsInf(best, 1) {
				r.partial = best
			}
			return err
		}
		if bound < best {
			best = bound
		}
		if !nextPermutation(order) {
			break
		}
	}
	r.partial = best
	return nil
}

// composeOrder multiplies star bounds along one chain order, applying join
// selectivity at every shared vertex.
func (r *run) composeOrder(order []int) (float64, error) {
	first := r.dec.stars[order[0]]
	composed := r.starBounds[order[0]]
	joined := make(map[int]bool, len(r.pattern.Vertices))
	for _, v := range first.vertices {
		joined[v] = true
	}

	for _, si := range order[1:] {
		if r.expired() {
			return 0, errBudgetExceeded
		}
		st := r.dec.stars[si]
		var shared []int
		for _, v := range st.vertices {
			if joined[v] {
				shared = append(shared, v)
			}
		}
		if len(shared) == 0 {
			composed *= r.starBounds[si]
		} else {
			// Per-join selectivity 1/|candidates(v)|; overlapping joins
			// combine by sum (additive alternatives) or max (tightest
			// single constraint) per the config.
			combined := 0.0
			for _, v := range shared {
				sel := 1.0 / r.joinCandidates(v)
				if r.cfg.UsePartialSums {
					combined += sel
				} else if sel > combined {
					combined = sel
				}
			}
			composed *= r.starBounds[si] * combined
		}
		for _, v := range st.vertices {
			joined[v] = true
		}
	}
	return composed, nil
}

// joinCandidates returns the effective candidate count of a join vertex:
// the label's vertex count, floored by the sketch-estimated number of
// distinct vertices actually reachable into it.
func (r *run) joinCandidates(v int) float64 {
	label := r.labelOf[v]
	cand := float64(r.summary.CandidateCount(label))
	if cand < 1 {
		return 1
	}
	if est := r.distinctInto(v); est > 0 && est < cand {
		cand = est
	}
	return cand
}

// distinctInto aggregates the bottom-k sketch estimates of distinct
// destinations over all entries feeding the pattern vertex, taking the
// tightest incoming edge. Returns 0 when the vertex has no incoming
// pattern edge.
func (r *run) distinctInto(v int) float64 {
	best := 0.0
	for ei, e := range r.pattern.Edges {
		if e.Dst != v {
			continue
		}
		typ := r.typeOf[ei]
		srcLabel := r.labelOf[e.Src]
		dstLabel := r.labelOf[v]
		total := 0.0
		for _, sc := range r.summary.ColorsWithLabel(srcLabel) {
			r.summary.Stats.Range(sc, typ, func(key stats.EntryKey, entry *stats.EdgeStatEntry) {
				if r.summary.Stats.Colors[key.DstColor].LabelCounts[dstLabel] > 0 {
					total += entry.DstSketch.Estimate()
				}
			})
		}
		total = math.Ceil(total)
		if total > 0 && (best == 0 || total < best) {
			best = total
		}
	}
	return best
}

// cycleAdjust scales the composed bound once per cycle-closing edge by the
// observed cycle-membership rate of the relevant color classes. Cycles
// longer than the summary's max cycle size get no adjustment.
func (r *run) cycleAdjust(bound float64) float64 {
	maxCycle := r.summary.Params.MaxCycleSize
	for _, ei := range r.dec.cycleEdges {
		e := r.pattern.Edges[ei]
		if e.Src == e.Dst {
			if maxCycle >= 1 {
				bound *= r.cycleScale(ei)
			}
			continue
		}
		lengths := alternativePathLengths(r.pattern, e.Src, e.Dst, ei, maxCycle-1, r.cfg.OnlyShortestPathCycle)
		applies := false
		for _, l := range lengths {
			if l+1 <= maxCycle {
				applies = true
				break
			}
		}
		if applies {
			bound *= r.cycleScale(ei)
		}
	}
	return bound
}

// cycleScale estimates, over the entries compatible with the closing edge,
// the fraction of source vertices sitting on a bounded-length cycle.
// The bloom filter only overestimates, so the scale errs upward within the
// filter's false-positive slack.
func (r *run) cycleScale(edgeIdx int) float64 {
	e := r.pattern.Edges[edgeIdx]
	typ := r.typeOf[edgeIdx]
	srcLabel := r.labelOf[e.Src]
	dstLabel := r.labelOf[e.Dst]

	var members float64
	var population float64
	srcColors := r.summary.ColorsWithLabel(srcLabel)
	sort.Slice(srcColors, func(i, j int) bool { return srcColors[i] < srcColors[j] })
	for _, sc := range srcColors {
		population += float64(r.summary.Stats.Colors[sc].LabelCounts[srcLabel])
		r.summary.Stats.Range(sc, typ, func(key stats.EntryKey, entry *stats.EdgeStatEntry) {
			if r.summary.Stats.Colors[key.DstColor].LabelCounts[dstLabel] > 0 {
				members += entry.CycleFilter.EstimateCardinality()
			}
		})
	}
	if population <= 0 {
		return 1
	}
	scale := members / population
	if scale > 1 {
		scale = 1
	}
	if scale < 0 || math.IsNaN(scale) {
		scale = 0
	}
	return scale
}

// nextPermutation advances to the lexicographically next permutation,
// returning false after the last one.
func nextPermutation(a []int) bool {
	i := len(a) - 2
	for i >= 0 && a[i] >= a[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := len(a) - 1
	for a[j] <= a[i] {
		j--
	}
	a[i], a[j] = a[j], a[i]
	for l, r := i+1, len(a)-1; l < r; l, r = l+1, r-1 {
		a[l], a[r] = a[r], a[l]
	}
	return true
}

// QError is the symmetric estimation error max(est/truth, truth/est), the
// usual quality metric for cardinality estimators.
func QError(est, truth float64) float64 {
	if est <= 0 || truth <= 0 {
		return math.Inf(1)
	}
	if est > truth {
		return est / truth
	}
	return truth / est
}
