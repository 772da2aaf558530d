package estimate

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/P40-traveler/pathce/pkg/stats"
)

// sampleRaw is the randomized fallback: walk the summary's color graph
// along the pattern's tree edges, weighting each step by the entries' edge
// counts and multiplying the trial weight by the expected fan-out. The
// estimate scales the mean trial weight by the root's candidate count.
// Deterministic for a fixed seed.
func sampleRaw(r *run, sampleSize int, seed int64) float64 {
	if sampleSize < 1 {
		sampleSize = 1
	}
	rng := rand.New(rand.NewSource(seed))

	root, walkOrder := r.walkPlan()
	rootLabel := r.labelOf[root]
	rootColors := r.summary.ColorsWithLabel(rootLabel)
	if len(rootColors) == 0 {
		return 0
	}
	rootWeights := make([]float64, len(rootColors))
	for i, c := range rootColors {
		rootWeights[i] = float64(r.summary.Stats.Colors[c].LabelCounts[rootLabel])
	}

	weights := make([]float64, sampleSize)
	colorOf := make(map[int]int32, len(r.pattern.Vertices))
	for t := 0; t < sampleSize; t++ {
		for k := range colorOf {
			delete(colorOf, k)
		}
		colorOf[root] = rootColors[weightedChoice(rng, rootWeights)]
		w := 1.0
		for _, ei := range walkOrder {
			var ok bool
			w, ok = r.extendWalk(rng, colorOf, ei, w)
			if !ok {
				w = 0
				break
			}
		}
		weights[t] = w
	}

	est := float64(r.summary.CandidateCount(rootLabel)) * stat.Mean(weights, nil)
	return r.cycleAdjust(est)
}

// walkPlan orders the pattern's tree edges so every step extends from an
// already-assigned vertex, rooted at the smallest vertex id.
func (r *run) walkPlan() (int, []int) {
	treeEdge := make(map[int]bool, len(r.pattern.Edges))
	for ei := range r.pattern.Edges {
		treeEdge[ei] = true
	}
	for _, ei := range r.dec.cycleEdges {
		treeEdge[ei] = false
	}

	root := r.pattern.Vertices[0].ID
	for _, v := range r.pattern.Vertices {
		if v.ID < root {
			root = v.ID
		}
	}

	treeCount := 0
	for _, isTree := range treeEdge {
		if isTree {
			treeCount++
		}
	}

	assigned := map[int]bool{root: true}
	var order []int
	used := make(map[int]bool, len(r.pattern.Edges))
	for len(order) < treeCount {
		progress := false
		idxs := make([]int, 0, len(r.pattern.Edges))
		for ei := range r.pattern.Edges {
			idxs = append(idxs, ei)
		}
		sort.Ints(idxs)
		for _, ei := range idxs {
			if used[ei] || !treeEdge[ei] {
				continue
			}
			e := r.pattern.Edges[ei]
			if assigned[e.Src] || assigned[e.Dst] {
				used[ei] = true
				assigned[e.Src] = true
				assigned[e.Dst] = true
				order = append(order, ei)
				progress = true
			}
		}
		if !progress {
			// Disconnected component: seed its smallest vertex and retry.
			seeded := false
			for _, ei := range idxs {
				if !used[ei] && treeEdge[ei] {
					assigned[r.pattern.Edges[ei].Src] = true
					seeded = true
					break
				}
			}
			if !seeded {
				break
			}
		}
	}
	return root, order
}

// extendWalk advances one tree edge: pick a compatible entry weighted by
// edge count, multiply the trial weight by its average fan-out, and assign
// the new endpoint's color.
func (r *run) extendWalk(rng *rand.Rand, colorOf map[int]int32, edgeIdx int, w float64) (float64, bool) {
	e := r.pattern.Edges[edgeIdx]
	typ := r.typeOf[edgeIdx]

	srcColor, srcKnown := colorOf[e.Src]
	dstColor, dstKnown := colorOf[e.Dst]

	switch {
	case srcKnown && dstKnown:
		entry, ok := r.summary.Stats.Get(stats.EntryKey{SrcColor: srcColor, EdgeType: typ, DstColor: dstColor})
		if !ok {
			return 0, false
		}
		return w * entry.AvgOutDegree, true

	case srcKnown:
		dstLabel := r.labelOf[e.Dst]
		var keys []stats.EntryKey
		var counts []float64
		r.summary.Stats.Range(srcColor, typ, func(key stats.EntryKey, entry *stats.EdgeStatEntry) {
			if r.summary.Stats.Colors[key.DstColor].LabelCounts[dstLabel] > 0 {
				keys = append(keys, key)
				counts = append(counts, float64(entry.EdgeCount))
			}
		})
		if len(keys) == 0 {
			return 0, false
		}
		pick := keys[weightedChoice(rng, counts)]
		entry, _ := r.summary.Stats.Get(pick)
		colorOf[e.Dst] = pick.DstColor
		return w * entry.AvgOutDegree, true

	case dstKnown:
		srcLabel := r.labelOf[e.Src]
		var keys []stats.EntryKey
		var counts []float64
		for i, key := range r.summary.Stats.Keys {
			if key.DstColor != dstColor || key.EdgeType != typ {
				continue
			}
			if r.summary.Stats.Colors[key.SrcColor].LabelCounts[srcLabel] > 0 {
				keys = append(keys, key)
				counts = append(counts, float64(r.summary.Stats.Entries[i].EdgeCount))
			}
		}
		if len(keys) == 0 {
			return 0, false
		}
		pick := keys[weightedChoice(rng, counts)]
		entry, _ := r.summary.Stats.Get(pick)
		colorOf[e.Src] = pick.SrcColor
		return w * entry.AvgInDegree, true

	default:
		// Neither endpoint assigned; walkPlan prevents this for connected
		// components, so treat it as a dead trial.
		return 0, false
	}
}

// weightedChoice draws an index proportionally to the weights, falling back
// to the first index when all weights vanish.
func weightedChoice(rng *rand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0
	}
	x := rng.Float64() * total
	cum := 0.0
	for i, w := range weights {
		cum += w
		if x < cum {
			return i
		}
	}
	return len(weights) - 1
}
